package app

import "math"

const (
	// BasePoints is awarded for every correct answer.
	BasePoints = 100
	// TimeBonusPerSecond is awarded per unused second of the time budget.
	TimeBonusPerSecond = 10
)

// Score maps an answer outcome to points. Incorrect answers earn nothing;
// answers at or past the budget earn only the base award.
func Score(correct bool, timeToAnswer float64, timePerQuestion int) int {
	if !correct {
		return 0
	}
	remaining := math.Max(0, float64(timePerQuestion)-timeToAnswer)
	return BasePoints + int(math.Round(remaining*TimeBonusPerSecond))
}
