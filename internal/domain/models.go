package domain

import "time"

// RoomStatus is the lifecycle state of a room. It only moves forward:
// waiting -> active -> finished.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
)

func (s RoomStatus) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusActive:
		return 1
	case StatusFinished:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next keeps the status forward-only.
func (s RoomStatus) CanTransition(next RoomStatus) bool {
	return next.rank() >= s.rank() && next.rank() >= 0
}

// Room is a single quiz session addressed by its join code.
type Room struct {
	Code                 string     `json:"code"`
	HostID               string     `json:"hostId"`
	Topic                string     `json:"topic"`
	QuestionCount        int        `json:"questionCount"`
	TimePerQuestion      int        `json:"timePerQuestion"`
	Status               RoomStatus `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// Question is one multiple choice item belonging to a room.
type Question struct {
	ID            string    `json:"id"`
	RoomCode      string    `json:"roomCode"`
	Text          string    `json:"question"`
	Options       [4]string `json:"options"`
	CorrectAnswer int       `json:"correctAnswer"`
	Position      int       `json:"position"`
}

// PublicQuestion is the participant-facing view of a question; the correct
// option is revealed only in the answer result.
type PublicQuestion struct {
	ID       string    `json:"id"`
	Text     string    `json:"question"`
	Options  [4]string `json:"options"`
	Position int       `json:"position"`
}

// Public strips the answer key.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Text: q.Text, Options: q.Options, Position: q.Position}
}

// Player is a participant of exactly one room.
type Player struct {
	ID       string    `json:"id"`
	RoomCode string    `json:"roomCode"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	IsHost   bool      `json:"isHost"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Answer is the single submission of a player for a question.
type Answer struct {
	PlayerID       string    `json:"playerId"`
	QuestionID     string    `json:"questionId"`
	SelectedAnswer int       `json:"selectedAnswer"`
	IsCorrect      bool      `json:"isCorrect"`
	TimeToAnswer   float64   `json:"timeToAnswer"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// GeneratedQuestion is the shape produced by the question generation collaborator.
type GeneratedQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Valid reports whether the item can be turned into a stored Question.
func (g GeneratedQuestion) Valid() bool {
	if g.Question == "" || len(g.Options) != 4 {
		return false
	}
	for _, opt := range g.Options {
		if opt == "" {
			return false
		}
	}
	return g.CorrectAnswer >= 0 && g.CorrectAnswer < 4
}

// AnswerResult summarizes the outcome of a submission.
type AnswerResult struct {
	IsCorrect     bool `json:"isCorrect"`
	Points        int  `json:"points"`
	TotalScore    int  `json:"totalScore"`
	CorrectAnswer int  `json:"correctAnswer"`
}

// LeaderboardEntry is a player's standing with answer accuracy.
type LeaderboardEntry struct {
	PlayerID       string `json:"playerId"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	IsHost         bool   `json:"isHost"`
	CorrectAnswers int    `json:"correctAnswers"`
	Answered       int    `json:"answered"`
	Accuracy       int    `json:"accuracy"`
}

// RoomState is the authoritative snapshot clients resynchronize from.
type RoomState struct {
	Room          Room     `json:"room"`
	Players       []Player `json:"players"`
	QuestionCount int      `json:"questionCount"`
}
