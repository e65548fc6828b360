package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"quizroom-service/internal/domain"
)

// QuestionSource produces question sets for a topic (AI service, question
// bank, cache). Implementations may fail; QuestionGenerator absorbs failures.
type QuestionSource interface {
	Questions(ctx context.Context, topic string, count int) ([]domain.GeneratedQuestion, error)
}

// QuestionGenerator turns a QuestionSource into the collaborator the Lobby
// relies on: it always returns exactly count well-formed questions.
type QuestionGenerator struct {
	source  QuestionSource
	timeout time.Duration
	log     *zap.Logger
}

func NewQuestionGenerator(source QuestionSource, timeout time.Duration, log *zap.Logger) *QuestionGenerator {
	return &QuestionGenerator{source: source, timeout: timeout, log: log}
}

// Generate returns count questions about topic, padding with or falling back
// to the built-in set when the source fails or returns malformed items.
func (g *QuestionGenerator) Generate(ctx context.Context, topic string, count int) []domain.GeneratedQuestion {
	if count <= 0 {
		return nil
	}
	if g.source == nil {
		return FallbackQuestions(count)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	generated, err := g.source.Questions(ctx, topic, count)
	if err != nil {
		g.log.Warn("question generation failed, using fallback set",
			zap.String("topic", topic), zap.Int("count", count), zap.Error(err))
		return FallbackQuestions(count)
	}

	out := make([]domain.GeneratedQuestion, 0, count)
	for _, q := range generated {
		q = normalizeGenerated(q)
		if !q.Valid() {
			continue
		}
		out = append(out, q)
		if len(out) == count {
			return out
		}
	}
	if missing := count - len(out); missing > 0 {
		g.log.Info("padding generated questions from fallback set",
			zap.String("topic", topic), zap.Int("missing", missing))
		out = append(out, FallbackQuestions(missing)...)
	}
	return out
}

func normalizeGenerated(q domain.GeneratedQuestion) domain.GeneratedQuestion {
	q.Question = strings.TrimSpace(q.Question)
	opts := make([]string, len(q.Options))
	for i, o := range q.Options {
		opts[i] = strings.TrimSpace(o)
	}
	q.Options = opts
	return q
}

var fallbackQuestions = []domain.GeneratedQuestion{
	{Question: "What is the capital of France?", Options: []string{"London", "Berlin", "Paris", "Madrid"}, CorrectAnswer: 2},
	{Question: "Which planet is known as the Red Planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, CorrectAnswer: 1},
	{Question: "What is 7 multiplied by 8?", Options: []string{"54", "56", "64", "48"}, CorrectAnswer: 1},
	{Question: "Which gas do plants absorb from the atmosphere?", Options: []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"}, CorrectAnswer: 2},
	{Question: "Who wrote \"Romeo and Juliet\"?", Options: []string{"Charles Dickens", "William Shakespeare", "Jane Austen", "Mark Twain"}, CorrectAnswer: 1},
	{Question: "What is the largest ocean on Earth?", Options: []string{"Atlantic", "Indian", "Arctic", "Pacific"}, CorrectAnswer: 3},
	{Question: "How many continents are there?", Options: []string{"5", "6", "7", "8"}, CorrectAnswer: 2},
	{Question: "What is the chemical symbol for gold?", Options: []string{"Au", "Ag", "Gd", "Go"}, CorrectAnswer: 0},
	{Question: "Which is the smallest prime number?", Options: []string{"0", "1", "2", "3"}, CorrectAnswer: 2},
	{Question: "In which year did humans first land on the Moon?", Options: []string{"1965", "1969", "1972", "1959"}, CorrectAnswer: 1},
}

// FallbackQuestions returns count questions from the built-in set, cycling
// through it when count exceeds its size.
func FallbackQuestions(count int) []domain.GeneratedQuestion {
	out := make([]domain.GeneratedQuestion, 0, count)
	for i := 0; i < count; i++ {
		src := fallbackQuestions[i%len(fallbackQuestions)]
		out = append(out, domain.GeneratedQuestion{
			Question:      src.Question,
			Options:       append([]string(nil), src.Options...),
			CorrectAnswer: src.CorrectAnswer,
		})
	}
	return out
}
