package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// QuestionBank serves previously generated question sets from Postgres and
// stores new ones produced by the next source.
type QuestionBank struct {
	pool *pgxpool.Pool
	next app.QuestionSource
	log  *zap.Logger
}

// NewQuestionBank returns a bank backed by pool. next may be nil, in which
// case a miss yields domain.ErrQuestionNotFound.
func NewQuestionBank(pool *pgxpool.Pool, next app.QuestionSource, log *zap.Logger) *QuestionBank {
	return &QuestionBank{pool: pool, next: next, log: log}
}

func (b *QuestionBank) Questions(ctx context.Context, topic string, count int) ([]domain.GeneratedQuestion, error) {
	topic = strings.TrimSpace(topic)
	set, err := b.load(ctx, topic, count)
	if err == nil {
		return set, nil
	}
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		b.log.Warn("question bank lookup failed", zap.String("topic", topic), zap.Error(err))
	}
	if b.next == nil {
		return nil, err
	}

	set, err = b.next.Questions(ctx, topic, count)
	if err != nil {
		return nil, err
	}
	if err := b.Save(ctx, topic, set); err != nil {
		b.log.Warn("question bank store failed", zap.String("topic", topic), zap.Error(err))
	}
	return set, nil
}

func (b *QuestionBank) load(ctx context.Context, topic string, count int) ([]domain.GeneratedQuestion, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, `
		SELECT questions FROM question_sets
		WHERE lower(topic) = lower($1) AND question_count >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, topic, count).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	var set []domain.GeneratedQuestion
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("unmarshal question set: %w", err)
	}
	if len(set) > count {
		set = set[:count]
	}
	return set, nil
}

// Save stores a set of well-formed questions under topic. Malformed items are
// skipped; an empty result is not stored.
func (b *QuestionBank) Save(ctx context.Context, topic string, set []domain.GeneratedQuestion) error {
	valid := make([]domain.GeneratedQuestion, 0, len(set))
	for _, q := range set {
		if q.Valid() {
			valid = append(valid, q)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	data, err := json.Marshal(valid)
	if err != nil {
		return fmt.Errorf("marshal question set: %w", err)
	}
	_, err = b.pool.Exec(ctx,
		`INSERT INTO question_sets (topic, question_count, questions) VALUES ($1, $2, $3::jsonb)`,
		topic, len(valid), string(data))
	if err != nil {
		return fmt.Errorf("insert question set: %w", err)
	}
	return nil
}
