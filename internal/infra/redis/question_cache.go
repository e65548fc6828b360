package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// QuestionCache caches generated question sets in Redis and falls back to a
// source on cache miss.
// Sets are stored as JSON: SET quizroom:questions:{topic}:{count} [...]
type QuestionCache struct {
	client *redis.Client
	source app.QuestionSource
	ttl    time.Duration
	log    *zap.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, source app.QuestionSource, ttl time.Duration, log *zap.Logger) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func QuestionsKey(topic string, count int) string {
	return "quizroom:questions:" + strings.ToLower(strings.TrimSpace(topic)) + ":" + strconv.Itoa(count)
}

func (c *QuestionCache) Questions(ctx context.Context, topic string, count int) ([]domain.GeneratedQuestion, error) {
	key := QuestionsKey(topic, count)
	if set, ok := c.lookup(ctx, key); ok {
		return set, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if set, ok := c.lookup(ctx, key); ok {
			return set, nil
		}

		set, err := c.source.Questions(ctx, topic, count)
		if err != nil {
			return nil, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			data, err := json.Marshal(set)
			if err == nil {
				err = c.client.Set(ctx, key, data, ttl).Err()
			}
			if err != nil {
				c.log.Warn("redis question cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.GeneratedQuestion), nil
}

func (c *QuestionCache) lookup(ctx context.Context, key string) ([]domain.GeneratedQuestion, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("redis question cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var set []domain.GeneratedQuestion
	if err := json.Unmarshal(data, &set); err != nil || len(set) == 0 {
		return nil, false
	}
	return set, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
