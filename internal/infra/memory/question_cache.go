package memory

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// QuestionCache caches generated question sets per topic and count with a
// TTL, so hosts picking the same topic do not pay for a new generation.
type QuestionCache struct {
	source app.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	questions []domain.GeneratedQuestion
	expiresAt time.Time
}

func NewQuestionCache(source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

// CacheKey identifies a question set; topics compare case-insensitively.
func CacheKey(topic string, count int) string {
	return strings.ToLower(strings.TrimSpace(topic)) + "|" + strconv.Itoa(count)
}

func (c *QuestionCache) Questions(ctx context.Context, topic string, count int) ([]domain.GeneratedQuestion, error) {
	key := CacheKey(topic, count)
	if qs, ok := c.lookup(key); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if qs, ok := c.lookup(key); ok {
			return qs, nil
		}

		qs, err := c.source.Questions(ctx, topic, count)
		if err != nil {
			return nil, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			c.mu.Lock()
			c.cache[key] = cachedSet{questions: qs, expiresAt: c.clock().Add(ttl)}
			c.mu.Unlock()
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneSet(result.([]domain.GeneratedQuestion)), nil
}

func (c *QuestionCache) lookup(key string) ([]domain.GeneratedQuestion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return cloneSet(entry.questions), true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cloneSet(in []domain.GeneratedQuestion) []domain.GeneratedQuestion {
	out := make([]domain.GeneratedQuestion, len(in))
	for i, q := range in {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// StaticSource serves fixed question sets by topic (useful for tests/demos).
type StaticSource struct {
	sets map[string][]domain.GeneratedQuestion
}

func NewStaticSource(sets map[string][]domain.GeneratedQuestion) *StaticSource {
	return &StaticSource{sets: sets}
}

func (s *StaticSource) Questions(_ context.Context, topic string, count int) ([]domain.GeneratedQuestion, error) {
	qs, ok := s.sets[topic]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	if len(qs) > count {
		qs = qs[:count]
	}
	return cloneSet(qs), nil
}
