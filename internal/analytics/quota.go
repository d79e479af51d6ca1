package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RequestQuota tracks how many third-party analytics pulls were made
// today. The count is ephemeral daily state, not reporting data.
type RequestQuota interface {
	Used(ctx context.Context) (int, error)
	Increment(ctx context.Context) error
	Limit() int
}

// RedisQuota counts requests in Redis under a per-day key expiring at the
// next local midnight.
type RedisQuota struct {
	client *redis.Client
	limit  int
	loc    *time.Location
}

func NewRedisQuota(client *redis.Client, limit int, loc *time.Location) *RedisQuota {
	if loc == nil {
		loc = time.UTC
	}
	return &RedisQuota{client: client, limit: limit, loc: loc}
}

func (q *RedisQuota) key() string {
	return "analytics:requests:" + time.Now().In(q.loc).Format("2006-01-02")
}

func (q *RedisQuota) Used(ctx context.Context) (int, error) {
	n, err := q.client.Get(ctx, q.key()).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read request quota: %w", err)
	}
	return n, nil
}

func (q *RedisQuota) Increment(ctx context.Context) error {
	now := time.Now().In(q.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, q.loc).AddDate(0, 0, 1)

	pipe := q.client.Pipeline()
	pipe.Incr(ctx, q.key())
	pipe.ExpireAt(ctx, q.key(), midnight)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment request quota: %w", err)
	}
	return nil
}

func (q *RedisQuota) Limit() int { return q.limit }

// InMemoryQuota is the fallback when Redis is not configured.
type InMemoryQuota struct {
	mu    sync.Mutex
	day   string
	used  int
	limit int
	loc   *time.Location
}

func NewInMemoryQuota(limit int, loc *time.Location) *InMemoryQuota {
	if loc == nil {
		loc = time.UTC
	}
	return &InMemoryQuota{limit: limit, loc: loc}
}

func (q *InMemoryQuota) roll() {
	today := time.Now().In(q.loc).Format("2006-01-02")
	if q.day != today {
		q.day = today
		q.used = 0
	}
}

func (q *InMemoryQuota) Used(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll()
	return q.used, nil
}

func (q *InMemoryQuota) Increment(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll()
	q.used++
	return nil
}

func (q *InMemoryQuota) Limit() int { return q.limit }
