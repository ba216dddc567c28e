package repository

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "ratelimit:"

var (
	_ RateLimiter = (*RedisRateLimiter)(nil)
	_ RateLimiter = (*MemoryRateLimiter)(nil)
)

// Sliding window over a sorted set scored in unix millis. Only accepted
// requests are recorded.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisRateLimiter shares the window across gateway instances.
type RedisRateLimiter struct {
	client redis.Scripter
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.Scripter, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, r.client, []string{rateKeyPrefix + key},
		now, r.window.Milliseconds(), r.limit, member).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// MemoryRateLimiter keeps one window per key in process memory.
type MemoryRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)
	m.sweep(now, cutoff)

	hits := trim(m.hits[key], cutoff)
	if len(hits) >= m.limit {
		m.hits[key] = hits
		return false, nil
	}
	m.hits[key] = append(hits, now)
	return true, nil
}

// sweep drops idle keys at most once per window.
func (m *MemoryRateLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now
	for key, hits := range m.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(m.hits, key)
		}
	}
}

func (m *MemoryRateLimiter) keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

func trim(hits []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(hits) && !hits[idx].After(cutoff) {
		idx++
	}
	return hits[idx:]
}
