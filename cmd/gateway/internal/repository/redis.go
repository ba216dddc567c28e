package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/basis-hub/pkg/models"
)

const channelPrefix = "ticks."

// Compile-time check to ensure RedisStore implements TickPublisher
var _ TickPublisher = (*RedisStore)(nil)

// RedisStore publishes every tick on ticks.<venue>.<symbol>.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Channel returns the pub/sub channel a tick is mirrored on.
func Channel(venue models.Venue, symbol string) string {
	return channelPrefix + string(venue) + "." + symbol
}

func (r *RedisStore) Publish(ctx context.Context, tick models.Tick) error {
	payload, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	return r.client.Publish(ctx, Channel(tick.Venue, tick.Symbol), payload).Err()
}

// Close is a no-op; the client is shared and owned by the caller.
func (r *RedisStore) Close() error { return nil }
