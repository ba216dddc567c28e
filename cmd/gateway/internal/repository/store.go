package repository

import (
	"context"

	"github.com/shubham-shewale/basis-hub/pkg/models"
)

// TickPublisher mirrors derived ticks to an external system.
type TickPublisher interface {
	Publish(ctx context.Context, tick models.Tick) error
	Close() error
}

// RateLimiter counts accepted requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
