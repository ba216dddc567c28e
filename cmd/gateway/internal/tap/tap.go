package tap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

const publishTimeout = 2 * time.Second

// Tap mirrors hub ticks to a publisher off the broadcast path.
type Tap struct {
	name    string
	pub     repository.TickPublisher
	buf     chan models.Tick
	done    chan struct{}
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(name string, pub repository.TickPublisher, size int, m *metrics.Metrics, logger *zap.Logger) *Tap {
	if size <= 0 {
		size = 1024
	}
	return &Tap{
		name:    name,
		pub:     pub,
		buf:     make(chan models.Tick, size),
		done:    make(chan struct{}),
		logger:  logger.With(zap.String("tap", name)),
		metrics: m,
	}
}

// Listen is registered with the hub; it never blocks.
func (t *Tap) Listen(tick models.Tick) {
	select {
	case t.buf <- tick:
	default:
		t.metrics.Dropped.WithLabelValues(t.name).Inc()
		t.logger.Warn("Tap buffer full, dropping tick", zap.String("symbol", tick.Symbol))
	}
}

// Run publishes buffered ticks until ctx is cancelled, then closes the publisher.
func (t *Tap) Run(ctx context.Context) {
	defer close(t.done)
	defer func() {
		if err := t.pub.Close(); err != nil {
			t.logger.Warn("Publisher close", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-t.buf:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := t.pub.Publish(pctx, tick); err != nil {
				t.logger.Error("Publish failed", zap.String("symbol", tick.Symbol), zap.Error(err))
			}
			cancel()
		}
	}
}

// Done is closed once Run has returned.
func (t *Tap) Done() <-chan struct{} { return t.done }
