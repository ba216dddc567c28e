package feed

import (
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

// NewUpstreamFactory returns the hub's constructor for live venue connections.
func NewUpstreamFactory(urls map[models.Venue]string, dialer Dialer, reconnectDelay time.Duration, m *metrics.Metrics, logger *zap.Logger) hub.UpstreamFactory {
	return func(venue models.Venue, onQuote func(models.Quote)) hub.Upstream {
		return NewConnection(venue, urls[venue], dialer, reconnectDelay, onQuote, m, logger)
	}
}
