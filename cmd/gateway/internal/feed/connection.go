package feed

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

// Dialer opens a websocket; *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Connection keeps one venue websocket open for the current symbol set and
// re-dials after a fixed delay whenever it drops.
type Connection struct {
	venue   models.Venue
	baseURL string
	dialer  Dialer
	delay   time.Duration
	onQuote func(models.Quote)
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	// mu serializes reconnects, retries and Stop for this venue. Dials run
	// outside it and only install their connection if gen is unchanged.
	mu      sync.Mutex
	symbols []string
	conn    *websocket.Conn
	gen     uint64
	stopped bool
	cancel  context.CancelFunc
}

func NewConnection(
	venue models.Venue,
	baseURL string,
	dialer Dialer,
	reconnectDelay time.Duration,
	onQuote func(models.Quote),
	m *metrics.Metrics,
	logger *zap.Logger,
) *Connection {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Connection{
		venue:   venue,
		baseURL: baseURL,
		dialer:  dialer,
		delay:   reconnectDelay,
		onQuote: onQuote,
		metrics: m,
		logger:  logger.With(zap.String("venue", string(venue))),
		now:     time.Now,
		stopped: true,
	}
}

// Reconnect drops the current connection and, unless symbols is empty, starts
// dialing a new one covering exactly those symbols. It does not wait for the dial.
func (c *Connection) Reconnect(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.stopped = false
	c.interruptDial()
	c.closeConn()
	c.symbols = append([]string(nil), symbols...)

	if len(c.symbols) == 0 {
		c.logger.Info("No symbols requested, upstream idle")
		return
	}
	c.startDial("subscribe")
}

// Stop closes the connection, abandons any dial in flight and cancels pending retries.
func (c *Connection) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.stopped = true
	c.interruptDial()
	c.closeConn()
}

// Symbols returns the set the connection is currently meant to cover.
func (c *Connection) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.symbols...)
}

// interruptDial must be called with c.mu held.
func (c *Connection) interruptDial() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// startDial launches a dial for the current generation. Must be called with c.mu held.
func (c *Connection) startDial(reason string) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	url := StreamURL(c.baseURL, c.symbols)
	c.metrics.Reconnects.WithLabelValues(string(c.venue), reason).Inc()
	go c.dial(ctx, cancel, c.gen, url)
}

func (c *Connection) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, url string) {
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, url, nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.stopped {
		// superseded while dialing
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancel = nil

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		c.logger.Warn("Upstream dial failed", zap.String("url", url), zap.Error(err))
		c.scheduleRetry(gen)
		return
	}

	c.conn = conn
	c.logger.Info("Upstream connected", zap.Strings("symbols", c.symbols))
	go c.readLoop(conn, gen)
}

// closeConn must be called with c.mu held.
func (c *Connection) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("Upstream close", zap.Error(err))
	}
	c.conn = nil
}

func (c *Connection) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(gen, err)
			return
		}

		q, ok := DecodeQuote(c.venue, data, c.now())
		if !ok {
			c.metrics.Malformed.WithLabelValues(string(c.venue)).Inc()
			c.logger.Debug("Discarding malformed upstream message", zap.ByteString("raw", data))
			continue
		}
		c.onQuote(q)
	}
}

func (c *Connection) handleClosed(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.stopped {
		// superseded by Reconnect or closed by Stop
		return
	}
	c.closeConn()
	c.logger.Warn("Upstream connection lost", zap.Error(err), zap.Duration("retry_in", c.delay))
	c.scheduleRetry(gen)
}

// scheduleRetry re-dials the same symbol set after the fixed delay unless the
// connection was replaced or stopped in the meantime.
func (c *Connection) scheduleRetry(gen uint64) {
	time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if gen != c.gen || c.stopped || len(c.symbols) == 0 {
			return
		}
		c.gen++
		c.startDial("retry")
	})
}
