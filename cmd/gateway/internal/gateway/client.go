package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

const (
	DefaultHeartbeat  = 15 * time.Second
	defaultSendBuffer = 256
)

// Broker is the part of the hub a delivery channel talks to.
type Broker interface {
	Subscribe(id string, symbols []string)
	Unsubscribe(id string)
	OnTick(fn hub.Listener) func()
}

// Sink is the subscriber's transport. Write must not be called concurrently.
type Sink interface {
	Write(ev protocol.Event) error
	Close() error
}

type Options struct {
	Heartbeat  time.Duration
	SendBuffer int
}

// Client is one subscriber's delivery channel: it forwards hub ticks to a sink
// until the transport goes away.
type Client struct {
	id      string
	symbols []string
	broker  Broker
	sink    Sink
	send    chan models.Tick
	logger  *zap.Logger
	metrics *metrics.Metrics

	heartbeat time.Duration
}

func NewClient(id string, symbols []string, broker Broker, sink Sink, opts Options, m *metrics.Metrics, logger *zap.Logger) *Client {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	return &Client{
		id:        id,
		symbols:   symbols,
		broker:    broker,
		sink:      sink,
		send:      make(chan models.Tick, opts.SendBuffer),
		logger:    logger.With(zap.String("client_id", id)),
		metrics:   m,
		heartbeat: opts.Heartbeat,
	}
}

func (c *Client) ID() string { return c.id }

// Serve runs the channel until ctx is cancelled by the transport or a write
// fails. Every exit path deregisters from the hub and releases the sink.
func (c *Client) Serve(ctx context.Context) error {
	c.broker.Subscribe(c.id, c.symbols)
	c.metrics.ActiveChannels.Inc()

	ticker := time.NewTicker(c.heartbeat)
	off := func() {}

	defer func() {
		ticker.Stop()
		off()
		c.broker.Unsubscribe(c.id)
		if err := c.sink.Close(); err != nil {
			c.logger.Debug("Sink close", zap.Error(err))
		}
		c.metrics.ActiveChannels.Dec()
		c.logger.Info("Delivery channel closed")
	}()

	// ticks arriving before hello is written wait in the buffer
	off = c.broker.OnTick(c.enqueue)
	if err := c.sink.Write(protocol.NewHello(c.symbols)); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}
	c.logger.Info("Delivery channel open", zap.Strings("symbols", c.symbols))

	for {
		select {
		case <-ctx.Done():
			return nil

		case tick := <-c.send:
			if err := c.sink.Write(protocol.NewTick(tick)); err != nil {
				return fmt.Errorf("write tick: %w", err)
			}

		case <-ticker.C:
			if err := c.sink.Write(protocol.NewHeartbeat()); err != nil {
				return fmt.Errorf("write heartbeat: %w", err)
			}
		}
	}
}

// enqueue runs on the hub's broadcast path and never blocks.
func (c *Client) enqueue(tick models.Tick) {
	select {
	case c.send <- tick:
	default:
		// Drop message if buffer full (Backpressure)
		c.metrics.Dropped.WithLabelValues("channel").Inc()
		c.logger.Debug("Send buffer full, dropping tick", zap.String("symbol", tick.Symbol))
	}
}
