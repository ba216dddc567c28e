package hub

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

// Upstream is one venue's quote connection as seen by the hub.
type Upstream interface {
	// Reconnect replaces the live connection with one covering symbols.
	// An empty set leaves the venue disconnected.
	Reconnect(symbols []string)
	// Stop tears the connection down and disables retries until the next Reconnect.
	Stop()
}

// UpstreamFactory builds the connection for a venue; quotes read from it must be
// handed to onQuote in arrival order.
type UpstreamFactory func(venue models.Venue, onQuote func(models.Quote)) Upstream

// Listener receives every broadcast tick. It runs on the venue's read goroutine
// and must not block or call back into the hub.
type Listener func(models.Tick)

type Options struct {
	Debounce    time.Duration
	MaxSymbols  int
	BasisMaxAge time.Duration
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Hub owns the upstream connections, the subscription registry and the listener set.
// One Hub is built per process and shared by every delivery channel.
type Hub struct {
	opts      Options
	logger    *zap.Logger
	metrics   *metrics.Metrics
	deriver   *Deriver
	upstreams map[models.Venue]Upstream

	// rmu orders reconnect passes so the last one applies the latest union.
	rmu sync.Mutex

	mu       sync.Mutex
	started  bool
	registry *Registry
	timer    *time.Timer
	timerSeq uint64

	lmu       sync.RWMutex
	listeners []listenerEntry
	nextID    uint64
}

func NewHub(opts Options, newUpstream UpstreamFactory, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if opts.MaxSymbols <= 0 {
		opts.MaxSymbols = models.MaxSymbolsPerSubscriber
	}
	h := &Hub{
		opts:      opts,
		logger:    logger,
		metrics:   m,
		deriver:   NewDeriver(opts.BasisMaxAge),
		upstreams: make(map[models.Venue]Upstream, len(models.Venues)),
		registry:  NewRegistry(opts.MaxSymbols),
	}
	for _, v := range models.Venues {
		h.upstreams[v] = newUpstream(v, h.handleQuote)
	}
	return h
}

// Start activates the hub and connects every venue to the current union.
// Calling it again while started does nothing.
func (h *Hub) Start() {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.deriver.Reset()
	union := h.registry.Union()
	h.mu.Unlock()

	h.logger.Info("Hub started", zap.Strings("symbols", union))
	h.reconnectAll(union)
}

// Stop cancels any pending reconnect and closes the venue connections.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	h.timerSeq++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()

	for _, v := range models.Venues {
		h.upstreams[v].Stop()
	}
	h.logger.Info("Hub stopped")
}

func (h *Hub) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Subscribe replaces the symbols watched by id. Invalid, duplicate and excess
// symbols are dropped.
func (h *Hub) Subscribe(id string, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	changed := h.registry.Subscribe(id, symbols)
	h.logger.Debug("Subscriber registered", zap.String("id", id), zap.Strings("symbols", h.registry.Symbols(id)))
	h.afterMutation(changed)
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	changed := h.registry.Unsubscribe(id)
	h.afterMutation(changed)
}

// Union returns the symbols currently needed upstream.
func (h *Hub) Union() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Union()
}

// SubscriberCount returns how many subscribers are registered.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Len()
}

// OnTick registers fn for every tick broadcast from now on. The returned func
// removes it; once it returns fn is not called again.
func (h *Hub) OnTick(fn Listener) func() {
	h.lmu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners = append(h.listeners, listenerEntry{id: id, fn: fn})
	h.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.removeListener(id) })
	}
}

func (h *Hub) removeListener(id uint64) {
	h.lmu.Lock()
	defer h.lmu.Unlock()

	for i, l := range h.listeners {
		if l.id == id {
			next := make([]listenerEntry, 0, len(h.listeners)-1)
			next = append(next, h.listeners[:i]...)
			h.listeners = append(next, h.listeners[i+1:]...)
			return
		}
	}
}

// afterMutation must be called with h.mu held.
func (h *Hub) afterMutation(changed bool) {
	h.metrics.UnionSize.Set(float64(len(h.registry.union)))

	if !h.started || !changed {
		return
	}

	// Single-slot debounce: a newer change supersedes the pending one.
	h.timerSeq++
	seq := h.timerSeq
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.opts.Debounce, func() { h.fireReconnect(seq) })
}

func (h *Hub) fireReconnect(seq uint64) {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	h.mu.Lock()
	if !h.started || seq != h.timerSeq {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	union := h.registry.Union()
	h.mu.Unlock()

	h.logger.Info("Union changed, reconnecting upstream", zap.Strings("symbols", union))
	h.reconnectAll(union)
}

func (h *Hub) reconnectAll(symbols []string) {
	for _, v := range models.Venues {
		h.upstreams[v].Reconnect(symbols)
	}
}

func (h *Hub) handleQuote(q models.Quote) {
	tick := h.deriver.Derive(q.Venue, q.Symbol, q.Bid, q.Ask, q.ReceivedAt)
	h.metrics.Ticks.WithLabelValues(string(q.Venue)).Inc()
	h.broadcast(tick)
}

func (h *Hub) broadcast(tick models.Tick) {
	h.lmu.RLock()
	defer h.lmu.RUnlock()

	for _, l := range h.listeners {
		l.fn(tick)
	}
}
