package testutils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

// MockUpstream records what the hub asks of one venue connection
type MockUpstream struct {
	Venue      models.Venue
	Reconnects [][]string
	Stops      int
	OnQuote    func(models.Quote)
	Mu         sync.Mutex
}

func (m *MockUpstream) Reconnect(symbols []string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Reconnects = append(m.Reconnects, append([]string(nil), symbols...))
}

func (m *MockUpstream) Stop() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Stops++
}

func (m *MockUpstream) ReconnectCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Reconnects)
}

func (m *MockUpstream) LastSymbols() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Reconnects) == 0 {
		return nil
	}
	return m.Reconnects[len(m.Reconnects)-1]
}

// Emit pushes a quote into the hub as if it had been read off the venue.
func (m *MockUpstream) Emit(symbol string, bid, ask float64) {
	m.OnQuote(models.Quote{
		Venue:      m.Venue,
		Symbol:     symbol,
		Bid:        decimal.NewFromFloat(bid),
		Ask:        decimal.NewFromFloat(ask),
		ReceivedAt: time.Now(),
	})
}

// MockVenues hands out one MockUpstream per venue
type MockVenues struct {
	Upstreams map[models.Venue]*MockUpstream
}

func NewMockVenues() *MockVenues {
	return &MockVenues{Upstreams: make(map[models.Venue]*MockUpstream)}
}

func (m *MockVenues) Factory(venue models.Venue, onQuote func(models.Quote)) hub.Upstream {
	up := &MockUpstream{Venue: venue, OnQuote: onQuote}
	m.Upstreams[venue] = up
	return up
}

func (m *MockVenues) Spot() *MockUpstream    { return m.Upstreams[models.VenueSpot] }
func (m *MockVenues) Futures() *MockUpstream { return m.Upstreams[models.VenueFutures] }

var ErrSinkBroken = errors.New("sink broken")

// MockSink simulates a subscriber transport
type MockSink struct {
	Events    []protocol.Event
	Closed    bool
	FailAfter int // fail every write after this many succeeded; 0 disables
	Mu        sync.Mutex
}

func (m *MockSink) Write(ev protocol.Event) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailAfter > 0 && len(m.Events) >= m.FailAfter {
		return ErrSinkBroken
	}
	m.Events = append(m.Events, ev)
	return nil
}

func (m *MockSink) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockSink) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

// Count returns how many events of kind k were written.
func (m *MockSink) Count(k protocol.Kind) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := 0
	for _, ev := range m.Events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

func (m *MockSink) Snapshot() []protocol.Event {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]protocol.Event(nil), m.Events...)
}

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
	Closed     bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

type MockKafkaConn struct {
	CreatedTopics []string
	NotReady      bool
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
	}
	return nil
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.NotReady {
		return nil, nil
	}
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	Addrs   []string
	Fail    bool
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (repository.KafkaConn, error) {
	m.Addrs = append(m.Addrs, address)
	if m.Fail {
		return nil, errors.New("connection refused")
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}

// MockPublisher records mirrored ticks
type MockPublisher struct {
	Ticks      []models.Tick
	ShouldFail bool
	Closed     bool
	Mu         sync.Mutex
}

func (m *MockPublisher) Publish(ctx context.Context, tick models.Tick) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("publish failed")
	}
	m.Ticks = append(m.Ticks, tick)
	return nil
}

func (m *MockPublisher) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockPublisher) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Ticks)
}

// Eventually polls cond until it holds or the timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %v: %s", timeout, msg)
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}
