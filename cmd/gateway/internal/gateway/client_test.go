package gateway_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

func newHub(m *metrics.Metrics) (*hub.Hub, *testutils.MockVenues) {
	venues := testutils.NewMockVenues()
	h := hub.NewHub(hub.Options{Debounce: 10 * time.Millisecond}, venues.Factory, m, zap.NewNop())
	h.Start()
	return h, venues
}

func serve(c *gateway.Client) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()
	return cancel, done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestClient_HelloThenTicks(t *testing.T) {
	m := metrics.New()
	h, venues := newHub(m)
	sink := &testutils.MockSink{}

	c := gateway.NewClient("c1", []string{"BTCUSDT"}, h, sink, gateway.Options{Heartbeat: time.Hour}, m, zap.NewNop())
	cancel, done := serve(c)

	testutils.Eventually(t, time.Second, func() bool { return sink.Count(protocol.KindHello) == 1 }, "hello written")
	testutils.Eventually(t, time.Second, func() bool { return testutil.ToFloat64(m.ActiveChannels) == 1 }, "channel counted")

	venues.Spot().Emit("BTCUSDT", 100, 102)
	venues.Futures().Emit("ETHUSDT", 10, 11)
	testutils.Eventually(t, time.Second, func() bool { return sink.Count(protocol.KindTick) == 2 }, "ticks forwarded")

	events := sink.Snapshot()
	if events[0].Kind != protocol.KindHello {
		t.Fatalf("First event must be hello, got %s", events[0].Kind)
	}
	if got := events[0].Hello.Symbols; len(got) != 1 || got[0] != "BTCUSDT" {
		t.Errorf("Hello should echo the requested symbols, got %v", got)
	}
	if events[1].Tick.Symbol != "BTCUSDT" || events[2].Tick.Symbol != "ETHUSDT" {
		t.Errorf("Ticks forwarded out of order or filtered: %+v %+v", events[1].Tick, events[2].Tick)
	}

	cancel()
	if err := wait(t, done); err != nil {
		t.Errorf("Cancelled channel should end cleanly, got %v", err)
	}

	testutils.AssertTrue(t, sink.IsClosed(), "sink closed on exit")
	testutils.AssertTrue(t, h.SubscriberCount() == 0, "subscriber removed on exit")
	testutils.AssertTrue(t, testutil.ToFloat64(m.ActiveChannels) == 0, "active gauge released")

	venues.Spot().Emit("BTCUSDT", 100, 102)
	if sink.Count(protocol.KindTick) != 2 {
		t.Error("Listener must be removed once the channel closes")
	}
}

func TestClient_RegistersSubscription(t *testing.T) {
	m := metrics.New()
	h, _ := newHub(m)
	sink := &testutils.MockSink{}

	c := gateway.NewClient("c1", []string{"ethusdt", "BTCUSDT"}, h, sink, gateway.Options{Heartbeat: time.Hour}, m, zap.NewNop())
	cancel, done := serve(c)
	defer func() {
		cancel()
		wait(t, done)
	}()

	testutils.Eventually(t, time.Second, func() bool { return h.SubscriberCount() == 1 }, "subscriber registered")
	union := h.Union()
	if len(union) != 2 || union[0] != "BTCUSDT" || union[1] != "ETHUSDT" {
		t.Errorf("Unexpected union %v", union)
	}
}

func TestClient_Heartbeat(t *testing.T) {
	m := metrics.New()
	h, _ := newHub(m)
	sink := &testutils.MockSink{}

	c := gateway.NewClient("c1", nil, h, sink, gateway.Options{Heartbeat: 10 * time.Millisecond}, m, zap.NewNop())
	cancel, done := serve(c)

	testutils.Eventually(t, time.Second, func() bool { return sink.Count(protocol.KindHeartbeat) >= 2 }, "heartbeats written")
	cancel()
	wait(t, done)
}

func TestClient_WriteFailureEndsChannel(t *testing.T) {
	m := metrics.New()
	h, _ := newHub(m)
	sink := &testutils.MockSink{FailAfter: 1}

	c := gateway.NewClient("c1", []string{"BTCUSDT"}, h, sink, gateway.Options{Heartbeat: 10 * time.Millisecond}, m, zap.NewNop())
	_, done := serve(c)

	err := wait(t, done)
	if !errors.Is(err, testutils.ErrSinkBroken) {
		t.Fatalf("Expected the sink error, got %v", err)
	}
	testutils.AssertTrue(t, sink.IsClosed(), "sink closed after failure")
	testutils.AssertTrue(t, h.SubscriberCount() == 0, "subscriber removed after failure")
}

func TestClient_HelloFailureStillUnsubscribes(t *testing.T) {
	m := metrics.New()
	h, _ := newHub(m)
	sink := &failingSink{}

	c := gateway.NewClient("c1", []string{"BTCUSDT"}, h, sink, gateway.Options{}, m, zap.NewNop())
	_, done := serve(c)

	if err := wait(t, done); err == nil {
		t.Fatal("Expected hello write error")
	}
	testutils.AssertTrue(t, h.SubscriberCount() == 0, "subscriber removed")
	testutils.AssertTrue(t, sink.closed, "sink closed")
}

type failingSink struct{ closed bool }

func (f *failingSink) Write(protocol.Event) error { return testutils.ErrSinkBroken }
func (f *failingSink) Close() error               { f.closed = true; return nil }

// fakeBroker hands the registered listener back to the test.
type fakeBroker struct {
	mu       sync.Mutex
	listener hub.Listener
}

func (b *fakeBroker) Subscribe(string, []string) {}
func (b *fakeBroker) Unsubscribe(string)         {}

func (b *fakeBroker) OnTick(fn hub.Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = fn
	return func() {}
}

func (b *fakeBroker) get() hub.Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener
}

// gateSink blocks tick writes until released.
type gateSink struct {
	testutils.MockSink
	gate chan struct{}
}

func (g *gateSink) Write(ev protocol.Event) error {
	if ev.Kind == protocol.KindTick {
		<-g.gate
	}
	return g.MockSink.Write(ev)
}

func TestClient_FullBufferDrops(t *testing.T) {
	m := metrics.New()
	broker := &fakeBroker{}
	sink := &gateSink{gate: make(chan struct{})}

	c := gateway.NewClient("c1", nil, broker, sink, gateway.Options{Heartbeat: time.Hour, SendBuffer: 1}, m, zap.NewNop())
	cancel, done := serve(c)

	testutils.Eventually(t, time.Second, func() bool { return broker.get() != nil }, "listener registered")
	listen := broker.get()

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			listen(models.Tick{Venue: models.VenueSpot, Symbol: "BTCUSDT"})
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}

	if dropped := testutil.ToFloat64(m.Dropped.WithLabelValues("channel")); dropped < 8 {
		t.Errorf("Expected at least 8 drops with a one-slot buffer, got %v", dropped)
	}

	close(sink.gate)
	cancel()
	wait(t, done)
}
