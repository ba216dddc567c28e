package protocol_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

func TestHello_SSE(t *testing.T) {
	b, err := protocol.NewHello([]string{"BTCUSDT", "ETHUSDT"}).SSE()
	if err != nil {
		t.Fatalf("SSE: %v", err)
	}

	want := `data: {"type":"hello","symbols":["BTCUSDT","ETHUSDT"]}` + "\n\n"
	if string(b) != want {
		t.Errorf("Expected %q, got %q", want, string(b))
	}
}

func TestHello_EmptySymbolsIsArray(t *testing.T) {
	b, _ := protocol.NewHello(nil).Payload()
	if !strings.Contains(string(b), `"symbols":[]`) {
		t.Errorf("Expected empty array, got %s", b)
	}
}

func TestTick_SSE(t *testing.T) {
	tick := models.Tick{Venue: models.VenueFutures, Symbol: "ETHUSDT", Bid: 1, Ask: 3, Mid: 2, Spread: 2, SpreadPct: 100, Timestamp: time.UnixMilli(42)}

	b, err := protocol.NewTick(tick).SSE()
	if err != nil {
		t.Fatalf("SSE: %v", err)
	}

	s := string(b)
	if !strings.HasPrefix(s, "data: {") || !strings.HasSuffix(s, "}\n\n") {
		t.Errorf("Bad SSE framing: %q", s)
	}
	if !strings.Contains(s, `"type":"futures"`) || !strings.Contains(s, `"ts":42`) {
		t.Errorf("Missing tick fields: %q", s)
	}
}

func TestHeartbeat(t *testing.T) {
	hb := protocol.NewHeartbeat()

	b, err := hb.SSE()
	if err != nil || string(b) != ": ping\n\n" {
		t.Errorf("Expected comment frame, got %q (%v)", b, err)
	}
	if _, err := hb.Payload(); !errors.Is(err, protocol.ErrNoPayload) {
		t.Errorf("Expected ErrNoPayload, got %v", err)
	}
	if hb.Kind.String() != "heartbeat" {
		t.Errorf("Unexpected kind name %s", hb.Kind)
	}
}
