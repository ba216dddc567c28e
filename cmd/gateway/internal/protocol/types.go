package protocol

import (
	"encoding/json"
	"errors"

	"github.com/shubham-shewale/basis-hub/pkg/models"
)

// Kind tags the variant carried by an Event.
type Kind int

const (
	KindHello Kind = iota
	KindTick
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindTick:
		return "tick"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

const TypeHello = "hello"

// Hello is the handshake sent once when a delivery channel opens.
type Hello struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// Event is everything a delivery channel can push to a subscriber.
// Exactly one of Hello and Tick is set, matching Kind; heartbeats carry nothing.
type Event struct {
	Kind  Kind
	Hello *Hello
	Tick  *models.Tick
}

// ErrorResponse is the body of a boundary rejection.
type ErrorResponse struct {
	Error string `json:"error"`
}

var ErrNoPayload = errors.New("heartbeat has no payload")

func NewHello(symbols []string) Event {
	if symbols == nil {
		symbols = []string{}
	}
	return Event{Kind: KindHello, Hello: &Hello{Type: TypeHello, Symbols: symbols}}
}

func NewTick(t models.Tick) Event {
	return Event{Kind: KindTick, Tick: &t}
}

func NewHeartbeat() Event {
	return Event{Kind: KindHeartbeat}
}

// Payload returns the JSON data for hello and tick events.
func (e Event) Payload() ([]byte, error) {
	switch e.Kind {
	case KindHello:
		return json.Marshal(e.Hello)
	case KindTick:
		return json.Marshal(e.Tick)
	case KindHeartbeat:
		return nil, ErrNoPayload
	default:
		return nil, errors.New("unknown event kind")
	}
}
