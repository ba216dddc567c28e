package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Venue identifies one of the two upstream quote sources.
type Venue string

const (
	VenueSpot    Venue = "spot"
	VenueFutures Venue = "futures"
)

// Venues lists every venue the hub connects to, spot first.
var Venues = []Venue{VenueSpot, VenueFutures}

// Other returns the venue on the opposite side of the basis join.
func (v Venue) Other() Venue {
	if v == VenueSpot {
		return VenueFutures
	}
	return VenueSpot
}

func (v Venue) Valid() bool {
	return v == VenueSpot || v == VenueFutures
}

// Tick is a derived best-bid/best-ask update for one symbol on one venue.
// BasisPct is nil until both venues have quoted the symbol.
type Tick struct {
	Venue     Venue     `json:"type"`
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Mid       float64   `json:"mid"`
	Spread    float64   `json:"spread"`
	SpreadPct float64   `json:"spreadPct"`
	BasisPct  *float64  `json:"basisPct,omitempty"`
	Timestamp time.Time `json:"-"`
}

type tickWire struct {
	Venue     Venue    `json:"type"`
	Symbol    string   `json:"symbol"`
	Bid       float64  `json:"bid"`
	Ask       float64  `json:"ask"`
	Mid       float64  `json:"mid"`
	Spread    float64  `json:"spread"`
	SpreadPct float64  `json:"spreadPct"`
	BasisPct  *float64 `json:"basisPct,omitempty"`
	Ts        int64    `json:"ts"` // unix milli
}

func (t Tick) MarshalJSON() ([]byte, error) {
	return json.Marshal(tickWire{
		Venue:     t.Venue,
		Symbol:    t.Symbol,
		Bid:       t.Bid,
		Ask:       t.Ask,
		Mid:       t.Mid,
		Spread:    t.Spread,
		SpreadPct: t.SpreadPct,
		BasisPct:  t.BasisPct,
		Ts:        t.Timestamp.UnixMilli(),
	})
}

func (t *Tick) UnmarshalJSON(b []byte) error {
	var w tickWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*t = Tick{
		Venue:     w.Venue,
		Symbol:    w.Symbol,
		Bid:       w.Bid,
		Ask:       w.Ask,
		Mid:       w.Mid,
		Spread:    w.Spread,
		SpreadPct: w.SpreadPct,
		BasisPct:  w.BasisPct,
		Timestamp: time.UnixMilli(w.Ts),
	}
	return nil
}

// Quote is a validated best-bid/best-ask observation read off a venue stream.
type Quote struct {
	Venue      Venue
	Symbol     string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	ReceivedAt time.Time
}
