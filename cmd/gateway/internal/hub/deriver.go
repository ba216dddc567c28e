package hub

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/basis-hub/pkg/models"
)

var hundred = decimal.NewFromInt(100)

type midEntry struct {
	mid decimal.Decimal
	at  time.Time
}

// Deriver turns raw quotes into ticks and keeps the last mid per venue and symbol
// for the cross-venue basis join.
type Deriver struct {
	maxAge time.Duration

	mu   sync.Mutex
	mids map[models.Venue]map[string]midEntry
}

// NewDeriver returns a Deriver. maxAge bounds how old the other venue's mid may be
// to still produce a basis; zero disables the bound.
func NewDeriver(maxAge time.Duration) *Deriver {
	d := &Deriver{maxAge: maxAge}
	d.Reset()
	return d
}

// Reset forgets every cached mid.
func (d *Deriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mids = map[models.Venue]map[string]midEntry{
		models.VenueSpot:    {},
		models.VenueFutures: {},
	}
}

// Derive computes the tick for one bid/ask observation and records its mid.
func (d *Deriver) Derive(venue models.Venue, symbol string, bid, ask decimal.Decimal, at time.Time) models.Tick {
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	spread := ask.Sub(bid)

	spreadPct := decimal.Zero
	if !mid.IsZero() {
		spreadPct = spread.Div(mid).Mul(hundred)
	}

	d.mu.Lock()
	d.mids[venue][symbol] = midEntry{mid: mid, at: at}
	spot, spotOK := d.mids[models.VenueSpot][symbol]
	fut, futOK := d.mids[models.VenueFutures][symbol]
	d.mu.Unlock()

	tick := models.Tick{
		Venue:     venue,
		Symbol:    symbol,
		Bid:       bid.InexactFloat64(),
		Ask:       ask.InexactFloat64(),
		Mid:       mid.InexactFloat64(),
		Spread:    spread.InexactFloat64(),
		SpreadPct: spreadPct.InexactFloat64(),
		Timestamp: at,
	}

	if spotOK && futOK && !spot.mid.IsZero() && !fut.mid.IsZero() && d.fresh(spot, fut) {
		basis := fut.mid.Sub(spot.mid).Div(spot.mid).Mul(hundred).InexactFloat64()
		tick.BasisPct = &basis
	}

	return tick
}

func (d *Deriver) fresh(a, b midEntry) bool {
	if d.maxAge <= 0 {
		return true
	}
	gap := a.at.Sub(b.at)
	if gap < 0 {
		gap = -gap
	}
	return gap <= d.maxAge
}
