package generator

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	halfSpread  = decimal.NewFromFloat(0.0001) // of mid
	maxStep     = decimal.NewFromFloat(0.001)  // of mid, per update
	futuresLift = decimal.NewFromFloat(1.0005)
	floor       = decimal.NewFromFloat(0.01)
)

const (
	VenueSpot    = "spot"
	VenueFutures = "futures"
)

// QuoteGenerator random-walks one mid per symbol and quotes both venues
// around it, futures at a small premium.
type QuoteGenerator struct {
	mu          sync.Mutex
	rand        Rand
	basePx      decimal.Decimal
	mids        map[string]decimal.Decimal
	seqCounters map[string]int64
}

func NewQuoteGenerator(basePx float64, rnd Rand) *QuoteGenerator {
	return &QuoteGenerator{
		rand:        rnd,
		basePx:      decimal.NewFromFloat(basePx),
		mids:        make(map[string]decimal.Decimal),
		seqCounters: make(map[string]int64),
	}
}

// Next advances symbol's walk and returns the frame venue would send.
func (g *QuoteGenerator) Next(venue, symbol string) Frame {
	g.mu.Lock()
	defer g.mu.Unlock()

	mid, ok := g.mids[symbol]
	if !ok {
		mid = g.basePx
	}
	fluctuation := decimal.NewFromFloat(g.rand.Float64()*2 - 1)
	mid = mid.Add(mid.Mul(maxStep).Mul(fluctuation))
	if mid.LessThan(floor) {
		mid = floor
	}
	g.mids[symbol] = mid

	quoted := mid
	if venue == VenueFutures {
		quoted = mid.Mul(futuresLift)
	}
	hs := quoted.Mul(halfSpread)

	g.seqCounters[venue+symbol]++
	return Frame{
		Stream: strings.ToLower(symbol) + "@bookTicker",
		Data: BookTicker{
			UpdateID: g.seqCounters[venue+symbol],
			Symbol:   symbol,
			Bid:      quoted.Sub(hs).Round(4).String(),
			BidQty:   "1",
			Ask:      quoted.Add(hs).Round(4).String(),
			AskQty:   "1",
		},
	}
}
