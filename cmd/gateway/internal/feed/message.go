package feed

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/basis-hub/pkg/models"
)

// combined-stream envelope: {"stream":"btcusdt@bookTicker","data":{...}}
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// bookTicker carries the fields we need from a best-bid/best-ask update.
// Prices arrive as quoted decimals but bare numbers are accepted too.
type bookTicker struct {
	Symbol string          `json:"s"`
	Bid    json.RawMessage `json:"b"`
	Ask    json.RawMessage `json:"a"`
}

// Prices outside 1e-18..1e18 in scale are not market data.
const maxPriceExponent = 18

// DecodeQuote parses one upstream frame. ok is false for anything that lacks a
// valid symbol or a finite, non-negative bid and ask.
func DecodeQuote(venue models.Venue, raw []byte, at time.Time) (models.Quote, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.Quote{}, false
	}

	data := env.Data
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = raw
	}

	var bt bookTicker
	if err := json.Unmarshal(data, &bt); err != nil {
		return models.Quote{}, false
	}

	symbol, ok := models.NormalizeSymbol(bt.Symbol)
	if !ok {
		return models.Quote{}, false
	}
	bid, ok := parsePrice(bt.Bid)
	if !ok {
		return models.Quote{}, false
	}
	ask, ok := parsePrice(bt.Ask)
	if !ok {
		return models.Quote{}, false
	}

	return models.Quote{Venue: venue, Symbol: symbol, Bid: bid, Ask: ask, ReceivedAt: at}, true
}

func parsePrice(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, false
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, false
		}
	}

	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	if exp := d.Exponent(); exp > maxPriceExponent || exp < -maxPriceExponent {
		return decimal.Zero, false
	}
	if d.IsNegative() || math.IsInf(d.InexactFloat64(), 0) {
		return decimal.Zero, false
	}
	return d, true
}

// StreamURL builds the combined-stream URL subscribing to bookTicker for every symbol.
func StreamURL(base string, symbols []string) string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@bookTicker"
	}
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}
