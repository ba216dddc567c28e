package generator

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server speaks the venue's combined-stream protocol:
// GET [/<venue>]/stream?streams=btcusdt@bookTicker/ethusdt@bookTicker
type Server struct {
	logger   *zap.Logger
	gen      *QuoteGenerator
	clock    Clock
	interval time.Duration
	upgrader websocket.Upgrader
}

func NewServer(logger *zap.Logger, gen *QuoteGenerator, clock Clock, interval time.Duration) *Server {
	return &Server{
		logger:   logger,
		gen:      gen,
		clock:    clock,
		interval: interval,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// ParseStreams returns the uppercase symbols of every bookTicker stream.
func ParseStreams(raw string) []string {
	var symbols []string
	for _, s := range strings.Split(raw, "/") {
		name, kind, ok := strings.Cut(s, "@")
		if !ok || kind != "bookTicker" || name == "" {
			continue
		}
		symbols = append(symbols, strings.ToUpper(name))
	}
	return symbols
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/stream") {
		http.NotFound(w, r)
		return
	}
	venue := strings.Trim(strings.TrimSuffix(r.URL.Path, "/stream"), "/")
	if venue == "" {
		venue = VenueSpot
	}
	symbols := ParseStreams(r.URL.Query().Get("streams"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Info("Venue client connected", zap.String("venue", venue), zap.Strings("symbols", symbols))

	// clients never send data; a read error means they left
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			s.logger.Info("Venue client disconnected", zap.String("venue", venue))
			return
		default:
		}

		for _, sym := range symbols {
			payload, err := json.Marshal(s.gen.Next(venue, sym))
			if err != nil {
				s.logger.Error("Marshal frame", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
		s.clock.Sleep(s.interval)
	}
}
