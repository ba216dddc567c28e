package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/gateway"
)

const idleHeartbeats = 3

const symbolsKey = "symbols"

// requireSymbols runs inside the guard so a malformed query is refused
// before it is counted against the rate limit.
func (s *Server) requireSymbols(c *gin.Context) error {
	symbols, err := ParseSymbols(c.Query("symbols"), s.cfg.DefaultSymbols, s.cfg.MaxSymbols)
	if err != nil {
		return err
	}
	c.Set(symbolsKey, symbols)
	return nil
}

func (s *Server) newClient(c *gin.Context, symbols []string, sink gateway.Sink) *gateway.Client {
	id := uuid.NewString()
	logger := s.logger.With(zap.String("ip", c.GetString("client_ip")))
	return gateway.NewClient(id, symbols, s.hub, sink, s.cfg.Channel, s.metrics, logger)
}

// stream serves a delivery channel as server-sent events.
func (s *Server) stream(c *gin.Context) {
	symbols := c.GetStringSlice(symbolsKey)

	sink, err := gateway.NewSSESink(c.Writer)
	if err != nil {
		s.logger.Error("SSE unsupported", zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	client := s.newClient(c, symbols, sink)
	if err := client.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("Stream ended", zap.String("client_id", client.ID()), zap.Error(err))
	}
}

// websocket serves a delivery channel over a websocket connection.
func (s *Server) websocket(c *gin.Context) {
	symbols := c.GetStringSlice(symbolsKey)

	conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		s.logger.Warn("Upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	heartbeat := s.cfg.Channel.Heartbeat
	if heartbeat <= 0 {
		heartbeat = gateway.DefaultHeartbeat
	}
	sink := gateway.NewWSSink(conn)
	go sink.WatchDisconnect(idleHeartbeats*heartbeat, cancel, s.logger)

	client := s.newClient(c, symbols, sink)
	if err := client.Serve(ctx); err != nil {
		s.logger.Debug("Websocket ended", zap.String("client_id", client.ID()), zap.Error(err))
	}
}
