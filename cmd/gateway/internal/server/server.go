package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/admission"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/pkg/models"
)

// Hub is what the HTTP layer needs from the market-data hub.
type Hub interface {
	gateway.Broker
	Started() bool
	Union() []string
}

type Config struct {
	DefaultSymbols []string
	MaxSymbols     int
	AllowedOrigins []string
	Channel        gateway.Options
}

type Server struct {
	cfg     Config
	hub     Hub
	guard   *admission.Guard
	metrics *metrics.Metrics
	logger  *zap.Logger

	// base outlives requests; cancelling it closes every open channel
	base   context.Context
	cancel context.CancelFunc
}

func New(cfg Config, h Hub, guard *admission.Guard, m *metrics.Metrics, logger *zap.Logger) *Server {
	if cfg.MaxSymbols <= 0 {
		cfg.MaxSymbols = models.MaxSymbolsPerSubscriber
	}
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		hub:     h,
		guard:   guard,
		metrics: m,
		logger:  logger,
		base:    base,
		cancel:  cancel,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(cors.New(s.corsConfig()))

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := router.Group("/v1", s.guard.Middleware(s.requireSymbols))
	v1.GET("/stream", s.stream)
	v1.GET("/ws", s.websocket)

	return router
}

// Close ends every open delivery channel.
func (s *Server) Close() { s.cancel() }

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Accept", "Cache-Control", admission.HeaderAPIKey},
		ExposeHeaders: []string{"Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = s.cfg.AllowedOrigins
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

func (s *Server) health(c *gin.Context) {
	union := s.hub.Union()
	if union == nil {
		union = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"started": s.hub.Started(),
		"symbols": union,
	})
}

// ParseSymbols reads the symbols query value. An empty value means defaults;
// any malformed entry rejects the request; excess symbols are dropped.
func ParseSymbols(raw string, defaults []string, max int) ([]string, error) {
	parts := models.SplitSymbols(raw)
	if len(parts) == 0 {
		parts = defaults
	}
	for _, p := range parts {
		if _, ok := models.NormalizeSymbol(p); !ok {
			return nil, fmt.Errorf("%w: %q", admission.ErrBadSymbols, p)
		}
	}
	return models.NormalizeSymbols(parts, max), nil
}
