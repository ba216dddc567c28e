package admission

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/repository"
)

const (
	HeaderAPIKey = "X-API-Key"
	unknownIP    = "unknown"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("too many requests")
	ErrBadSymbols   = errors.New("invalid symbols")
)

type Config struct {
	APIKey   string
	AllowIPs []string
	// TrustedProxies are the peers whose X-Forwarded-For is believed. Empty
	// trusts every peer, so any client can pick the IP the allow-list and the
	// rate limit see.
	TrustedProxies []string
}

// Guard runs the boundary checks a request must pass before a delivery
// channel is opened: IP allow-list, shared key, then the rate limit.
type Guard struct {
	apiKey  string
	allow   map[string]struct{}
	proxies map[string]struct{}
	limiter repository.RateLimiter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewGuard(cfg Config, limiter repository.RateLimiter, m *metrics.Metrics, logger *zap.Logger) *Guard {
	return &Guard{
		apiKey:  cfg.APIKey,
		allow:   ipSet(cfg.AllowIPs),
		proxies: ipSet(cfg.TrustedProxies),
		limiter: limiter,
		metrics: m,
		logger:  logger,
	}
}

func ipSet(ips []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if ip = strings.TrimSpace(ip); ip != "" {
			set[ip] = struct{}{}
		}
	}
	return set
}

// Check returns one of the sentinel errors when the request must be refused.
// Only requests that pass the IP and key checks count against the rate limit.
func (g *Guard) Check(ctx context.Context, ip, key string) error {
	if err := g.Authorize(ip, key); err != nil {
		return err
	}
	return g.Limit(ctx, ip)
}

// Authorize runs the IP allow-list and the shared key check.
func (g *Guard) Authorize(ip, key string) error {
	if len(g.allow) > 0 {
		if _, ok := g.allow[ip]; !ok {
			return ErrForbidden
		}
	}

	if g.apiKey != "" && key != g.apiKey {
		return ErrUnauthorized
	}
	return nil
}

// Limit counts the request against ip's window.
func (g *Guard) Limit(ctx context.Context, ip string) error {
	if g.limiter == nil {
		return nil
	}
	ok, err := g.limiter.Allow(ctx, ip)
	if err != nil {
		// fail open
		g.logger.Warn("Rate limiter unavailable", zap.String("ip", ip), zap.Error(err))
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// Middleware aborts refused requests with a JSON error body. validate runs
// after the IP and key checks and before the rate limit, so requests it
// refuses do not use up the window.
func (g *Guard) Middleware(validate ...func(*gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := g.ClientIP(c.Request)
		err := g.Authorize(ip, c.GetHeader(HeaderAPIKey))
		for _, v := range validate {
			if err != nil {
				break
			}
			err = v(c)
		}
		if err == nil {
			err = g.Limit(c.Request.Context(), ip)
		}
		if err != nil {
			Reject(c, err, g.metrics)
			g.logger.Info("Request rejected", zap.String("ip", ip), zap.Error(err))
			return
		}
		c.Set("client_ip", ip)
		c.Next()
	}
}

// Reject aborts with the status matching err.
func Reject(c *gin.Context, err error, m *metrics.Metrics) {
	status, reason := Status(err)
	m.Rejections.WithLabelValues(reason).Inc()
	c.AbortWithStatusJSON(status, protocol.ErrorResponse{Error: err.Error()})
}

// Status maps a boundary error to its HTTP status and metrics label.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "ip"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "key"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate"
	case errors.Is(err, ErrBadSymbols):
		return http.StatusBadRequest, "symbols"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// ClientIP takes the first X-Forwarded-For entry when the peer is a trusted
// proxy, falling back to the connection's remote host.
func (g *Guard) ClientIP(r *http.Request) string {
	peer := remoteHost(r)

	_, trusted := g.proxies[peer]
	if len(g.proxies) == 0 || trusted {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	if peer != "" {
		return peer
	}
	return unknownIP
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
