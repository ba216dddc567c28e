package admission_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/admission"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/repository"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestGuard_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("open by default", func(t *testing.T) {
		g := admission.NewGuard(admission.Config{}, nil, metrics.New(), zap.NewNop())
		assert.NoError(t, g.Check(ctx, "1.2.3.4", ""))
	})

	t.Run("allow list", func(t *testing.T) {
		g := admission.NewGuard(admission.Config{AllowIPs: []string{" 10.0.0.1", "10.0.0.2"}}, nil, metrics.New(), zap.NewNop())
		assert.NoError(t, g.Check(ctx, "10.0.0.1", ""))
		assert.ErrorIs(t, g.Check(ctx, "10.0.0.3", ""), admission.ErrForbidden)
	})

	t.Run("api key", func(t *testing.T) {
		g := admission.NewGuard(admission.Config{APIKey: "s3cret"}, nil, metrics.New(), zap.NewNop())
		assert.NoError(t, g.Check(ctx, "1.2.3.4", "s3cret"))
		assert.ErrorIs(t, g.Check(ctx, "1.2.3.4", ""), admission.ErrUnauthorized)
		assert.ErrorIs(t, g.Check(ctx, "1.2.3.4", "wrong"), admission.ErrUnauthorized)
	})

	t.Run("ip checked before key", func(t *testing.T) {
		g := admission.NewGuard(admission.Config{APIKey: "k", AllowIPs: []string{"10.0.0.1"}}, nil, metrics.New(), zap.NewNop())
		assert.ErrorIs(t, g.Check(ctx, "10.0.0.9", "bad"), admission.ErrForbidden)
	})

	t.Run("rate limit", func(t *testing.T) {
		g := admission.NewGuard(admission.Config{}, repository.NewMemoryRateLimiter(2, time.Minute), metrics.New(), zap.NewNop())
		require.NoError(t, g.Check(ctx, "1.2.3.4", ""))
		require.NoError(t, g.Check(ctx, "1.2.3.4", ""))
		assert.ErrorIs(t, g.Check(ctx, "1.2.3.4", ""), admission.ErrRateLimited)
		assert.NoError(t, g.Check(ctx, "5.6.7.8", ""))
	})

	t.Run("rejected key does not consume quota", func(t *testing.T) {
		g := admission.NewGuard(admission.Config{APIKey: "k"}, repository.NewMemoryRateLimiter(1, time.Minute), metrics.New(), zap.NewNop())
		for i := 0; i < 3; i++ {
			assert.ErrorIs(t, g.Check(ctx, "1.2.3.4", "bad"), admission.ErrUnauthorized)
		}
		assert.NoError(t, g.Check(ctx, "1.2.3.4", "k"))
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		g := admission.NewGuard(admission.Config{}, brokenLimiter{}, metrics.New(), zap.NewNop())
		assert.NoError(t, g.Check(ctx, "1.2.3.4", ""))
	})
}

func TestGuard_ClientIP(t *testing.T) {
	g := admission.NewGuard(admission.Config{}, nil, metrics.New(), zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", g.ClientIP(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", g.ClientIP(r))

	r = httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	r.RemoteAddr = ""
	assert.Equal(t, "unknown", g.ClientIP(r))
}

func TestGuard_ClientIP_TrustedProxies(t *testing.T) {
	g := admission.NewGuard(admission.Config{TrustedProxies: []string{"10.0.0.5"}}, nil, metrics.New(), zap.NewNop())

	spoofed := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	spoofed.RemoteAddr = "192.0.2.1:5555"
	spoofed.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "192.0.2.1", g.ClientIP(spoofed), "untrusted peer cannot pick its IP")

	proxied := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	proxied.RemoteAddr = "10.0.0.5:443"
	proxied.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.5")
	assert.Equal(t, "203.0.113.7", g.ClientIP(proxied))
}

func TestGuard_Middleware_AllowListIgnoresSpoofedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := admission.NewGuard(admission.Config{
		AllowIPs:       []string{"203.0.113.7"},
		TrustedProxies: []string{"10.0.0.5"},
	}, nil, metrics.New(), zap.NewNop())

	r := gin.New()
	r.GET("/v1/stream", g.Middleware(), func(c *gin.Context) { c.String(http.StatusOK, c.GetString("client_ip")) })

	req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	req.RemoteAddr = "198.51.100.9:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "203.0.113.7", w.Body.String())
}

func TestStatus(t *testing.T) {
	cases := map[error]int{
		admission.ErrForbidden:    http.StatusForbidden,
		admission.ErrUnauthorized: http.StatusUnauthorized,
		admission.ErrRateLimited:  http.StatusTooManyRequests,
		admission.ErrBadSymbols:   http.StatusBadRequest,
	}
	for err, want := range cases {
		got, _ := admission.Status(err)
		assert.Equal(t, want, got, err.Error())
	}
}

func TestGuard_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	g := admission.NewGuard(admission.Config{APIKey: "k"}, repository.NewMemoryRateLimiter(1, time.Minute), m, zap.NewNop())

	r := gin.New()
	r.GET("/v1/stream", g.Middleware(), func(c *gin.Context) { c.String(http.StatusOK, "open") })

	do := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.1")
		if key != "" {
			req.Header.Set(admission.HeaderAPIKey, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())

	w = do("k")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "open", w.Body.String())

	w = do("k")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("key")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("rate")))
}

func TestGuard_Middleware_ValidationBeforeRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	g := admission.NewGuard(admission.Config{}, repository.NewMemoryRateLimiter(1, time.Minute), m, zap.NewNop())

	validate := func(c *gin.Context) error {
		if c.Query("symbols") == "bad" {
			return admission.ErrBadSymbols
		}
		return nil
	}
	r := gin.New()
	r.GET("/v1/stream", g.Middleware(validate), func(c *gin.Context) { c.String(http.StatusOK, "open") })

	do := func(query string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/stream"+query, nil)
		req.RemoteAddr = "198.51.100.1:1000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusBadRequest, do("?symbols=bad"))
	assert.Equal(t, http.StatusBadRequest, do("?symbols=bad"))
	assert.Equal(t, http.StatusOK, do(""), "refused requests must not fill the window")
	assert.Equal(t, http.StatusTooManyRequests, do(""))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejections.WithLabelValues("symbols")))
}
