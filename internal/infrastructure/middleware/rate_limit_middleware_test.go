package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func limitedRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func get(router http.Handler, remote, xff string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false
	router := limitedRouter(cfg)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(router, "", "").Code)
	}
}

func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0.01
	cfg.RateLimiting.HTTP.Burst = 1
	router := limitedRouter(cfg)

	assert.Equal(t, http.StatusOK, get(router, "", "").Code)

	w := get(router, "", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestHTTPRateLimitMiddleware_PerClient(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0.01
	cfg.RateLimiting.HTTP.Burst = 1
	router := limitedRouter(cfg)

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:5000", "").Code)
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.2:5000", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:5001", "").Code)

	// Same proxy, different forwarded clients.
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.9:1", "192.168.1.1, 10.0.0.9").Code)
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.9:1", "192.168.1.2").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:999"
	assert.Equal(t, "1.2.3.4", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 5.6.7.8 , 1.2.3.4")
	assert.Equal(t, "5.6.7.8", clientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "1.2.3.4", clientIP(req))
}

func TestRateLimiterStore_SweepsIdleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	store := newRateLimiterStore(rate.Limit(1), 1)
	store.now = func() time.Time { return now }

	store.getLimiter("a")
	store.getLimiter("b")
	require.Equal(t, 2, store.size())

	now = now.Add(limiterIdleTTL + time.Second)
	store.getLimiter("c")
	assert.Equal(t, 1, store.size())
}
