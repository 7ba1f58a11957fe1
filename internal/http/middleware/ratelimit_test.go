package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(0.5, 1)(okHandler(nil))

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/intake/catalog", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	h.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/intake/catalog", nil)
	req.RemoteAddr = "192.0.2.10:6666"
	h.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "2", second.Header().Get("Retry-After"))

	other := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/intake/catalog", nil)
	req.Header.Set("X-Real-Ip", "198.51.100.7")
	h.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}
