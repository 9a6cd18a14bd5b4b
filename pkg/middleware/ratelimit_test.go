package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bjamilk/campusmarket/pkg/logger"
)

func TestRateLimiter_BurstThen429(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, logger.NewNop())
	h := rl.Middleware(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimiter_KeysByIdentity(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, logger.NewNop())
	h := Identify("", logger.NewNop())(rl.Middleware(http.HandlerFunc(okHandler)))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set(HeaderUserID, user)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusOK, send("b"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
}

func TestLimiterStore_Evict(t *testing.T) {
	s := newLimiterStore(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.allow("old")
	now = now.Add(10 * time.Minute)
	s.allow("fresh")
	s.evict(5 * time.Minute)

	assert.Len(t, s.visitors, 1)
	assert.Contains(t, s.visitors, "fresh")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(req))
}
