package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtinfra "github.com/notify-relay/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRealIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, "", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-Ip": "9.10.11.12"}, "", "9.10.11.12"},
		{"forwarded wins", map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-Ip": "2.2.2.2"}, "", "1.1.1.1"},
		{"remote addr", nil, "192.168.1.1:54321", "192.168.1.1"},
		{"remote addr without port", nil, "192.168.1.9", "192.168.1.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if tc.remote != "" {
				req.RemoteAddr = tc.remote
			}
			assert.Equal(t, tc.want, realIP(req))
		})
	}
}

func hit(h http.Handler, remote string, claims *jwtinfra.Claims) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/push/subscribe", nil)
	req.RemoteAddr = remote
	if claims != nil {
		req = req.WithContext(WithClaims(req.Context(), claims))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 2)
	t.Cleanup(rl.Stop)
	h := rl.Limit(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for range 3 {
		last = hit(h, "10.0.0.1:1234", nil)
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234", nil).Code)
}

func TestRateLimiter_KeysByUserWhenAuthenticated(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	t.Cleanup(rl.Stop)
	h := rl.Limit(http.HandlerFunc(okHandler))

	// two users behind one NAT address get separate budgets
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", &jwtinfra.Claims{UserID: "u1"}).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:2", &jwtinfra.Claims{UserID: "u2"}).Code)
	// one user from two addresses shares a budget
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.9:1", &jwtinfra.Claims{UserID: "u1"}).Code)
}

func TestRateLimiter_SweepDropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	t.Cleanup(rl.Stop)
	now := time.Now()
	rl.bucketFor("ip:a", now.Add(-time.Hour))
	rl.bucketFor("ip:b", now)

	rl.sweep(now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.buckets, "ip:a")
	assert.Contains(t, rl.buckets, "ip:b")
}
