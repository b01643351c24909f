package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for the rate limiting middleware
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed per window
	RequestLimit int
	// WindowSize is the sliding window length
	WindowSize time.Duration
	// KeyFunc extracts the limit key from the request. Defaults to the client IP.
	KeyFunc func(r *http.Request) (string, error)
	// Exempt, when set, lets matching requests through without counting them.
	Exempt func(r *http.Request) bool
}

// RateLimit returns a sliding-window rate limiter keyed by client IP unless
// KeyFunc is set. Rejected requests get a JSON 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	limiter := httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(cfg.WindowSize.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
		}),
	)
	if cfg.Exempt == nil {
		return limiter
	}

	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Exempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// IsLoopback reports whether the request's peer address is a loopback
// address. Forwarding headers are ignored.
func IsLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ProbeRateLimit limits speed probe fetches. A client estimating once per
// source change stays far below it. The server's own probes arrive over
// loopback and are not counted.
func ProbeRateLimit() func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: 120,
		WindowSize:   time.Minute,
		Exempt:       IsLoopback,
	})
}

// PerfTestRateLimit limits perf-test submissions, each of which fetches
// remote media for up to the test window.
func PerfTestRateLimit() func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: 10,
		WindowSize:   time.Minute,
	})
}
