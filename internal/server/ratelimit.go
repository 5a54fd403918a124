package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// RateLimitConfig holds token bucket settings. A zero RequestsPerSecond
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond int `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond,omitempty"`
	Burst             int `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// rateLimiter is a channel-backed token bucket. The tokens channel is the
// bucket (capacity burst), refilled by a ticker goroutine until Stop.
//
// A nil *rateLimiter allows everything.
type rateLimiter struct {
	tokens   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// newRateLimiter returns nil when requestsPerSecond <= 0. A non-positive
// burst defaults to requestsPerSecond.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerSecond
	}

	l := &rateLimiter{
		tokens: make(chan struct{}, burst),
		stop:   make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}

	interval := time.Second / time.Duration(cfg.RequestsPerSecond)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
				}
			case <-l.stop:
				return
			}
		}
	}()
	return l
}

// Allow consumes a token without blocking.
func (l *rateLimiter) Allow() bool {
	if l == nil {
		return true
	}
	select {
	case <-l.tokens:
		return true
	default:
		return false
	}
}

// Stop ends the refill goroutine. Safe to call more than once.
func (l *rateLimiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			logger.Warn("rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeJSON(w, http.StatusTooManyRequests, tabular.ErrorResponse{Detail: "Rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
