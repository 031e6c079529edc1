package infrastructure

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 5000
)

// IPRateLimiter keeps one token bucket per client address. Idle buckets
// expire after a few windows so the map does not grow without bound.
type IPRateLimiter struct {
	limit          rate.Limit
	burst          int
	window         time.Duration
	bypassPrefixes []string
	buckets        *cache.Cache
}

func NewIPRateLimiter(requestsPerWindow int, window time.Duration, bypassPrefixes []string) *IPRateLimiter {
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	if requestsPerWindow <= 0 {
		requestsPerWindow = defaultRateLimitRequests
	}

	return &IPRateLimiter{
		limit:          rate.Every(window / time.Duration(requestsPerWindow)),
		burst:          requestsPerWindow,
		window:         window,
		bypassPrefixes: bypassPrefixes,
		buckets:        cache.New(3*window, 5*window),
	}
}

// Allow reports whether ip may proceed, and if not how long it should wait.
func (l *IPRateLimiter) Allow(ip string) (bool, time.Duration) {
	limiter := l.limiterFor(ip)
	reservation := limiter.Reserve()
	if !reservation.OK() {
		return false, l.window
	}

	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return false, delay
	}

	return true, 0
}

func (l *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	if ip == "" {
		ip = "unknown"
	}

	if cached, ok := l.buckets.Get(ip); ok {
		limiter := cached.(*rate.Limiter)
		l.buckets.SetDefault(ip, limiter)
		return limiter
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.buckets.Add(ip, limiter, cache.DefaultExpiration); err != nil {
		// lost the race against a concurrent request from the same address
		if cached, ok := l.buckets.Get(ip); ok {
			return cached.(*rate.Limiter)
		}
	}

	return limiter
}

func (l *IPRateLimiter) bypass(path string) bool {
	for _, prefix := range l.bypassPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.bypass(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ok, retryAfter := l.Allow(clientIPFromRequest(r))
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":        "rate_limited",
				"retryAfterMs": retryAfter.Milliseconds(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
