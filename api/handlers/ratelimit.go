package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/malbeclabs/ados/api/metrics"
	"golang.org/x/time/rate"
)

// RateLimitError is returned when rate limit is exceeded.
type RateLimitError struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"` // seconds
}

// RateLimiter provides per-IP rate limiting.
type RateLimiter struct {
	name    string
	mu      sync.Mutex
	entries map[string]*rateLimiterEntry
	rate    rate.Limit
	burst   int
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter with the given rate (tokens per second) and burst.
// For example, NewRateLimiter("compile", rate.Every(time.Minute/30), 5) allows 30
// requests a minute per IP with a burst of 5. name labels the rejection metric.
func NewRateLimiter(name string, r rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		name:    name,
		entries: make(map[string]*rateLimiterEntry),
		rate:    r,
		burst:   burst,
		idle:    5 * time.Minute,
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow checks if a request from the given IP is allowed.
func (rl *RateLimiter) Allow(ip string) bool {
	allowed, _ := rl.AllowWithRetry(ip)
	return allowed
}

// AllowWithRetry checks if a request is allowed and returns time until next token if not.
func (rl *RateLimiter) AllowWithRetry(ip string) (allowed bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.entries[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.entries[ip] = entry
	}
	entry.lastSeen = time.Now()

	reservation := entry.limiter.Reserve()
	if !reservation.OK() {
		return false, time.Minute
	}
	if delay := reservation.Delay(); delay > 0 {
		// Not available now; give the token back.
		reservation.Cancel()
		return false, delay
	}
	return true, 0
}

// Close stops the cleanup loop.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.idle)
		for ip, entry := range rl.entries {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.entries, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func retrySeconds(d time.Duration) int {
	return max(int(d.Seconds()), 1)
}

// RateLimitMiddleware rejects requests over the limiter's per-IP rate with 429.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := limiter.AllowWithRetry(GetIPFromRequest(r))
			if !allowed {
				metrics.RateLimitedTotal.WithLabelValues(limiter.name).Inc()
				seconds := retrySeconds(retryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeJSON(w, http.StatusTooManyRequests, RateLimitError{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests. Please slow down.",
					RetryAfter: seconds,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckRateLimit returns an empty string when allowed, or a message with the retry time.
func CheckRateLimit(limiter *RateLimiter, ip string) string {
	allowed, retryAfter := limiter.AllowWithRetry(ip)
	if allowed {
		return ""
	}
	metrics.RateLimitedTotal.WithLabelValues(limiter.name).Inc()
	return "rate limit exceeded, please try again in " + strconv.Itoa(retrySeconds(retryAfter)) + " seconds"
}
