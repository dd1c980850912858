package server

import (
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/vaultchat-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests-per-second allowed per IP on
	// rate-limited endpoints when no explicit limit is configured.
	defaultRateLimit = 10

	// defaultRateBurst allows short spikes without immediate rejection.
	defaultRateBurst = 20

	// limiterTTL is how long an idle IP entry survives before eviction.
	limiterTTL = 5 * time.Minute

	// evictInterval is how often the eviction sweep runs.
	evictInterval = time.Minute
)

// bucket pairs a per-IP token bucket with its last activity time, so idle
// entries can be swept out of the map.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token-bucket rate limit as HTTP middleware.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	log     *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts the background eviction
// sweep. The sweep goroutine exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				rl.evict(time.Now())
			}
		}
	}()

	return rl, func() { close(stopCh) }
}

// allow reports whether a request from the given IP may proceed, creating the
// IP's bucket on first sight.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.lim.Allow()
}

// evict drops IP entries that have been idle longer than limiterTTL.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-limiterTTL)
	maps.DeleteFunc(rl.buckets, func(_ string, b *bucket) bool {
		return b.lastSeen.Before(cutoff)
	})
}

// middleware rejects over-limit requests with 429 Too Many Requests and a
// Retry-After header, logging a WARN entry for each rejection.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is deliberately ignored since this server is local-only.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}
