package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"invokeledger/observability"
)

type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client.
type RateLimiter struct {
	logger    *slog.Logger
	limit     RateLimit
	mu        sync.Mutex
	visitors  map[string]*visitor
	clockNow  func() time.Time
	idleTTL   time.Duration
	lastSweep time.Time
}

func NewRateLimiter(limit RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limit:    limit,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
		idleTTL:  5 * time.Minute,
	}
}

// Middleware throttles requests; key labels the throttle metric.
func (r *RateLimiter) Middleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.limit.RequestsPerMinute <= 0 {
				next.ServeHTTP(w, req)
				return
			}
			id := clientID(req)
			if !r.allow(id) {
				observability.ModuleMetrics().RecordThrottle(key, "rate_limit")
				r.logger.Debug("request throttled", slog.String("module", key), slog.String("path", req.URL.Path))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) allow(id string) bool {
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.lastSweep) >= r.idleTTL {
		r.sweep(now)
	}
	v, ok := r.visitors[id]
	if !ok {
		perSecond := r.limit.RequestsPerMinute / 60.0
		burst := r.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
		r.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep drops visitors idle for longer than idleTTL. Callers hold r.mu.
func (r *RateLimiter) sweep(now time.Time) {
	for id, v := range r.visitors {
		if now.Sub(v.lastSeen) > r.idleTTL {
			delete(r.visitors, id)
		}
	}
	r.lastSweep = now
}

func (r *RateLimiter) visitorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

func clientID(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return first
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
