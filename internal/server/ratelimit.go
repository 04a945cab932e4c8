package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/supervisor"
)

const (
	visitorIdleTTL = 3 * time.Minute
	sweepInterval  = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles session-creating requests per client IP.
type rateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *zap.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newRateLimiter(rps float64, burst int, logger *zap.Logger) *rateLimiter {
	return &rateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger.Named("ratelimit"),
		visitors: make(map[string]*visitor),
	}
}

func (l *rateLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the per-IP budget with 429.
func (l *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RealIP has already rewritten RemoteAddr when a proxy header is present.
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.allow(ip, time.Now()) {
			l.logger.Debug("Request rate limited.", zap.String("ip", ip), zap.String("path", r.URL.Path))
			supervisor.WriteJSON(w, http.StatusTooManyRequests, schemas.StatusResponse{
				Status:  schemas.StatusError,
				Message: "too many requests",
			}, l.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sweep drops idle visitors until ctx is done.
func (l *rateLimiter) sweep(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			l.evictIdle(now)
		}
	}
}

func (l *rateLimiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(l.visitors, ip)
		}
	}
}
