/*
Package limiter provides per-client-IP rate limiting for the gateway's sensitive endpoints.

Each IP gets its own token bucket (rate.Limiter). A background sweep drops buckets that have
refilled completely so idle clients do not accumulate in memory.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"eduportal/internal/pkg/errs"
	"eduportal/internal/pkg/logx"
	"eduportal/internal/pkg/resp"
)

// DefaultSweepInterval is how often idle buckets are removed.
const DefaultSweepInterval = 3 * time.Minute

// IPRateLimiter hands out one token bucket per client IP address.
type IPRateLimiter struct {
	// mu protects the limits map.
	mu sync.RWMutex

	// limits maps client IP address to its bucket.
	limits map[string]*rate.Limiter

	// r is the refill rate of every bucket, in events per second.
	r rate.Limit

	// b is the bucket size.
	b int

	logger zerolog.Logger
}

// NewIPRateLimiter creates a limiter with refill rate r and burst b.
// The idle-bucket sweep runs until ctx is cancelled.
func NewIPRateLimiter(ctx context.Context, r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		logger: logx.Component("limiter"),
	}

	go i.sweepLoop(ctx, DefaultSweepInterval)

	return i
}

// GetLimiter returns the bucket for ip, creating it on first use.
// Creation uses double-checked locking so concurrent first requests share one bucket.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.limits[ip]
	i.mu.RUnlock()

	if exists {
		return limiter
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, exists = i.limits[ip]
	if !exists {
		limiter = rate.NewLimiter(i.r, i.b)
		i.limits[ip] = limiter
	}

	return limiter
}

// Len returns the number of tracked IPs.
func (i *IPRateLimiter) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.limits)
}

func (i *IPRateLimiter) sweepLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			i.sweep(now)
		}
	}
}

// sweep removes buckets that are full at now, i.e. clients that have been idle long enough to refill.
func (i *IPRateLimiter) sweep(now time.Time) int {
	i.mu.Lock()
	removed := 0
	for ip, limiter := range i.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(i.limits, ip)
			removed++
		}
	}
	remaining := len(i.limits)
	i.mu.Unlock()

	if removed > 0 {
		i.logger.Debug().
			Int("removed", removed).
			Int("remaining", remaining).
			Msg("Rate limiter sweep removed idle IPs")
	}

	return removed
}

// ClientIP extracts the client address from r.RemoteAddr (already rewritten by middleware.RealIP).
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		ip = "unknown_ip"
	}

	return ip
}

// Middleware rejects requests over the per-IP limit with ErrRateLimitExceeded (HTTP 429).
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		if !i.GetLimiter(ip).Allow() {
			i.logger.Warn().
				Str("remote_ip", logx.AnonymizeIP(ip)).
				Str("path", r.URL.Path).
				Msg("Request rejected: rate limit exceeded")
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
