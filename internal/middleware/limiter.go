package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront-be/internal/auth"
	"storefront-be/internal/httpx"

	"golang.org/x/time/rate"
)

// Rate Limit Tiers
const (
	// Payment gateway initiate/verify (Strict)
	limitStrict = rate.Limit(2)
	burstStrict = 5

	// Order placement and cancellation
	limitOrders = rate.Limit(5)
	burstOrders = 10

	// General (Default)
	limitGeneral = rate.Limit(10)
	burstGeneral = 20

	visitorTTL      = 3 * time.Minute
	cleanupInterval = time.Minute
)

type tier struct {
	name  string
	limit rate.Limit
	burst int
}

var (
	tierStrict  = tier{"strict", limitStrict, burstStrict}
	tierOrders  = tier{"orders", limitOrders, burstOrders}
	tierGeneral = tier{"general", limitGeneral, burstGeneral}
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller identity and tier.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewRateLimiter starts the eviction loop; it stops when ctx is done.
func NewRateLimiter(ctx context.Context) *RateLimiter {
	l := &RateLimiter{
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
	go l.cleanupLoop(ctx)
	return l
}

func (l *RateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *RateLimiter) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, key)
		}
	}
}

func (l *RateLimiter) limiterFor(key string, t tier) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

// Middleware rejects callers that exhausted their bucket with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := resolveTier(r)
		key := identity(r) + ":" + t.name

		if !l.limiterFor(key, t).Allow() {
			httpx.WriteMessage(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// identity prefers the authenticated user, then the client IP.
func identity(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return "user:" + p.UserID
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}

func resolveTier(r *http.Request) tier {
	path := r.URL.Path

	if strings.HasPrefix(path, "/payments/khalti/") {
		return tierStrict
	}

	if strings.HasPrefix(path, "/orders") && r.Method != http.MethodGet {
		return tierOrders
	}

	return tierGeneral
}
