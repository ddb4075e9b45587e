package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/forkline/api/internal/platform/auth"
	"github.com/forkline/api/internal/platform/httpx"
)

// windowLimiter is a fixed-window counter keyed by caller. State lives in
// process memory; with more than one instance the effective limit scales with
// the instance count, which is acceptable for abuse protection.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]*callerWindow
}

type callerWindow struct {
	count   int
	expires time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) *windowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]*callerWindow),
	}
}

// allow counts one request against the caller's current window. Opening a
// fresh window doubles as the pruning pass for expired callers.
func (l *windowLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	if strings.TrimSpace(key) == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.windows[key]
	if current == nil || now.After(current.expires) {
		for caller, w := range l.windows {
			if now.After(w.expires) {
				delete(l.windows, caller)
			}
		}
		l.windows[key] = &callerWindow{count: 1, expires: now.Add(l.window)}
		return true
	}

	if current.count >= l.limit {
		return false
	}
	current.count++
	return true
}

// RateLimitMiddleware caps requests per caller within the window. The key is
// the authenticated UID when present, otherwise the remote host.
func RateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	limiter := newWindowLimiter(limit, window, time.Now)
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientKey(r)) {
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests; slow down", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		return "uid:" + identity.UID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
