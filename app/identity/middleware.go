package identity

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// callerIdle is how long an unused bucket survives a sweep.
const callerIdle = 10 * time.Minute

type bucket struct {
	tokens *rate.Limiter
	seen   time.Time
}

// CallerLimiter hands each caller its own token bucket. Judges are keyed by
// ID so a venue's shared NAT address does not pool their budgets; anonymous
// callers fall back to their address.
type CallerLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	every     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewCallerLimiter(every rate.Limit, burst int) *CallerLimiter {
	return &CallerLimiter{
		buckets: map[string]*bucket{},
		every:   every,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow spends one token from key's bucket.
func (l *CallerLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > callerIdle {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > callerIdle {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.tokens.AllowN(now, 1)
}

// Len reports how many buckets are live.
func (l *CallerLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// callerKey prefers the authenticated judge over the client address.
func callerKey(r *http.Request) string {
	if id, ok := FromContext(r.Context()); ok && id.JudgeID != "" {
		return "judge:" + id.JudgeID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// RateLimit answers 429 once the caller's bucket is empty. Mount it after
// Middleware so judges are told apart.
func RateLimit(l *CallerLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow(callerKey(r)) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		})
	}
}

// CORSMiddleware sets CORS headers for the configured origins. With no
// origins configured it only answers preflight requests.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				if _, ok := origins[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Judge-ID, X-Role")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
