package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ConnLimiter throttles new mirror connections per client IP with a token
// bucket. Each accepted request takes one token.
type ConnLimiter struct {
	mu      sync.Mutex
	clients map[string]*tokens
	rate    float64 // tokens per second
	burst   float64
	maxIPs  int
	now     func() time.Time
}

type tokens struct {
	left    float64
	updated time.Time
}

// NewConnLimiter allows burst connects at once and rate per second after that.
func NewConnLimiter(rate float64, burst int) *ConnLimiter {
	return &ConnLimiter{
		clients: make(map[string]*tokens),
		rate:    rate,
		burst:   float64(burst),
		maxIPs:  10000,
		now:     time.Now,
	}
}

// Handler rejects requests over the limit with 429 and Retry-After.
func (l *ConnLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wait, ok := l.take(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *ConnLimiter) take(ip string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	t, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= l.maxIPs {
			l.evictLocked(now)
		}
		t = &tokens{left: l.burst, updated: now}
		l.clients[ip] = t
	}

	t.left = math.Min(l.burst, t.left+now.Sub(t.updated).Seconds()*l.rate)
	t.updated = now
	if t.left < 1 {
		return time.Duration((1 - t.left) / l.rate * float64(time.Second)), false
	}
	t.left--
	return 0, true
}

// evictLocked drops clients whose bucket has refilled completely.
func (l *ConnLimiter) evictLocked(now time.Time) {
	full := time.Duration(l.burst / l.rate * float64(time.Second))
	for ip, t := range l.clients {
		if now.Sub(t.updated) >= full {
			delete(l.clients, ip)
		}
	}
}

// clientIP uses RemoteAddr only; forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
