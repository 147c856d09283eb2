package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/httpapi"
)

// maxClients bounds the limiter map; idle clients are dropped past it.
const maxClients = 10000

// Limiter keeps one token bucket per client key.
type Limiter struct {
	rate    rate.Limit
	burst   int
	label   string
	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

// PerMinute allows n requests per minute per client, all of them in a burst.
func PerMinute(n int) *Limiter {
	return &Limiter{
		rate:    rate.Every(time.Minute / time.Duration(n)),
		burst:   n,
		label:   fmt.Sprintf("%d per 1 minute", n),
		clients: make(map[string]*rate.Limiter),
	}
}

// Allow takes a token for key. When none is left it reports how long the
// client has to wait.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	lim, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= maxClients {
			l.evictIdle()
		}
		lim = rate.NewLimiter(l.rate, l.burst)
		l.clients[key] = lim
	}
	l.mu.Unlock()

	r := lim.Reserve()
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d
	}
	return true, 0
}

// evictIdle drops clients whose bucket has refilled. Caller holds l.mu.
func (l *Limiter) evictIdle() {
	for k, lim := range l.clients {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.clients, k)
		}
	}
}

// Middleware answers 429 with a Retry-After header once the client of a
// request ran out of tokens.
func (l *Limiter) Middleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			ok, wait := l.Allow(ip)
			if !ok {
				logger.Warnw("rate limit exceeded",
					"client_ip", ip,
					"path", r.URL.Path,
					"limit", l.label,
					"request_id", httpapi.RequestID(r.Context()),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				httpapi.WriteError(w, r, httpapi.RateLimited(l.label))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the first X-Forwarded-For entry, falling back to the peer
// address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
