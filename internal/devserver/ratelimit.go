package devserver

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/pribylovaa/gdpr-admin/internal/pkg/log"
)

const limiterCacheSize = 4096

// ipLimiter - token bucket на каждый IP; LRU ограничивает число отслеживаемых адресов.
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors *lru.Cache[string, *rate.Limiter]
}

// newIPLimiter возвращает nil, если rps<=0 (ограничение выключено).
func newIPLimiter(rps float64, burst int) *ipLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	visitors, _ := lru.New[string, *rate.Limiter](limiterCacheSize)

	return &ipLimiter{limit: rate.Limit(rps), burst: burst, visitors: visitors}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.visitors.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.visitors.Add(ip, lim)
	}
	l.mu.Unlock()

	return lim.Allow()
}

// Middleware отвечает 429 при превышении лимита. nil-лимитер пропускает всё.
func (l *ipLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.allow(ip) {
			log.From(r.Context()).Warn("rate_limited",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			WriteError(w, r, ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
