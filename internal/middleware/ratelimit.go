package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimit allows perMinute requests per caller with a burst of the same
// size. Callers are keyed by user id when authenticated, else by client IP.
// Idle limiters expire after idle.
func RateLimit(perMinute int, idle time.Duration) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	var mu sync.Mutex
	limiters := cache.New(idle, idle)
	every := rate.Every(time.Minute / time.Duration(perMinute))

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if v, ok := limiters.Get(key); ok {
			lim := v.(*rate.Limiter)
			limiters.SetDefault(key, lim)
			return lim
		}
		lim := rate.NewLimiter(every, perMinute)
		limiters.SetDefault(key, lim)
		return lim
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := UserIDFromContext(r.Context())
			if key == "" {
				key = "ip:" + clientIPForRateLimit(r)
			}
			lim := limiterFor(key)
			if !lim.Allow() {
				res := lim.Reserve()
				delay := res.Delay()
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
