package api

import (
	"encoding/json"
	"net"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	defaultRateLimitBurst      = 10
	defaultRateLimitMaxClients = 16384
)

// ipRateLimiter keeps one token bucket per client IP. The bucket table
// is bounded by an LRU so a scan across many source addresses cannot
// grow it without limit; evicted clients simply start a fresh bucket.
type ipRateLimiter struct {
	buckets *lru.Cache[string, *rate.Limiter]
	rps     rate.Limit
	burst   int
}

func newIPRateLimiter(rps float64, burst, maxClients int) (*ipRateLimiter, error) {
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	if maxClients <= 0 {
		maxClients = defaultRateLimitMaxClients
	}

	buckets, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}

	return &ipRateLimiter{
		buckets: buckets,
		rps:     rate.Limit(rps),
		burst:   burst,
	}, nil
}

func (l *ipRateLimiter) allow(ip string) bool {
	limiter, ok := l.buckets.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.buckets.Add(ip, limiter)
	}
	return limiter.Allow()
}

func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		if !l.allow(ip) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string][]string{
				"errors": {"rate limit exceeded, slow down"},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
