package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type RateLimiter struct {
	connections  map[string]int         // IP -> connection count
	authAttempts map[string][]time.Time // IP -> timestamps of auth attempts
	mu           sync.RWMutex
	maxConns     int
	maxAuth      int
	now          func() time.Time
}

func New(maxConns, maxAuth int) *RateLimiter {
	if maxConns <= 0 {
		maxConns = 10
	}
	if maxAuth <= 0 {
		maxAuth = 5
	}
	return &RateLimiter{
		connections:  make(map[string]int),
		authAttempts: make(map[string][]time.Time),
		maxConns:     maxConns,
		maxAuth:      maxAuth,
		now:          time.Now,
	}
}

func (rl *RateLimiter) Limits() (maxConns, maxAuth int) {
	return rl.maxConns, rl.maxAuth
}

// Run drops expired auth attempts every minute until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-time.Minute)
	for ip, attempts := range rl.authAttempts {
		valid := recent(attempts, cutoff)
		if len(valid) == 0 {
			delete(rl.authAttempts, ip)
		} else {
			rl.authAttempts[ip] = valid
		}
	}
}

// Acquire reserves a connection slot for ip. The returned func releases it.
func (rl *RateLimiter) Acquire(ip string) (release func(), ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.connections[ip] >= rl.maxConns {
		return nil, false
	}
	rl.connections[ip]++

	var once sync.Once
	return func() { once.Do(func() { rl.removeConnection(ip) }) }, true
}

func (rl *RateLimiter) removeConnection(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.connections[ip]--
	if rl.connections[ip] <= 0 {
		delete(rl.connections, ip)
	}
}

// CanAuth records an auth attempt from ip and reports whether it is within
// the per-minute budget.
func (rl *RateLimiter) CanAuth(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	attempts := recent(rl.authAttempts[ip], now.Add(-time.Minute))
	if len(attempts) >= rl.maxAuth {
		rl.authAttempts[ip] = attempts
		return false
	}
	rl.authAttempts[ip] = append(attempts, now)
	return true
}

// AuthLimit rejects requests from clients over their auth budget.
func (rl *RateLimiter) AuthLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.CanAuth(GetClientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Too many login attempts. Please wait a minute."}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func recent(attempts []time.Time, cutoff time.Time) []time.Time {
	var valid []time.Time
	for _, t := range attempts {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

func GetClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (for reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(ip)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
