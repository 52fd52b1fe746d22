package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds how many sentiment computations one client may request
type RateLimitConfig struct {
	PerDay  int           // Sustained requests per client per day; 0 disables limiting
	Burst   int           // Requests allowed back to back
	IdleTTL time.Duration // Limiters unused for this long are dropped
}

// DefaultRateLimitConfig returns the default per-client limits
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerDay:  100,
		Burst:   5,
		IdleTTL: 24 * time.Hour,
	}
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client key
type clientLimiter struct {
	mu        sync.Mutex
	config    RateLimitConfig
	clients   map[string]*clientEntry
	lastPrune time.Time
	now       func() time.Time
}

func newClientLimiter(config RateLimitConfig) *clientLimiter {
	if config.Burst < 1 {
		config.Burst = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &clientLimiter{
		config:  config,
		clients: make(map[string]*clientEntry),
		now:     time.Now,
	}
}

// Allow reports whether the client identified by key may make a request now
func (l *clientLimiter) Allow(key string) bool {
	if l.config.PerDay <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	entry, ok := l.clients[key]
	if !ok {
		every := rate.Every(24 * time.Hour / time.Duration(l.config.PerDay))
		entry = &clientEntry{limiter: rate.NewLimiter(every, l.config.Burst)}
		l.clients[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// pruneLocked drops idle limiters at most once per IdleTTL
func (l *clientLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.config.IdleTTL {
		return
	}
	l.lastPrune = now
	for key, entry := range l.clients {
		if now.Sub(entry.lastSeen) >= l.config.IdleTTL {
			delete(l.clients, key)
		}
	}
}

// size returns the number of tracked clients
func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// clientKey identifies the caller by remote host
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
