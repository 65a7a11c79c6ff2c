package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const rateLimitWindow = time.Minute

// rateLimiter is a per-client sliding-window limiter for /api/chat.
//
// It keeps the request timestamps of each client inside the window and
// prunes stale ones on every allow call, so memory stays bounded by
// O(limit) entries per active client. Clients with no recent requests are
// swept periodically.
type rateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	counters  map[string][]time.Time
	now       func() time.Time
	lastSweep time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if window <= 0 {
		window = rateLimitWindow
	}
	return &rateLimiter{
		limit:    limit,
		window:   window,
		counters: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// allow records a request from client and reports whether it fits in the
// window. It also returns how long until the oldest counted request expires,
// which is the earliest moment a rejected client may retry.
func (r *rateLimiter) allow(client string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	r.sweep(now, cutoff)

	existing := r.counters[client]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= r.limit {
		r.counters[client] = valid
		return false, valid[0].Sub(cutoff)
	}
	r.counters[client] = append(valid, now)
	return true, 0
}

func (r *rateLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(r.lastSweep) < r.window {
		return
	}
	r.lastSweep = now
	for client, ts := range r.counters {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(r.counters, client)
		}
	}
}

// clientKey identifies the caller. chi's RealIP middleware has already
// folded X-Forwarded-For / X-Real-IP into RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
