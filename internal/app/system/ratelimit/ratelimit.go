// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter is a fixed-window counter keyed by an arbitrary string.
type Limiter interface {
	// Allow records one attempt for key and reports whether it is within the
	// limit for the current window.
	Allow(ctx context.Context, key string) (bool, error)
}

// BallotKey returns the limiter key for one voter on one item.
func BallotKey(voterID, itemID string) string {
	return "ballot:" + voterID + ":" + itemID
}

// Memory is an instance-local Limiter. It is best effort: counters are lost on
// restart and not shared between instances. It is safe for concurrent use.
//
// Expired windows are swept lazily on access, so the map stays bounded by the
// number of keys active within roughly one window.
type Memory struct {
	mu        sync.Mutex
	windows   map[string]*window
	limit     int           // max attempts per window
	duration  time.Duration // window duration
	lastSweep time.Time
	now       func() time.Time
}

type window struct {
	count     int
	expiresAt time.Time
}

// NewMemory creates an in-memory limiter allowing limit attempts per duration.
func NewMemory(limit int, duration time.Duration) *Memory {
	return &Memory{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (l *Memory) WithClock(now func() time.Time) *Memory {
	l.now = now
	return l
}

// Allow checks if an attempt for the given key should be allowed.
func (l *Memory) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	w, exists := l.windows[key]
	if !exists || !now.Before(w.expiresAt) {
		l.windows[key] = &window{
			count:     1,
			expiresAt: now.Add(l.duration),
		}
		return true, nil
	}

	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Remaining returns how many attempts are left for key in the current window.
func (l *Memory) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists || !l.now().Before(w.expiresAt) {
		return l.limit
	}
	if remaining := l.limit - w.count; remaining > 0 {
		return remaining
	}
	return 0
}

// Len returns the number of tracked windows.
func (l *Memory) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// sweepLocked drops expired windows at most once per window duration.
func (l *Memory) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.duration {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.expiresAt) {
			delete(l.windows, key)
		}
	}
	l.lastSweep = now
}

// ClientIP extracts the client IP from an HTTP request.
// It checks X-Forwarded-For and X-Real-IP headers first (for proxied requests),
// then falls back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
