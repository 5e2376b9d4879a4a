// Package ratelimit implements fixed-window request counting keyed by
// (route, identifier).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/runlet-dev/runlet/pkg/logger"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Limiter is the fixed-window counting contract. The same abstraction,
// parameterised with a small limit and a long window, protects the admin
// login endpoint against brute force.
type Limiter interface {
	Check(ctx context.Context, identifier, routeID string, limit, windowSeconds int) (Decision, error)
	Reset(ctx context.Context, identifier, routeID string) error
}

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the default in-process backend. Counters are deliberately
// ephemeral; a restart starts fresh windows.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     *logger.Logger
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemory creates an empty in-memory limiter.
func NewMemory(log *logger.Logger) *MemoryLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	return &MemoryLimiter{
		entries: make(map[string]*entry),
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func key(routeID, identifier string) string {
	return routeID + ":" + identifier
}

// Check counts one request against the window and reports whether it is
// within the limit.
func (l *MemoryLimiter) Check(_ context.Context, identifier, routeID string, limit, windowSeconds int) (Decision, error) {
	now := l.now()
	window := time.Duration(windowSeconds) * time.Second

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(routeID, identifier)
	e, ok := l.entries[k]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(window)}
		l.entries[k] = e
	}
	e.count++

	return decide(e.count, limit, e.resetAt, now), nil
}

// Reset deletes the entry outright, clearing any accumulated count.
func (l *MemoryLimiter) Reset(_ context.Context, identifier, routeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key(routeID, identifier))
	return nil
}

// Sweep removes expired entries to bound memory. The maintenance scheduler
// runs it independently of request traffic.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}
	if removed > 0 {
		l.log.Debugf("swept %d expired rate-limit entries", removed)
	}
	return removed
}

// Len reports the number of live entries.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func decide(count, limit int, resetAt, now time.Time) Decision {
	d := Decision{
		Allowed: count <= limit,
		Limit:   limit,
		ResetAt: resetAt,
	}
	if remaining := limit - count; remaining > 0 {
		d.Remaining = remaining
	}
	if !d.Allowed {
		retry := resetAt.Sub(now)
		d.RetryAfter = time.Duration((retry + time.Second - 1) / time.Second * time.Second)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d
}
