package ratelimit

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
)

// Limiter enforces a sliding-window request budget per key. A key is whatever
// the caller scopes the budget to, typically a client IP.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string][]time.Time
	logger  arbor.ILogger
	stop    chan struct{}
	stopped sync.Once
	now     func() time.Time
}

// NewLimiter creates a limiter allowing max requests per window for each key.
// A background reaper drops keys that have gone quiet so the map does not
// grow with client churn.
func NewLimiter(cfg common.LimiterConfig, logger arbor.ILogger) *Limiter {
	l := &Limiter{
		window:  cfg.Window,
		max:     cfg.Max,
		entries: make(map[string][]time.Time),
		logger:  logger,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	common.SafeGo(logger, "ratelimit-reaper", l.reapLoop)
	return l
}

// Check records an attempt for key and reports whether it fits the window.
// When rejected, retryAfter is how long the client should wait before the
// oldest counted attempt ages out, never less than a second.
func (l *Limiter) Check(key string) (allowed bool, retryAfter time.Duration) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := pruneBefore(l.entries[key], cutoff)
	if len(recent) >= l.max {
		l.entries[key] = recent
		retryAfter = recent[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	l.entries[key] = append(recent, now)
	return true, 0
}

// Record counts an attempt against key without enforcing the budget. Used for
// failure throttles where the event is counted after the fact.
func (l *Limiter) Record(key string) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = append(pruneBefore(l.entries[key], cutoff), now)
}

// Blocked reports whether key has exhausted its budget without counting a new
// attempt.
func (l *Limiter) Blocked(key string) bool {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := pruneBefore(l.entries[key], cutoff)
	l.entries[key] = recent
	return len(recent) >= l.max
}

// Reset clears all attempts for key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Stop shuts down the background reaper
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.stop) })
}

func (l *Limiter) reapLoop() {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.reap()
		}
	}
}

func (l *Limiter) reap() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, times := range l.entries {
		recent := pruneBefore(times, cutoff)
		if len(recent) == 0 {
			delete(l.entries, key)
			continue
		}
		l.entries[key] = recent
	}
}

// pruneBefore drops timestamps older than cutoff, preserving order
func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return times
	}
	return append([]time.Time(nil), times[idx:]...)
}
