package slskd

import (
	"context"
	"sync"
	"time"
)

// Soulseek drops clients that search too aggressively. The daemon itself
// does not throttle, so searches are paced client-side with a sliding
// window of start timestamps.
const (
	searchWindowLimit = 35
	searchWindow      = 220 * time.Second
)

type searchLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	starts []time.Time
}

func newSearchLimiter(limit int, window time.Duration) *searchLimiter {
	return &searchLimiter{limit: limit, window: window}
}

// reserve records a search start when the window has room, otherwise it
// returns how long the caller must wait for the oldest stamp to expire.
func (l *searchLimiter) reserve(now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.starts[:0]
	for _, t := range l.starts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.starts = kept

	if len(l.starts) < l.limit {
		l.starts = append(l.starts, now)
		return 0, true
	}
	return l.starts[0].Add(l.window).Sub(now), false
}

// wait blocks until a search slot is free or the context ends.
func (l *searchLimiter) wait(ctx context.Context) error {
	for {
		delay, ok := l.reserve(time.Now())
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
