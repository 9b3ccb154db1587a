// Package ratelimit bounds request volume per client identity over a sliding
// window. It is in-memory and single-process; entries for idle identities are
// garbage collected to keep the map bounded.
package ratelimit

import (
	"sync"
	"time"
)

type Config struct {
	// Limit is the maximum number of requests per identity per Window.
	Limit int
	// Window is the length of the sliding window.
	Window time.Duration

	// Operational bounds for the in-memory map.
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*window
}

type window struct {
	stamps   []time.Time
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 2 * cfg.Window
	}
	return &Limiter{cfg: cfg, m: make(map[string]*window)}
}

// Allow records a request for identity at the given instant and reports
// whether it fits inside the window. A denied request is not recorded.
func (l *Limiter) Allow(identity string, now time.Time) bool {
	if identity == "" {
		identity = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.getOrCreateLocked(identity, now)
	w.lastSeen = now

	cutoff := now.Add(-l.cfg.Window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= l.cfg.Limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Remaining reports how many requests identity still has inside the window.
func (l *Limiter) Remaining(identity string, now time.Time) int {
	if identity == "" {
		identity = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.m[identity]
	if !ok {
		return l.cfg.Limit
	}

	cutoff := now.Add(-l.cfg.Window)
	used := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			used++
		}
	}
	if used >= l.cfg.Limit {
		return 0
	}
	return l.cfg.Limit - used
}

func (l *Limiter) getOrCreateLocked(identity string, now time.Time) *window {
	// An identity that already has a window keeps it; eviction only makes
	// room for new entries.
	if w, ok := l.m[identity]; ok {
		return w
	}

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// If still too big, drop an arbitrary entry; bounded memory wins over
		// perfect fairness here.
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}

	w := &window{lastSeen: now}
	l.m[identity] = w
	return w
}

func (l *Limiter) gcLocked(now time.Time) {
	for k, w := range l.m {
		if now.Sub(w.lastSeen) > l.cfg.EntryTTL {
			delete(l.m, k)
		}
	}
}
