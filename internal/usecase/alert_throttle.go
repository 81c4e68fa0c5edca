package usecase

import (
	"context"
	"sync"
	"time"
)

// AlertThrottle caps repeated alerts per key: at most limit per window.
// The Redis fixed-window limiter satisfies it.
type AlertThrottle interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// memThrottle is the in-process fallback when no shared throttle is wired.
type memThrottle struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]throttleWindow
}

type throttleWindow struct {
	start time.Time
	count int
}

func newMemThrottle(now func() time.Time) *memThrottle {
	return &memThrottle{now: now, windows: make(map[string]throttleWindow)}
}

func (m *memThrottle) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = throttleWindow{start: now}
	}
	w.count++
	m.windows[key] = w
	return w.count <= limit, nil
}

// forget drops the key so a later failure alerts again immediately.
func (m *memThrottle) forget(key string) {
	m.mu.Lock()
	delete(m.windows, key)
	m.mu.Unlock()
}
