// Package caching holds helpers shared by the cache workers.
package caching

import "sync"

// WarmingLock lets only one background refresh run for a key at a time.
type WarmingLock struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

func NewWarmingLock() *WarmingLock {
	return &WarmingLock{locks: make(map[string]struct{})}
}

// TryLock acquires key without blocking and reports whether it succeeded.
func (l *WarmingLock) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return false
	}
	l.locks[key] = struct{}{}
	return true
}

func (l *WarmingLock) Unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
}

// Held is the number of keys currently locked.
func (l *WarmingLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
