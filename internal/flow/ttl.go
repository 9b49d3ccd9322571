package flow

import (
	"sync"
	"time"
)

// TTL is a minimal in-process TTL cache.
// Expired entries are dropped lazily on Get and swept on Set once the map grows.
type TTL[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]entry[V]
}

type entry[V any] struct {
	val V
	exp time.Time
}

const ttlSweepThreshold = 1024

func NewTTL[K comparable, V any]() *TTL[K, V] {
	return &TTL[K, V]{data: make(map[K]entry[V])}
}

// Get returns the value and true if found and not expired; otherwise zero value and false.
func (t *TTL[K, V]) Get(k K) (V, bool) {
	t.mu.RLock()
	e, ok := t.data[k]
	t.mu.RUnlock()
	if !ok || timeNow().After(e.exp) {
		var zero V
		return zero, false
	}
	return e.val, true
}

func (t *TTL[K, V]) Set(k K, v V, ttl time.Duration) {
	now := timeNow()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.data) >= ttlSweepThreshold {
		for key, e := range t.data {
			if now.After(e.exp) {
				delete(t.data, key)
			}
		}
	}
	t.data[k] = entry[V]{val: v, exp: now.Add(ttl)}
}

func (t *TTL[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}
