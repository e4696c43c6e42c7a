// Package busy serializes heavy download-class work per requester. A second
// request while a lease is held is rejected immediately, never queued. The
// TTL is a safety net so a leaked lease cannot block a user forever.
package busy

import (
	"sync"
	"time"
)

// Limiter hands out at most one lease per key at a time.
type Limiter struct {
	mu     sync.Mutex
	leases map[int64]time.Time
	ttl    time.Duration
}

// New creates a limiter. ttl <= 0 means leases never expire on their own.
func New(ttl time.Duration) *Limiter {
	return &Limiter{
		leases: make(map[int64]time.Time),
		ttl:    ttl,
	}
}

// Acquire takes the lease for key. On success it returns a release func that
// must be called on every exit path; ok is false while the key is busy.
// An expired lease counts as free.
func (l *Limiter) Acquire(key int64) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acquiredAt, held := l.leases[key]; held {
		if l.ttl <= 0 || time.Since(acquiredAt) <= l.ttl {
			return nil, false
		}
	}

	at := time.Now()
	l.leases[key] = at
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			// Only release our own lease; key may have been re-acquired
			// after this one expired.
			if current, held := l.leases[key]; held && current.Equal(at) {
				delete(l.leases, key)
			}
			l.mu.Unlock()
		})
	}, true
}

// Busy reports whether key currently holds an unexpired lease.
func (l *Limiter) Busy(key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	acquiredAt, held := l.leases[key]
	if !held {
		return false
	}
	return l.ttl <= 0 || time.Since(acquiredAt) <= l.ttl
}
