package circulation

import "sync"

// KeyLocks hands out one mutex per key so that
// check-precondition-then-mutate sequences execute atomically for a single
// key while unrelated keys never contend. The lending and reservation
// engines share one instance keyed by title: borrow, return, reserve,
// cancel, expiry sweeps and hand-off notification for the same title all
// serialize on the same lock. The lending engine keeps a second, private
// instance keyed by member to guard the borrow-limit check.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyLocks returns an empty lock set.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use, and returns
// the release function. The release must be called exactly once.
func (kl *KeyLocks) Lock(key string) (release func()) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	if !ok {
		m = &sync.Mutex{}
		kl.locks[key] = m
	}
	kl.mu.Unlock()

	m.Lock()
	return m.Unlock
}
