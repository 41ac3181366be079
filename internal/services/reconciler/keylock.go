package reconciler

import "sync"

// KeyLocks serializes work per key. Entries are dropped once no caller holds or waits on them.
// Share one KeyLocks between Reconcilers writing to the same store.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLocks creates an empty lock table.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*keyLock)}
}

// lock blocks until key is free and returns the matching unlock.
func (k *KeyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *KeyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
