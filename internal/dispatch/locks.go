// ABOUTME: Refcounted per-key mutex providing the per-user serialization boundary
// ABOUTME: Entries exist only while held or contended, so the map stays bounded

package dispatch

import "sync"

type userLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key. Different keys never contend;
// lock holders for the same key run strictly one at a time.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*userLock)}
}

// lock blocks until the key's mutex is held and returns the unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &userLock{}
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
