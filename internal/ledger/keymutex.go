package ledger

import "sync"

// KeyMutex serializes the read-decide-write sequence per instrument
// key. Locks for different keys never contend. Entries are created on
// first use and kept; the instrument universe is small.
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyMutex() *KeyMutex {
	return &KeyMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock func.
func (km *KeyMutex) Lock(key string) func() {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &sync.Mutex{}
		km.locks[key] = l
	}
	km.mu.Unlock()

	l.Lock()
	return l.Unlock
}
