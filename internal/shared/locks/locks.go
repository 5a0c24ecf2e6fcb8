// Package locks provides per-key mutual exclusion. The orchestrator and
// the reply correlator share one KeyedMutex so all mutations to a single
// lead serialize, whatever triggered them.
package locks

import (
	"sync"

	"github.com/google/uuid"
)

// KeyedMutex hands out one mutex per key. Mutexes are never evicted; the
// key space is bounded by the lead population.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the mutex for the key, blocking until it is free, and
// returns the unlock function.
func (k *KeyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
