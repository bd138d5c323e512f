package services

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex provides a mutex per entity ID so that unrelated bots and
// markets never contend. Lock ordering across services is always market
// before bot.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the mutex for the given ID, creating it on first use.
// Mutexes are retained for the process lifetime; the entity space is small
// (bots and markets) and retention keeps the serialization point stable.
func (k *keyedMutex) Lock(id uuid.UUID) {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for the given ID.
func (k *keyedMutex) Unlock(id uuid.UUID) {
	k.mu.Lock()
	m := k.locks[id]
	k.mu.Unlock()
	m.Unlock()
}
