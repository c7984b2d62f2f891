package utils

import (
	"sync"

	"github.com/zeebo/xxh3"
)

const keyLockShards = 64

// KeyedMutex hands out one mutex per key. Entries are reference counted and
// dropped once no goroutine holds or waits for them, so the table only grows
// with the number of keys in use at the same time.
type KeyedMutex struct {
	shards [keyLockShards]keyLockShard
}

type keyLockShard struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	k := &KeyedMutex{}
	for i := range k.shards {
		k.shards[i].locks = make(map[string]*keyLockEntry)
	}
	return k
}

// Lock blocks until key is free and returns the function releasing it.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	shard := &k.shards[xxh3.HashString(key)%keyLockShards]

	shard.mu.Lock()
	entry, ok := shard.locks[key]
	if !ok {
		entry = &keyLockEntry{}
		shard.locks[key] = entry
	}
	entry.refs++
	shard.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			shard.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(shard.locks, key)
			}
			shard.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently tracked.
func (k *KeyedMutex) Len() int {
	n := 0
	for i := range k.shards {
		k.shards[i].mu.Lock()
		n += len(k.shards[i].locks)
		k.shards[i].mu.Unlock()
	}
	return n
}
