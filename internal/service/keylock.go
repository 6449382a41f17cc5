package service

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// keyedMutex serializes work per string key. Keys hash onto a fixed set of
// shards, each holding refcounted per-key mutexes so distinct keys almost
// always proceed in parallel while the same key is strictly serialized.
type keyedMutex struct {
	shards [lockShards]lockShard
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	km := &keyedMutex{}
	for i := range km.shards {
		km.shards[i].locks = make(map[string]*keyLock)
	}
	return km
}

func (km *keyedMutex) shard(key string) *lockShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &km.shards[h.Sum32()%lockShards]
}

// Lock acquires the mutex for key, blocking while another holder has it.
func (km *keyedMutex) Lock(key string) {
	s := km.shard(key)

	s.mu.Lock()
	kl, ok := s.locks[key]
	if !ok {
		kl = &keyLock{}
		s.locks[key] = kl
	}
	kl.refs++
	s.mu.Unlock()

	kl.mu.Lock()
}

// Unlock releases the mutex for key and drops the entry once no goroutine
// waits on it.
func (km *keyedMutex) Unlock(key string) {
	s := km.shard(key)

	s.mu.Lock()
	kl := s.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()

	kl.mu.Unlock()
}
