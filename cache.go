package reqcoord

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Entry is a cached result. Freshness is decided by the reader's ttl, so the
// same entry can be fresh for one caller and stale for another.
type Entry struct {
	// Value holds the result as returned by the operation. Byte-oriented
	// stores leave it nil on reads and set Raw instead.
	Value interface{}
	// Raw holds the JSON encoding of the result for stores that cannot keep
	// Go values.
	Raw []byte
	// StoredAt is when the result was written.
	StoredAt time.Time
}

// Fresh reports whether the entry is still valid at now under ttl.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) < ttl
}

// Store is the cache table behind a Coordinator. Implementations must be safe
// for concurrent use. Entries are kept until overwritten, deleted or cleared.
//
// Stores that keep bytes instead of Go values implement EncodingStore and
// only support results that survive a JSON round trip unchanged: no
// unexported struct fields, and concrete types rather than interfaces.
// Results that do not are returned to the caller but never stored.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// EncodingStore is implemented by stores that keep results as JSON bytes.
type EncodingStore interface {
	EncodesValues() bool
}

const defaultShards = 16

// MemoryStore is the default in-process Store: a sharded map keyed by fnv-32a.
type MemoryStore struct {
	shards []*memoryShard
}

type memoryShard struct {
	mu    sync.RWMutex
	store map[string]Entry
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ MatchDeleter = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty MemoryStore with n shards (16 when n <= 0).
func NewMemoryStore(n int) *MemoryStore {
	if n <= 0 {
		n = defaultShards
	}
	shards := make([]*memoryShard, n)
	for i := range shards {
		shards[i] = &memoryShard{
			store: make(map[string]Entry),
		}
	}
	return &MemoryStore{shards: shards}
}

func (s *MemoryStore) getShard(key string) *memoryShard {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(key))
	return s.shards[hash.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	shard := s.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, exists := shard.store[key]
	return entry, exists, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.store[key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	var keys []string
	for _, shard := range s.shards {
		shard.mu.RLock()
		for k := range shard.store {
			keys = append(keys, k)
		}
		shard.mu.RUnlock()
	}
	return keys, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.store = make(map[string]Entry)
		shard.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.store)
		shard.mu.RUnlock()
	}
	return n, nil
}

// DeleteMatching removes every key accepted by match while holding each
// shard's lock, so a concurrent Set of a matching key lands either before
// (and is removed) or after (and survives).
func (s *MemoryStore) DeleteMatching(_ context.Context, match func(string) bool) (int, error) {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for k := range shard.store {
			if match(k) {
				delete(shard.store, k)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed, nil
}
