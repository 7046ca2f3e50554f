// Package bigcachestore keeps the coordinator's cache table in bigcache, off
// the Go heap. Values are stored as JSON envelopes (see reqcoord.MarshalEntry)
// and decoded on read into the caller's type.
package bigcachestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"github.com/mdshimul186/reqcoord"
)

var (
	_ reqcoord.Store         = (*Store)(nil)
	_ reqcoord.MatchDeleter  = (*Store)(nil)
	_ reqcoord.EncodingStore = (*Store)(nil)
)

// Store implements reqcoord.Store on bigcache.
type Store struct {
	cache  *bigcache.BigCache
	logger *zap.Logger
}

// New creates a bigcache-backed store. Zero fields of cfg take the
// BigCacheConfig defaults. There is no background cleanup, but bigcache evicts
// the oldest entry on write once it is older than LifeWindow, and drops the
// oldest entries when HardMaxCacheSizeMB is reached, so both bound how long a
// result is kept.
func New(ctx context.Context, cfg reqcoord.BigCacheConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	config := bigcache.DefaultConfig(cfg.LifeWindow)
	config.CleanWindow = 0
	config.Verbose = false
	config.Shards = cfg.Shards
	config.MaxEntrySize = cfg.MaxEntrySize
	config.HardMaxCacheSize = cfg.HardMaxCacheSizeMB

	cache, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigcache: %w", err)
	}

	return &Store{cache: cache, logger: logger}, nil
}

// EncodesValues reports that results are kept as JSON bytes.
func (s *Store) EncodesValues() bool { return true }

// Get returns the entry for key with Raw set and Value nil.
func (s *Store) Get(_ context.Context, key string) (reqcoord.Entry, bool, error) {
	data, err := s.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return reqcoord.Entry{}, false, nil
	}
	if err != nil {
		return reqcoord.Entry{}, false, err
	}

	entry, err := reqcoord.UnmarshalEntry(data)
	if err != nil {
		s.logger.Warn("Failed to unmarshal bigcache entry", zap.String("key", key), zap.Error(err))
		_ = s.cache.Delete(key)
		return reqcoord.Entry{}, false, nil
	}

	return entry, true, nil
}

// Set stores the entry, encoding Value as JSON unless Raw is already set.
func (s *Store) Set(_ context.Context, key string, entry reqcoord.Entry) error {
	data, err := reqcoord.MarshalEntry(entry)
	if err != nil {
		s.logger.Error("Failed to marshal cache entry", zap.String("key", key), zap.Error(err))
		return err
	}
	return s.cache.Set(key, data)
}

// Delete removes key; a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	err := s.cache.Delete(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

// Keys walks the bigcache iterator.
func (s *Store) Keys(_ context.Context) ([]string, error) {
	var keys []string
	it := s.cache.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			return keys, err
		}
		keys = append(keys, info.Key())
	}
	return keys, nil
}

// DeleteMatching removes every key accepted by match.
func (s *Store) DeleteMatching(ctx context.Context, match func(string) bool) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if !match(k) {
			continue
		}
		if err := s.Delete(ctx, k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Clear drops every entry.
func (s *Store) Clear(_ context.Context) error {
	return s.cache.Reset()
}

// Len returns the number of stored entries.
func (s *Store) Len(_ context.Context) (int, error) {
	return s.cache.Len(), nil
}

// Close releases bigcache resources.
func (s *Store) Close() error {
	return s.cache.Close()
}
