// Package redisstore keeps the coordinator's cache table in redis (or KeyDB)
// so several processes can share cached results. Keys are namespaced by a
// prefix; invalidation walks that namespace with SCAN.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mdshimul186/reqcoord"
)

var (
	_ reqcoord.Store         = (*Store)(nil)
	_ reqcoord.MatchDeleter  = (*Store)(nil)
	_ reqcoord.EncodingStore = (*Store)(nil)
)

const scanCount = 500

// Store implements reqcoord.Store on redis.
type Store struct {
	client    Client
	prefix    string
	retention time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// Open connects to redis using cfg and verifies the connection with PING.
func Open(ctx context.Context, cfg reqcoord.RedisConfig, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return New(client, cfg, logger), nil
}

// New wraps an existing client.
func New(client Client, cfg reqcoord.RedisConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:    client,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
		timeout:   cfg.ReadTimeout,
		logger:    logger,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EncodesValues reports that results are kept as JSON bytes.
func (s *Store) EncodesValues() bool { return true }

// Get returns the entry for key with Raw set and Value nil.
func (s *Store) Get(ctx context.Context, key string) (reqcoord.Entry, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return reqcoord.Entry{}, false, nil
	}
	if err != nil {
		return reqcoord.Entry{}, false, err
	}

	entry, err := reqcoord.UnmarshalEntry(data)
	if err != nil {
		s.logger.Warn("Failed to unmarshal redis cache entry", zap.String("key", key), zap.Error(err))
		if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
			s.logger.Warn("Failed to delete corrupt redis cache entry", zap.String("key", key), zap.Error(err))
		}
		return reqcoord.Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores the entry under the prefixed key with the configured retention.
func (s *Store) Set(ctx context.Context, key string, entry reqcoord.Entry) error {
	data, err := reqcoord.MarshalEntry(entry)
	if err != nil {
		s.logger.Error("Failed to marshal cache entry", zap.String("key", key), zap.Error(err))
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Set(ctx, s.prefix+key, data, s.retention).Err()
}

// Delete removes key; a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Keys lists every key in the namespace, without the prefix.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.scan(ctx, func(batch []string) error {
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		return nil
	})
	return keys, err
}

// DeleteMatching removes every namespaced key accepted by match.
func (s *Store) DeleteMatching(ctx context.Context, match func(string) bool) (int, error) {
	removed := 0
	err := s.scan(ctx, func(batch []string) error {
		var doomed []string
		for _, k := range batch {
			if match(strings.TrimPrefix(k, s.prefix)) {
				doomed = append(doomed, k)
			}
		}
		if len(doomed) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, doomed...).Result()
		removed += int(n)
		return err
	})
	return removed, err
}

// Clear removes every key in the namespace.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.DeleteMatching(ctx, func(string) bool { return true })
	return err
}

// Len counts the keys in the namespace.
func (s *Store) Len(ctx context.Context) (int, error) {
	n := 0
	err := s.scan(ctx, func(batch []string) error {
		n += len(batch)
		return nil
	})
	return n, err
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) scan(ctx context.Context, fn func(batch []string) error) error {
	match := escapeGlob(s.prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// escapeGlob quotes redis MATCH metacharacters in a literal prefix.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
