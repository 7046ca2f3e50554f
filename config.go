package reqcoord

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Store backends understood by StoreConfig.
const (
	BackendMemory   = "memory"
	BackendBigCache = "bigcache"
	BackendRedis    = "redis"
)

// Config is the file form of a coordinator and its surroundings.
type Config struct {
	Name     string         `yaml:"name" validate:"required"`
	Cache    CacheConfig    `yaml:"cache"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
}

// CacheConfig configures the cache policy and its store.
type CacheConfig struct {
	DefaultTTL  time.Duration `yaml:"default_ttl" validate:"gt=0"`
	StoreConfig `yaml:",inline"`
}

// StoreConfig selects and configures the cache table backend.
type StoreConfig struct {
	Backend  string         `yaml:"store" validate:"oneof=memory bigcache redis"`
	Shards   int            `yaml:"shards" validate:"gte=0"`
	BigCache BigCacheConfig `yaml:"bigcache"`
	Redis    RedisConfig    `yaml:"redis"`
}

// BigCacheConfig configures the bigcache store. LifeWindow and
// HardMaxCacheSizeMB bound retention: bigcache may evict an entry older than
// LifeWindow, or the oldest entries once the size cap is hit, so a caller ttl
// longer than LifeWindow can read as a miss.
type BigCacheConfig struct {
	Shards             int           `yaml:"shards" validate:"gte=0"`
	LifeWindow         time.Duration `yaml:"life_window" validate:"gte=0"`
	MaxEntrySize       int           `yaml:"max_entry_size" validate:"gte=0"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb" validate:"gte=0"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr         string        `yaml:"addr" validate:"omitempty,hostname_port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout" validate:"gte=0"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
	// Retention is an expiry put on redis keys; zero keeps them until cleared.
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
}

// ThrottleConfig configures the throttle policy.
type ThrottleConfig struct {
	DefaultInterval time.Duration `yaml:"default_interval" validate:"gt=0"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig configures the zap logger built by NewZapFromConfig.
type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// AdminConfig configures the admin HTTP listener.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig loads configuration from file path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return decodeConfig(file)
}

// ParseConfig parses YAML configuration from memory.
func ParseConfig(data []byte) (*Config, error) {
	return decodeConfig(bytes.NewReader(data))
}

func decodeConfig(r io.Reader) (*Config, error) {
	var config Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = DefaultTTL
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.Shards == 0 {
		c.Cache.Shards = defaultShards
	}
	c.Cache.BigCache.ApplyDefaults()
	c.Cache.Redis.applyDefaults()
	if c.Throttle.DefaultInterval == 0 {
		c.Throttle.DefaultInterval = DefaultInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":9090"
	}
}

// ApplyDefaults fills zero fields with the defaults: 1024 shards, a 24h life
// window and 1 MB entries.
func (b *BigCacheConfig) ApplyDefaults() {
	if b.Shards == 0 {
		b.Shards = 1024
	}
	if b.LifeWindow == 0 {
		b.LifeWindow = 24 * time.Hour
	}
	if b.MaxEntrySize == 0 {
		b.MaxEntrySize = 1024 * 1024
	}
}

func (r *RedisConfig) applyDefaults() {
	if r.Addr == "" {
		r.Addr = "localhost:6379"
	}
	if r.Prefix == "" {
		r.Prefix = "reqcoord:"
	}
	if r.DialTimeout == 0 {
		r.DialTimeout = 5 * time.Second
	}
	if r.ReadTimeout == 0 {
		r.ReadTimeout = 3 * time.Second
	}
	if r.WriteTimeout == 0 {
		r.WriteTimeout = 3 * time.Second
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return newError(OpConfig, "", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	if c.Cache.Backend == BackendBigCache && c.Cache.BigCache.Shards&(c.Cache.BigCache.Shards-1) != 0 {
		return newError(OpConfig, "", fmt.Errorf("%w: bigcache shards must be a power of two", ErrInvalidConfig))
	}
	return nil
}
