// Package config loads collabkit's runtime configuration from a YAML file
// with environment-variable overrides, the same two-layer approach the
// teacher's own config packages use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects which ContentStore implementation is wired in.
type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendRedis  StoreBackend = "redis"
)

// BusBackend selects which PubSub Bus implementation is wired in.
type BusBackend string

const (
	BusBackendLocal BusBackend = "local"
	BusBackendRedis BusBackend = "redis"
)

// Config is the full set of knobs collabd needs to compose a backend.
type Config struct {
	// ListenAddr is the address the RPC multiplexer's WebSocket upgrade
	// handler binds to.
	ListenAddr string `yaml:"listenAddr"`

	// MetricsAddr is the address the Prometheus exporter binds to.
	MetricsAddr string `yaml:"metricsAddr"`

	// StoreBackend selects memory or redis.
	StoreBackend StoreBackend `yaml:"storeBackend"`
	// BusBackend selects local or redis.
	BusBackend BusBackend `yaml:"busBackend"`
	// RedisAddr is used by both the Redis store and Redis bus, when selected.
	RedisAddr string `yaml:"redisAddr"`

	// Cache tuning, per spec §4.5.
	CacheTTL   time.Duration `yaml:"cacheTTL"`
	CacheLimit int           `yaml:"cacheLimit"`
	// RetentionK: shouldStoreSnapshot persists every Kth version.
	RetentionK int64 `yaml:"retentionK"`

	// Size caps enforced at the Backend boundary, per spec §4.3/§6.
	MaxSchemaSize    int `yaml:"maxSchemaSize"`
	MaxOperationSize int `yaml:"maxOperationSize"`
	MaxSnapshotSize  int `yaml:"maxSnapshotSize"`
}

// Default returns the reference configuration from spec.md §4.5/§6:
// cacheTTL 10s, cacheLimit 50, retentionK 10.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		MetricsAddr:      ":9090",
		StoreBackend:     StoreBackendMemory,
		BusBackend:       BusBackendLocal,
		RedisAddr:        "localhost:6379",
		CacheTTL:         10 * time.Second,
		CacheLimit:       50,
		RetentionK:       10,
		MaxSchemaSize:    1 << 20,  // 1 MiB
		MaxOperationSize: 1 << 20,  // 1 MiB
		MaxSnapshotSize:  8 << 20,  // 8 MiB
	}
}

// Load reads a YAML config file at path, starting from Default(), then
// applies environment-variable overrides on top. path may be empty, in
// which case only defaults + env overrides apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COLLABD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("COLLABD_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("COLLABD_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = StoreBackend(v)
	}
	if v := os.Getenv("COLLABD_BUS_BACKEND"); v != "" {
		cfg.BusBackend = BusBackend(v)
	}
	if v := os.Getenv("COLLABD_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("COLLABD_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}
	if v := os.Getenv("COLLABD_CACHE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheLimit = n
		}
	}
	if v := os.Getenv("COLLABD_RETENTION_K"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RetentionK = n
		}
	}
}

// Validate checks the configuration is internally consistent.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendRedis:
	default:
		return fmt.Errorf("config: unknown storeBackend %q", c.StoreBackend)
	}
	switch c.BusBackend {
	case BusBackendLocal, BusBackendRedis:
	default:
		return fmt.Errorf("config: unknown busBackend %q", c.BusBackend)
	}
	if c.CacheLimit <= 0 {
		return fmt.Errorf("config: cacheLimit must be positive, got %d", c.CacheLimit)
	}
	if c.RetentionK <= 0 {
		return fmt.Errorf("config: retentionK must be positive, got %d", c.RetentionK)
	}
	return nil
}

// ShouldStoreSnapshot builds the retention predicate described in spec.md
// §4.5 / Open Question (a): persist every Kth version.
func (c Config) ShouldStoreSnapshot(version int64) bool {
	if c.RetentionK <= 0 {
		return false
	}
	return version%c.RetentionK == 0
}
