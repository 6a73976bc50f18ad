package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/collabkit/pkg/config"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.StoreBackendMemory, cfg.StoreBackend)
	assert.Equal(t, 50, cfg.CacheLimit)
	assert.Equal(t, int64(10), cfg.RetentionK)
	assert.Equal(t, 10*time.Second, cfg.CacheTTL)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collabd.yaml")
	yaml := "storeBackend: redis\nredisAddr: redis:6379\ncacheLimit: 100\nretentionK: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.StoreBackendRedis, cfg.StoreBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 100, cfg.CacheLimit)
	assert.Equal(t, int64(5), cfg.RetentionK)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collabd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cacheLimit: 100\n"), 0o644))

	t.Setenv("COLLABD_CACHE_LIMIT", "7")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CacheLimit)
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.StoreBackend = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestShouldStoreSnapshot_DefaultPredicate(t *testing.T) {
	cfg := config.Default()
	assert.True(t, cfg.ShouldStoreSnapshot(0))
	assert.True(t, cfg.ShouldStoreSnapshot(10))
	assert.False(t, cfg.ShouldStoreSnapshot(4))
	assert.True(t, cfg.ShouldStoreSnapshot(20))
}
