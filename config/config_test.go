package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 1, cfg.Crawl.MaxPages)
	assert.Equal(t, 3, cfg.Crawl.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Crawl.RetryDelay)
	assert.Equal(t, 1, cfg.Redis.StreamCount)
	assert.Equal(t, []string{"ppomppu", "ruliweb", "clien", "quasarzone"}, cfg.Schedule.Sources)
	assert.Empty(t, cfg.DatabaseURL)

	// Test with environment variables
	t.Setenv("REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("REDIS_DB", "1")
	t.Setenv("MEMCACHE_ADDR", "memcache.example.com:11211")
	t.Setenv("CRAWL_PAGE_DELAY", "250ms")
	t.Setenv("CRAWL_SCHEDULE_SOURCES", "clien,arca")
	t.Setenv("FMKOREA_URL", "https://example.com/fmkorea")

	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "memcache.example.com:11211", cfg.Memcache.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Crawl.PageDelay)
	assert.Equal(t, []string{"clien", "arca"}, cfg.Schedule.Sources)
	assert.Equal(t, "https://example.com/fmkorea", cfg.Sites.FMKoreaURL)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("CRAWL_MAX_PAGES", "0")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "CRAWL_MAX_PAGES")
}

func TestLoadConfigParseError(t *testing.T) {
	t.Setenv("CRAWL_RETRY_DELAY", "soon")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Crawl.BackoffMultiplier = 0.5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Crawl.MaxConcurrentSources = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Crawl.RetryAttempts = -1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Environment = "production"
	assert.True(t, cfg.IsProduction())
}
