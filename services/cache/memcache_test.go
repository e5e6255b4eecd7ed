package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")

	_, err := mc.Get("dealcrawler_probe")
	if err != nil && err != ErrCacheMiss {
		t.Skip("Memcached is not available, skipping test")
	}

	err = mc.Set("test_key", []byte("test_value"), 2*time.Second)
	assert.NoError(t, err)

	value, err := mc.Get("test_key")
	assert.NoError(t, err)
	assert.Equal(t, "test_value", string(value))

	assert.NoError(t, mc.Delete("test_key"))
	assert.NoError(t, mc.Delete("test_key"), "deleting twice is fine")

	_, err = mc.Get("test_key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache()
	mc.now = func() time.Time { return now }

	_, err := mc.Get("missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, mc.Set("clien_rate_limited", []byte("1"), time.Minute))
	value, err := mc.Get("clien_rate_limited")
	assert.NoError(t, err)
	assert.Equal(t, "1", string(value))

	now = now.Add(time.Minute)
	_, err = mc.Get("clien_rate_limited")
	assert.ErrorIs(t, err, ErrCacheMiss, "expired")

	assert.NoError(t, mc.Set("forever", []byte("x"), 0))
	now = now.Add(24 * time.Hour)
	_, err = mc.Get("forever")
	assert.NoError(t, err)

	assert.NoError(t, mc.Delete("forever"))
	_, err = mc.Get("forever")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
