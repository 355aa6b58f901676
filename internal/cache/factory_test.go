package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/config"
	testhelpers "github.com/aristath/portfolio-engine/internal/testing"
)

func TestNewStore(t *testing.T) {
	db, _ := testhelpers.NewTestDB(t, "cache")
	dir := t.TempDir()

	tests := []struct {
		backend string
		name    string
	}{
		{config.CacheMemory, "memory"},
		{config.CacheRedis, "redis"},
		{config.CacheSQLite, "sqlite"},
		{config.CacheBadger, "badger"},
		{config.CacheNone, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			store, err := NewStore(config.CacheConfig{Backend: tt.backend, RedisAddr: "127.0.0.1:1"}, dir, db.Conn())
			require.NoError(t, err)
			defer store.Close()
			assert.Equal(t, tt.name, store.Name())
		})
	}
}

func TestNewStore_Errors(t *testing.T) {
	_, err := NewStore(config.CacheConfig{Backend: "memcached"}, t.TempDir(), nil)
	assert.Error(t, err)

	_, err = NewStore(config.CacheConfig{Backend: config.CacheSQLite}, t.TempDir(), nil)
	assert.Error(t, err)
}
