package cache

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/aristath/portfolio-engine/internal/config"
)

// NewStore builds the backend named by cfg.Backend. sqliteDB is only used
// by the sqlite backend and may be nil otherwise.
func NewStore(cfg config.CacheConfig, dataDir string, sqliteDB *sql.DB) (Store, error) {
	switch cfg.Backend {
	case config.CacheMemory, "":
		return NewMemoryStore(), nil
	case config.CacheRedis:
		return NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.Timeout,
		}), nil
	case config.CacheSQLite:
		if sqliteDB == nil {
			return nil, fmt.Errorf("sqlite cache backend requires a database")
		}
		return NewSQLiteStore(sqliteDB), nil
	case config.CacheBadger:
		return OpenBadgerStore(filepath.Join(dataDir, "cache.badger"))
	case config.CacheNone:
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
