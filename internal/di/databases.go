// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/database"
)

// InitializeDatabases opens the three sqlite databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. history.db - Daily closes (prices, read by the estimator)
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    database.NameHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	// 2. portfolios.db - Stored portfolios
	portfoliosDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolios.db"),
		Profile: database.ProfileStandard,
		Name:    database.NamePortfolios,
	})
	if err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("failed to initialize portfolios database: %w", err)
	}
	container.PortfoliosDB = portfoliosDB

	// 3. cache.db - Analytics cache entries
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache, // Maximum speed for ephemeral data
		Name:    database.NameCache,
	})
	if err != nil {
		historyDB.Close()
		portfoliosDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{historyDB, portfoliosDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			historyDB.Close()
			portfoliosDB.Close()
			cacheDB.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
