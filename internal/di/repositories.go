// Package di provides dependency injection for repository implementations.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/cache"
	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/internal/modules/prices"
)

// InitializeRepositories builds the cache, the price history and the portfolio store
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	store, err := cache.NewStore(cfg.Cache, cfg.DataDir, container.CacheDB.Conn())
	if err != nil {
		return fmt.Errorf("failed to create cache store: %w", err)
	}
	container.Cache = cache.New(store, cache.Options{Timeout: cfg.Cache.Timeout}, log)

	container.History = prices.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.Prices = prices.NewCachedProvider(container.History, container.Cache, cfg.Cache.PricesTTL, log)

	switch cfg.Store.Backend {
	case config.StoreS3:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s3Store, err := portfolio.NewS3Store(ctx, portfolio.S3Config{
			Bucket:   cfg.Store.S3Bucket,
			Prefix:   cfg.Store.S3Prefix,
			Region:   cfg.Store.S3Region,
			Endpoint: cfg.Store.S3Endpoint,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create S3 portfolio store: %w", err)
		}
		container.PortfolioStore = s3Store
	default:
		container.PortfolioStore = portfolio.NewRepository(container.PortfoliosDB.Conn(), log)
	}

	log.Info().
		Str("cache_backend", container.Cache.Backend()).
		Str("portfolio_store", cfg.Store.Backend).
		Msg("Repositories initialized")

	return nil
}
