/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server for access to services.
 */
package di

import (
	"errors"

	"github.com/aristath/portfolio-engine/internal/cache"
	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/analytics"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/internal/modules/prices"
	"github.com/aristath/portfolio-engine/internal/modules/returns"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
	"github.com/aristath/portfolio-engine/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: history (daily closes), portfolios (stored portfolios), cache (sqlite cache backend)
 * - Repositories: price history, portfolio store, analytics cache
 * - Services: estimator, risk calculator, optimizer, analytics orchestrator, portfolio CRUD
 * - Scheduler: cache sweep and WAL checkpoint jobs
 */
type Container struct {
	// Databases
	HistoryDB    *database.DB // Daily closes per symbol
	PortfoliosDB *database.DB // Stored portfolios (sqlite store backend)
	CacheDB      *database.DB // Analytics cache entries (sqlite cache backend)

	// Repositories
	Cache          *cache.Cache           // Shared by analytics results and price series
	History        *prices.HistoryDB      // Raw price history
	Prices         *prices.CachedProvider // History behind the price-series cache
	PortfolioStore domain.PortfolioStore  // sqlite or S3

	// Services
	Estimator        *returns.Estimator
	Calculator       *risk.Calculator
	Optimizer        *optimization.Engine
	AnalyticsService *analytics.Service
	PortfolioService *portfolio.Service

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	CacheSweep    *scheduler.CacheSweepJob
	WALCheckpoint *scheduler.WALCheckpointJob
	Maintenance   *scheduler.DatabaseMaintenanceJob
}

// Databases returns the open sqlite databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 3)
	for _, db := range []*database.DB{c.HistoryDB, c.PortfoliosDB, c.CacheDB} {
		if db != nil {
			dbs[db.Name()] = db
		}
	}
	return dbs
}

// Close stops the scheduler and releases the cache backend and databases
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}

	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	for _, db := range []*database.DB{c.HistoryDB, c.PortfoliosDB, c.CacheDB} {
		if db != nil {
			errs = append(errs, db.Close())
		}
	}
	return errors.Join(errs...)
}
