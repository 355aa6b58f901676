// Package di provides dependency injection for service implementations.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/modules/analytics"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/internal/modules/returns"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
	"github.com/aristath/portfolio-engine/internal/scheduler"
)

// InitializeServices builds the numeric core and the services on top of it.
// Repositories must be initialized first.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	if container.Prices == nil || container.PortfolioStore == nil {
		return fmt.Errorf("repositories must be initialized before services")
	}

	container.Estimator = returns.NewEstimator(cfg.Analytics.MaxGap, log)
	container.Calculator = risk.NewCalculator(risk.Config{
		PeriodsPerYear:      cfg.Analytics.PeriodsPerYear,
		SortinoUsesRiskFree: cfg.Analytics.SortinoUsesRiskFree,
		TailAlphas:          cfg.Analytics.TailAlphas,
		RollingWindow:       cfg.Analytics.RollingWindow,
	}, log)
	container.Optimizer = optimization.NewEngine(optimization.Config{
		PeriodsPerYear: cfg.Analytics.PeriodsPerYear,
		MaxCondition:   cfg.Optimization.MaxCondition,
		MaxIterations:  cfg.Optimization.MaxIterations,
		FrontierPoints: cfg.Optimization.FrontierPoints,
	}, log)

	container.AnalyticsService = analytics.NewService(
		container.Prices,
		container.Estimator,
		container.Calculator,
		container.Optimizer,
		container.PortfolioStore,
		container.Cache,
		analytics.Config{
			DefaultBounds:      cfg.Analytics.DefaultBounds,
			ReturnConvention:   cfg.Analytics.ReturnConvention,
			CovarianceMethod:   cfg.Analytics.CovarianceMethod,
			ShrinkageIntensity: cfg.Analytics.ShrinkageIntensity,
			TTL:                cfg.Cache.AnalyticsTTL,
			Coalesce:           cfg.Cache.Coalesce,
		},
		log,
	)
	container.PortfolioService = portfolio.NewService(container.PortfolioStore, log)

	container.Scheduler = scheduler.New(log)

	log.Info().Msg("Services initialized")

	return nil
}
