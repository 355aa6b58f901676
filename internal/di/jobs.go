// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/scheduler"
)

const (
	// WALCheckpointSchedule runs the checkpoint at the top of every hour
	WALCheckpointSchedule = "0 0 * * * *"
	// MaintenanceSchedule runs the database maintenance daily at 03:00
	MaintenanceSchedule = "0 0 3 * * *"
)

// RegisterJobs registers the background jobs with the container's scheduler.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	if container.Scheduler == nil {
		return nil, fmt.Errorf("scheduler must be initialized before jobs")
	}

	instances := &JobInstances{
		CacheSweep:    scheduler.NewCacheSweepJob(container.Cache, 0, log),
		WALCheckpoint: scheduler.NewWALCheckpointJob(container.Databases(), log),
		Maintenance:   scheduler.NewDatabaseMaintenanceJob(container.Databases(), cfg.DataDir, log),
	}

	if err := container.Scheduler.AddJob(cfg.Cache.SweepSchedule, instances.CacheSweep); err != nil {
		return nil, fmt.Errorf("failed to register cache sweep job: %w", err)
	}
	if err := container.Scheduler.AddJob(WALCheckpointSchedule, instances.WALCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to register WAL checkpoint job: %w", err)
	}
	if err := container.Scheduler.AddJob(MaintenanceSchedule, instances.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register database maintenance job: %w", err)
	}

	log.Info().Int("jobs", 3).Msg("Background jobs registered")

	return instances, nil
}
