package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/portfolio-engine/internal/database"
)

const (
	// minFreeDiskMB fails the job when the data volume has less free space
	minFreeDiskMB = 500
	// lowFreeDiskMB logs a warning below this threshold
	lowFreeDiskMB = 5 * 1024
)

// DatabaseMaintenanceJob performs the daily database maintenance:
// integrity check, planner statistics refresh and a disk space check
type DatabaseMaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	timeout   time.Duration
	log       zerolog.Logger
}

// NewDatabaseMaintenanceJob creates a new DatabaseMaintenanceJob
func NewDatabaseMaintenanceJob(databases map[string]*database.DB, dataDir string, log zerolog.Logger) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		timeout:   5 * time.Minute,
		log:       log.With().Str("job", "db_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run executes the maintenance. A failed integrity check or a nearly full
// disk is returned as an error; optimize failures are only logged.
func (j *DatabaseMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	startTime := time.Now()

	names := make([]string, 0, len(j.databases))
	for name := range j.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		db := j.databases[name]
		if db == nil {
			continue
		}

		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().
				Err(err).
				Str("database", name).
				Msg("Integrity check failed")
			failed = append(failed, name)
			continue
		}

		if _, err := db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("PRAGMA optimize failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if len(failed) > 0 {
		return fmt.Errorf("integrity check failed for %v", failed)
	}

	j.log.Info().
		Int("databases", len(names)).
		Dur("duration", time.Since(startTime)).
		Msg("Database maintenance completed")
	return nil
}

func (j *DatabaseMaintenanceJob) checkDiskSpace() error {
	if j.dataDir == "" {
		return nil
	}

	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Str("path", j.dataDir).Msg("Failed to read disk usage")
		return nil
	}

	freeMB := float64(usage.Free) / 1024 / 1024
	j.log.Debug().Float64("free_mb", freeMB).Msg("Disk space check")

	if freeMB < minFreeDiskMB {
		return fmt.Errorf("only %.0f MB free on %s", freeMB, j.dataDir)
	}
	if freeMB < lowFreeDiskMB {
		j.log.Warn().Float64("free_mb", freeMB).Msg("Disk space running low")
	}
	return nil
}
