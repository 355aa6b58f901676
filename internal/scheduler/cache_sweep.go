package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper removes expired cache entries
type Sweeper interface {
	Sweep(ctx context.Context) int
	Backend() string
}

// CacheSweepJob purges expired entries from the analytics cache backend
type CacheSweepJob struct {
	cache   Sweeper
	timeout time.Duration
	log     zerolog.Logger
}

// NewCacheSweepJob creates a new CacheSweepJob
func NewCacheSweepJob(cache Sweeper, timeout time.Duration, log zerolog.Logger) *CacheSweepJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CacheSweepJob{
		cache:   cache,
		timeout: timeout,
		log:     log.With().Str("job", "cache_sweep").Logger(),
	}
}

// Name returns the job name
func (j *CacheSweepJob) Name() string {
	return "cache_sweep"
}

// Run executes the sweep. Backend failures are absorbed by the cache.
func (j *CacheSweepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	removed := j.cache.Sweep(ctx)

	j.log.Info().
		Str("backend", j.cache.Backend()).
		Int("removed", removed).
		Dur("duration", time.Since(start)).
		Msg("Cache sweep completed")
	return nil
}
