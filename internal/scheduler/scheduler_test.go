package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/cache"
	"github.com/aristath/portfolio-engine/internal/database"
	testhelpers "github.com/aristath/portfolio-engine/internal/testing"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}

	require.NoError(t, s.AddJob("@every 1s", ok))
	require.NoError(t, s.AddJob("@every 1s", failing))

	jobs := s.Jobs()
	assert.Contains(t, jobs, "ok")
	assert.Contains(t, jobs, "failing")

	s.Start()
	assert.Eventually(t, func() bool {
		return ok.runs.Load() > 0 && failing.runs.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	assert.Error(t, s.AddJob("every now and then", &countingJob{name: "x"}))
	assert.Empty(t, s.Jobs())
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "now"}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestCacheSweepJob(t *testing.T) {
	store := cache.NewMemoryStore()
	c := cache.New(store, cache.Options{Name: "sweep_job"}, zerolog.Nop())
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, cache.SchemaAnalytics, "short", map[string]int{"a": 1}, 20*time.Millisecond)
	c.Set(ctx, cache.SchemaAnalytics, "long", map[string]int{"b": 2}, time.Hour)
	time.Sleep(40 * time.Millisecond)

	job := NewCacheSweepJob(c, 0, zerolog.Nop())
	assert.Equal(t, "cache_sweep", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, 1, store.Len())
}

func TestWALCheckpointJob(t *testing.T) {
	history, _ := testhelpers.NewTestDB(t, database.NameHistory)
	portfolios, _ := testhelpers.NewTestDB(t, database.NamePortfolios)

	job := NewWALCheckpointJob(map[string]*database.DB{
		"history":    history,
		"portfolios": portfolios,
		"cache":      nil,
	}, zerolog.Nop())

	assert.Equal(t, "wal_checkpoint", job.Name())
	assert.NoError(t, job.Run())
}

func TestDatabaseMaintenanceJob(t *testing.T) {
	history, _ := testhelpers.NewTestDB(t, database.NameHistory)
	portfolios, _ := testhelpers.NewTestDB(t, database.NamePortfolios)

	job := NewDatabaseMaintenanceJob(map[string]*database.DB{
		"history":    history,
		"portfolios": portfolios,
		"cache":      nil,
	}, t.TempDir(), zerolog.Nop())

	assert.Equal(t, "db_maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestDatabaseMaintenanceJob_ClosedDatabase(t *testing.T) {
	history, _ := testhelpers.NewTestDB(t, database.NameHistory)
	require.NoError(t, history.Close())

	job := NewDatabaseMaintenanceJob(map[string]*database.DB{"history": history}, "", zerolog.Nop())
	assert.Error(t, job.Run())
}
