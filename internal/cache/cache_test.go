package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
	testhelpers "github.com/aristath/portfolio-engine/internal/testing"
)

// failingStore errors on every call and counts how often it was reached
type failingStore struct {
	calls atomic.Int64
}

func (s *failingStore) Name() string { return "failing" }

func (s *failingStore) Get(context.Context, string) ([]byte, error) {
	s.calls.Add(1)
	return nil, errors.New("boom")
}

func (s *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	s.calls.Add(1)
	return errors.New("boom")
}

func (s *failingStore) Delete(context.Context, string) error {
	s.calls.Add(1)
	return errors.New("boom")
}

func (s *failingStore) Available(context.Context) bool { return false }

func (s *failingStore) Sweep(context.Context) (int, error) { return 0, errors.New("boom") }

func (s *failingStore) Close() error { return nil }

// slowStore blocks until the call deadline
type slowStore struct{ *MemoryStore }

func (s *slowStore) Get(ctx context.Context, key string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stuckStore ignores ctx and takes far longer than any call deadline
type stuckStore struct {
	*MemoryStore
	delay time.Duration
}

func (s *stuckStore) Get(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.MemoryStore.Get(context.Background(), key)
}

func (s *stuckStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	time.Sleep(s.delay)
	return s.MemoryStore.Set(context.Background(), key, value, ttl)
}

func sampleResult() *domain.AnalyticsResult {
	sharpe := 8.5522447584244254
	return &domain.AnalyticsResult{
		Symbols:              []string{"AAA", "BBB"},
		Weights:              []float64{0.5, 0.5},
		StartDate:            "2024-01-02",
		EndDate:              "2024-01-05",
		Observations:         3,
		ReturnConvention:     domain.ReturnSimple,
		Strategy:             domain.StrategyNone,
		RiskFreeRate:         0.02,
		PeriodsPerYear:       252,
		MeanReturn:           0.008420206366374937,
		AnnualizedReturn:     2.1218920043264835,
		AnnualizedVolatility: 0.24577079628784082,
		Sharpe:               &sharpe,
		Drawdown:             domain.Drawdown{Max: -0.005, PeakDate: "2024-01-02", TroughDate: "2024-01-03"},
		TailRisk:             []domain.TailRisk{{Alpha: 0.05, VaR: -0.005, CVaR: -0.005}},
		Covariance: domain.CovarianceSummary{
			Matrix: [][]float64{
				{0.0001300814427143717, -6.208345759840144e-05},
				{-6.208345759840144e-05, 0.0009528677630849606},
			},
			Volatilities: []float64{0.18, 0.49},
			Method:       "sample",
		},
	}
}

func newTestCache(store Store) *Cache {
	return New(store, Options{Timeout: 100 * time.Millisecond, FailureThreshold: 3, OpenTimeout: time.Hour}, zerolog.Nop())
}

func TestCache_RoundTrip(t *testing.T) {
	c := newTestCache(NewMemoryStore())
	analytics := NewTyped[domain.AnalyticsResult](c, SchemaAnalytics, time.Minute)
	ctx := context.Background()

	_, ok := analytics.Get(ctx, "k")
	assert.False(t, ok)

	want := sampleResult()
	analytics.Set(ctx, "k", want, 0)

	got, ok := analytics.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Nil(t, got.Sortino)
	assert.Nil(t, got.Beta)

	analytics.Invalidate(ctx, "k")
	_, ok = analytics.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCache(store)
	ctx := context.Background()

	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(ctx, SchemaAnalytics, "k", sampleResult(), time.Minute)

	var out domain.AnalyticsResult
	assert.True(t, c.Get(ctx, SchemaAnalytics, "k", &out))

	// The store still holds the entry; the envelope says it is stale
	now = now.Add(61 * time.Second)
	assert.False(t, c.Get(ctx, SchemaAnalytics, "k", &out))
}

func TestCache_SchemaMismatchIsMiss(t *testing.T) {
	c := newTestCache(NewMemoryStore())
	ctx := context.Background()

	c.Set(ctx, SchemaOptimization, "k", &domain.OptimizationResult{Weights: []float64{1}}, time.Minute)

	var out domain.AnalyticsResult
	assert.False(t, c.Get(ctx, SchemaAnalytics, "k", &out))

	var opt domain.OptimizationResult
	assert.True(t, c.Get(ctx, SchemaOptimization, "k", &opt))
	assert.Equal(t, []float64{1}, opt.Weights)
}

func TestCache_KeyMismatchIsMiss(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCache(store)
	ctx := context.Background()

	data, err := encodeEntry(SchemaAnalytics, "other", sampleResult(), time.Now(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", data, time.Minute))

	var out domain.AnalyticsResult
	assert.False(t, c.Get(ctx, SchemaAnalytics, "k", &out))
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCache(store)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("not msgpack at all"), time.Minute))

	var out domain.AnalyticsResult
	assert.False(t, c.Get(ctx, SchemaAnalytics, "k", &out))
	assert.False(t, c.Degraded(), "decode failures must not trip the breaker")
}

func TestCache_FailingStoreDegrades(t *testing.T) {
	store := &failingStore{}
	c := newTestCache(store)
	ctx := context.Background()

	var out domain.AnalyticsResult
	for i := 0; i < 10; i++ {
		assert.False(t, c.Get(ctx, SchemaAnalytics, "k", &out))
	}
	c.Set(ctx, SchemaAnalytics, "k", sampleResult(), time.Minute)
	c.Invalidate(ctx, "k")

	assert.True(t, c.Degraded())
	assert.Equal(t, int64(3), store.calls.Load(), "an open breaker must not reach the store")
	assert.Equal(t, 0, c.Sweep(ctx))
}

func TestCache_MissesDoNotTripBreaker(t *testing.T) {
	c := newTestCache(NewMemoryStore())
	ctx := context.Background()

	var out domain.AnalyticsResult
	for i := 0; i < 10; i++ {
		assert.False(t, c.Get(ctx, SchemaAnalytics, fmt.Sprintf("k%d", i), &out))
	}
	assert.False(t, c.Degraded())
}

func TestCache_Timeout(t *testing.T) {
	c := New(&slowStore{MemoryStore: NewMemoryStore()}, Options{Timeout: 20 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	var out domain.AnalyticsResult
	assert.False(t, c.Get(context.Background(), SchemaAnalytics, "k", &out))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCache_TimeoutWithStoreIgnoringContext(t *testing.T) {
	store := &stuckStore{MemoryStore: NewMemoryStore(), delay: 2 * time.Second}
	c := New(store, Options{Timeout: 20 * time.Millisecond, FailureThreshold: 5}, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	c.Set(ctx, SchemaAnalytics, "k", sampleResult(), time.Minute)
	var out domain.AnalyticsResult
	assert.False(t, c.Get(ctx, SchemaAnalytics, "k", &out))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCache_UnreachableRedis(t *testing.T) {
	store := NewRedisStore(RedisOptions{Addr: "127.0.0.1:1", Timeout: 50 * time.Millisecond})
	c := newTestCache(store)
	defer c.Close()
	ctx := context.Background()

	assert.False(t, c.Available(ctx))

	analytics := NewTyped[domain.AnalyticsResult](c, SchemaAnalytics, time.Minute)
	for i := 0; i < 5; i++ {
		analytics.Set(ctx, "k", sampleResult(), 0)
		_, ok := analytics.Get(ctx, "k")
		assert.False(t, ok)
	}
	analytics.Invalidate(ctx, "k")
	assert.True(t, c.Degraded())
}

func TestCache_NopStore(t *testing.T) {
	c := newTestCache(NopStore{})
	ctx := context.Background()

	c.Set(ctx, SchemaAnalytics, "k", sampleResult(), time.Minute)
	var out domain.AnalyticsResult
	assert.False(t, c.Get(ctx, SchemaAnalytics, "k", &out))
	assert.Equal(t, "none", c.Backend())
	assert.False(t, c.Degraded())
}

func TestCache_ZeroTTLIsNotStored(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCache(store)

	c.Set(context.Background(), SchemaAnalytics, "k", sampleResult(), 0)
	assert.Equal(t, 0, store.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache(NewMemoryStore())
	analytics := NewTyped[domain.AnalyticsResult](c, SchemaAnalytics, time.Minute)
	ctx := context.Background()
	want := sampleResult()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			for j := 0; j < 50; j++ {
				analytics.Set(ctx, key, want, 0)
				if got, ok := analytics.Get(ctx, key); ok {
					assert.Equal(t, want.Sharpe, got.Sharpe)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("b"), time.Hour))

	now = now.Add(time.Minute)
	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestSQLiteStore(t *testing.T) {
	db, _ := testhelpers.NewTestDB(t, "cache")
	store := NewSQLiteStore(db.Conn())
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, store.Set(ctx, "k", []byte("v2"), time.Minute))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, store.Set(ctx, "other", []byte("x"), time.Hour))
	now = now.Add(2 * time.Minute)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.NoError(t, store.Delete(ctx, "other"))
	_, err = store.Get(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, store.Available(ctx))
}

func TestBadgerStore(t *testing.T) {
	store, err := OpenBadgerStore("")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	c := newTestCache(store)
	analytics := NewTyped[domain.AnalyticsResult](c, SchemaAnalytics, time.Minute)

	want := sampleResult()
	analytics.Set(ctx, "k", want, 0)
	got, ok := analytics.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, want, got)

	analytics.Invalidate(ctx, "k")
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Sweep(ctx)
	assert.NoError(t, err)
	assert.True(t, store.Available(ctx))
}
