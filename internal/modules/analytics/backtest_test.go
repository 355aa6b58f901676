package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/cache"
	"github.com/aristath/portfolio-engine/internal/domain"
	testhelpers "github.com/aristath/portfolio-engine/internal/testing"
)

func TestBacktest_ReferencePortfolio(t *testing.T) {
	f := newFixture(t, cache.NewMemoryStore())
	ctx := context.Background()
	req := BacktestRequest{
		Symbols:   []string{"AAA", "BBB"},
		Weights:   []float64{0.5, 0.5},
		StartDate: testhelpers.Day(2024, 1, 2),
	}

	resp, err := f.service.Backtest(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	r := resp.Result

	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, r.Dates)
	require.Len(t, r.Values, 4)
	assert.InDelta(t, 10000, r.Values[0], 1e-9)
	assert.InDelta(t, 9950, r.Values[1], 1e-9)
	assert.InDelta(t, 10202.31865023237, r.Values[2], 1e-7)
	assert.InDelta(t, 10252.33001616488, r.FinalValue, 1e-7)
	assert.InDelta(t, 10252.33001616488, r.MaxValue, 1e-7)
	assert.InDelta(t, 9950, r.MinValue, 1e-9)
	assert.InDelta(t, 0.025233001616488338, r.TotalReturn, 1e-10)
	assert.InDelta(t, 7.111412772423417, r.AnnualizedReturn, 1e-8)

	again, err := f.service.Backtest(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.CacheHit)

	// Capital is part of the key
	req.InitialValue = 1
	scaled, err := f.service.Backtest(ctx, req)
	require.NoError(t, err)
	assert.False(t, scaled.CacheHit)
	assert.InDelta(t, 1.025233001616488338, scaled.Result.FinalValue, 1e-12)
}

func TestBacktest_Validation(t *testing.T) {
	f := newFixture(t, cache.NewMemoryStore())
	ctx := context.Background()

	_, err := f.service.Backtest(ctx, BacktestRequest{})
	assert.True(t, domain.IsClientError(err))

	_, err = f.service.Backtest(ctx, BacktestRequest{Symbols: []string{"AAA"}, InitialValue: -5})
	assert.True(t, domain.IsClientError(err))

	_, err = f.service.Backtest(ctx, BacktestRequest{
		Symbols:   []string{"AAA"},
		StartDate: testhelpers.Day(2024, 2, 1),
		EndDate:   testhelpers.Day(2024, 1, 1),
	})
	assert.True(t, domain.IsClientError(err))
}

func TestSimulate_TotalLoss(t *testing.T) {
	dates := testhelpers.TradingDays(testhelpers.Day(2024, 1, 2), 3)
	r := simulate([]string{"X"}, []float64{1}, dates, []float64{-0.5, -1}, 100, 252)

	assert.Equal(t, []float64{100, 50, 0}, r.Values)
	assert.Equal(t, -1.0, r.TotalReturn)
	assert.Equal(t, -1.0, r.AnnualizedReturn)
	assert.Equal(t, 0.0, r.MinValue)
	assert.Equal(t, 100.0, r.MaxValue)
	assert.Len(t, r.Dates, 3)
	assert.Equal(t, dates[2].Format(time.DateOnly), r.Dates[2])
}
