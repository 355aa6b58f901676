package testing

import (
	"math"
	"math/rand"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Day returns midnight UTC for the given calendar date
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TradingDays returns n consecutive weekdays starting at start (inclusive,
// rolled forward if start falls on a weekend).
func TradingDays(start time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	d := start
	for len(days) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return days
}

// SeriesFromCloses builds a PriceSeries on consecutive trading days
func SeriesFromCloses(symbol string, start time.Time, closes ...float64) domain.PriceSeries {
	dates := TradingDays(start, len(closes))
	points := make([]domain.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = domain.PricePoint{Date: dates[i], Close: c}
	}
	return domain.PriceSeries{Symbol: symbol, Points: points}
}

// SyntheticSeries generates a deterministic geometric random walk.
// drift and vol are per period.
func SyntheticSeries(symbol string, start time.Time, n int, drift, vol float64, seed int64) domain.PriceSeries {
	rng := rand.New(rand.NewSource(seed))
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		closes[i] = price
		price *= math.Exp(drift + vol*rng.NormFloat64())
	}
	return SeriesFromCloses(symbol, start, closes...)
}

// ReferenceUniverse returns the two-asset fixture used by end-to-end tests:
// A = [100, 101, 102, 101], B = [50, 49, 51, 52] starting 2024-01-02.
func ReferenceUniverse() []domain.PriceSeries {
	start := Day(2024, 1, 2)
	return []domain.PriceSeries{
		SeriesFromCloses("AAA", start, 100, 101, 102, 101),
		SeriesFromCloses("BBB", start, 50, 49, 51, 52),
	}
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
