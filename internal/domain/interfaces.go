package domain

import (
	"context"
	"time"
)

// PriceSeriesProvider supplies ordered closes for a symbol.
// Implementations return *DataUnavailableError when a symbol has no data
// in the requested window.
type PriceSeriesProvider interface {
	GetPrices(ctx context.Context, symbol string, start, end time.Time) (PriceSeries, error)
}

// PortfolioStore persists portfolio definitions.
// Get returns ErrPortfolioNotFound for unknown ids.
type PortfolioStore interface {
	Get(ctx context.Context, id string) (*Portfolio, error)
	Put(ctx context.Context, p *Portfolio) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Portfolio, error)
}
