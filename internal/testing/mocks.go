package testing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// StaticProvider is an in-memory PriceSeriesProvider
type StaticProvider struct {
	mu     sync.RWMutex
	series map[string]domain.PriceSeries
	calls  atomic.Int64
	delay  time.Duration
}

// NewStaticProvider creates a provider serving the given series
func NewStaticProvider(series ...domain.PriceSeries) *StaticProvider {
	p := &StaticProvider{series: make(map[string]domain.PriceSeries)}
	for _, s := range series {
		p.Set(s)
	}
	return p
}

// Set adds or replaces a series
func (p *StaticProvider) Set(s domain.PriceSeries) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series[strings.ToUpper(s.Symbol)] = s
}

// SetDelay makes every GetPrices call sleep, to widen race windows in tests
func (p *StaticProvider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Calls returns how many times GetPrices was invoked
func (p *StaticProvider) Calls() int64 {
	return p.calls.Load()
}

// GetPrices returns the points of symbol within [start, end]; a zero bound is open
func (p *StaticProvider) GetPrices(ctx context.Context, symbol string, start, end time.Time) (domain.PriceSeries, error) {
	p.calls.Add(1)

	p.mu.RLock()
	s, ok := p.series[strings.ToUpper(symbol)]
	delay := p.delay
	p.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.PriceSeries{}, ctx.Err()
		}
	}

	if !ok {
		return domain.PriceSeries{}, &domain.DataUnavailableError{Symbol: symbol}
	}

	out := domain.PriceSeries{Symbol: s.Symbol}
	for _, pt := range s.Points {
		if (!start.IsZero() && pt.Date.Before(start)) || (!end.IsZero() && pt.Date.After(end)) {
			continue
		}
		out.Points = append(out.Points, pt)
	}
	if len(out.Points) == 0 {
		return domain.PriceSeries{}, &domain.DataUnavailableError{Symbol: symbol}
	}
	return out, nil
}

// MemoryPortfolioStore is an in-memory domain.PortfolioStore
type MemoryPortfolioStore struct {
	mu         sync.RWMutex
	portfolios map[string]domain.Portfolio
}

// NewMemoryPortfolioStore creates an empty store
func NewMemoryPortfolioStore() *MemoryPortfolioStore {
	return &MemoryPortfolioStore{portfolios: make(map[string]domain.Portfolio)}
}

// Get returns a copy of the stored portfolio
func (s *MemoryPortfolioStore) Get(_ context.Context, id string) (*domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[id]
	if !ok {
		return nil, domain.ErrPortfolioNotFound
	}
	return &p, nil
}

// Put stores a copy of p
func (s *MemoryPortfolioStore) Put(_ context.Context, p *domain.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[p.ID] = *p
	return nil
}

// Delete removes a portfolio
func (s *MemoryPortfolioStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portfolios[id]; !ok {
		return domain.ErrPortfolioNotFound
	}
	delete(s.portfolios, id)
	return nil
}

// List returns all portfolios ordered by name
func (s *MemoryPortfolioStore) List(_ context.Context) ([]domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
