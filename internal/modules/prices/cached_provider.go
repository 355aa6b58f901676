package prices

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/cache"
	"github.com/aristath/portfolio-engine/internal/domain"
)

// Revisioner reports a counter that changes whenever the stored history
// of a symbol changes
type Revisioner interface {
	Revision(ctx context.Context, symbol string) (int64, error)
}

// CachedProvider decorates a provider with a price series cache. Cache
// failures fall through to the wrapped provider.
//
// When the wrapped provider is a Revisioner its revision is part of every
// key, so writes made by another process or before a restart are never
// served stale from a shared or persistent store.
type CachedProvider struct {
	next      domain.PriceSeriesProvider
	revisions Revisioner // nil when next has none
	cache     *cache.Typed[domain.PriceSeries]
	log       zerolog.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCachedProvider wraps next with c, keeping series for ttl
func NewCachedProvider(next domain.PriceSeriesProvider, c *cache.Cache, ttl time.Duration, log zerolog.Logger) *CachedProvider {
	revisions, _ := next.(Revisioner)
	return &CachedProvider{
		next:        next,
		revisions:   revisions,
		cache:       cache.NewTyped[domain.PriceSeries](c, cache.SchemaPrices, ttl),
		log:         log.With().Str("component", "cached_price_provider").Logger(),
		generations: make(map[string]uint64),
	}
}

// GetPrices implements domain.PriceSeriesProvider
func (p *CachedProvider) GetPrices(ctx context.Context, symbol string, start, end time.Time) (domain.PriceSeries, error) {
	symbol = normalize(symbol)
	key, err := p.key(ctx, symbol, start, end)
	if err != nil {
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("Price revision unavailable, bypassing cache")
		return p.next.GetPrices(ctx, symbol, start, end)
	}

	if s, ok := p.cache.Get(ctx, key); ok {
		p.log.Debug().Str("symbol", symbol).Msg("Price series cache hit")
		return utc(*s), nil
	}

	s, err := p.next.GetPrices(ctx, symbol, start, end)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	p.cache.Set(ctx, key, &s, 0)
	return s, nil
}

// Forget makes every cached range of symbol unreachable from this process.
// Writes through a Revisioner need no Forget; it covers providers without one.
func (p *CachedProvider) Forget(symbol string) {
	p.mu.Lock()
	p.generations[normalize(symbol)]++
	p.mu.Unlock()
}

func (p *CachedProvider) key(ctx context.Context, symbol string, start, end time.Time) (string, error) {
	var rev int64
	if p.revisions != nil {
		var err error
		if rev, err = p.revisions.Revision(ctx, symbol); err != nil {
			return "", err
		}
	}

	p.mu.Lock()
	gen := p.generations[symbol]
	p.mu.Unlock()

	return "prices:" + symbol + ":" + rangeBound(start) + ":" + rangeBound(end) +
		":" + strconv.FormatInt(rev, 10) + "." + strconv.FormatUint(gen, 10), nil
}

func rangeBound(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return domain.FormatDate(t)
}

// utc pins decoded timestamps to UTC so calendar dates survive the round trip
func utc(s domain.PriceSeries) domain.PriceSeries {
	points := make([]domain.PricePoint, len(s.Points))
	for i, pt := range s.Points {
		points[i] = domain.PricePoint{Date: pt.Date.UTC(), Close: pt.Close}
	}
	return domain.PriceSeries{Symbol: s.Symbol, Points: points}
}
