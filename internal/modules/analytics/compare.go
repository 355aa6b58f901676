package analytics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// CompareRequest names stored portfolios to evaluate over a common window
type CompareRequest struct {
	PortfolioIDs []string
	StartDate    time.Time
	EndDate      time.Time
	RiskFreeRate float64
	Benchmark    string
}

// PortfolioAnalytics is one compared portfolio
type PortfolioAnalytics struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Analytics *domain.AnalyticsResult `json:"analytics"`
	CacheHit  bool                    `json:"cache_hit"`
}

// Leader is the portfolio that wins one summary category
type Leader struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ComparisonSummary picks the best portfolio per category. A category is
// nil when no portfolio has the metric defined.
type ComparisonSummary struct {
	BestReturn         *Leader `json:"best_return"`
	BestSharpe         *Leader `json:"best_sharpe"`
	LowestVolatility   *Leader `json:"lowest_volatility"`
	ShallowestDrawdown *Leader `json:"shallowest_drawdown"`
}

// Comparison is the result of Compare
type Comparison struct {
	Portfolios []PortfolioAnalytics `json:"portfolios"`
	Summary    ComparisonSummary    `json:"summary"`
}

// Compare computes the analytics of every named portfolio with its stored
// weights and ranks them. An unknown id fails the whole comparison.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (*Comparison, error) {
	if s.portfolios == nil {
		return nil, errors.New("portfolio store not configured")
	}
	ids := dedupeIDs(req.PortfolioIDs)
	if len(ids) == 0 {
		return nil, domain.NewValidationError("portfolio_ids", "at least one portfolio id is required")
	}

	out := &Comparison{Portfolios: make([]PortfolioAnalytics, 0, len(ids))}
	for _, id := range ids {
		p, err := s.portfolios.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		resp, err := s.ComputeAnalytics(ctx, domain.PortfolioRequest{
			Symbols:      p.Symbols,
			Weights:      p.Weights,
			StartDate:    req.StartDate,
			EndDate:      req.EndDate,
			Strategy:     domain.StrategyNone,
			RiskFreeRate: req.RiskFreeRate,
			Benchmark:    req.Benchmark,
		})
		if err != nil {
			return nil, err
		}
		out.Portfolios = append(out.Portfolios, PortfolioAnalytics{
			ID:        p.ID,
			Name:      p.Name,
			Analytics: resp.Result,
			CacheHit:  resp.CacheHit,
		})
	}

	out.Summary = summarize(out.Portfolios)
	return out, nil
}

func summarize(ps []PortfolioAnalytics) ComparisonSummary {
	var sum ComparisonSummary
	pick := func(cur **Leader, p PortfolioAnalytics, v float64, better func(a, b float64) bool) {
		if *cur == nil || better(v, (*cur).Value) {
			*cur = &Leader{ID: p.ID, Name: p.Name, Value: v}
		}
	}
	higher := func(a, b float64) bool { return a > b }
	lower := func(a, b float64) bool { return a < b }

	for _, p := range ps {
		a := p.Analytics
		pick(&sum.BestReturn, p, a.AnnualizedReturn, higher)
		if a.Sharpe != nil {
			pick(&sum.BestSharpe, p, *a.Sharpe, higher)
		}
		pick(&sum.LowestVolatility, p, a.AnnualizedVolatility, lower)
		// Drawdowns are non-positive; the shallowest is the largest
		pick(&sum.ShallowestDrawdown, p, a.Drawdown.Max, higher)
	}
	return sum
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
