package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/fingerprint"
)

// universe is a validated, sorted set of symbols with optional weights
type universe struct {
	symbols []string
	weights []float64 // Normalized to sum to 1, nil when none were given
}

// normalizeUniverse trims, upper-cases, dedupes and sorts symbols, carrying
// weights with them. Repeating a symbol with the same weight is harmless; a
// conflicting weight is rejected, as is a negative one. Weights are
// scaled to sum to 1.
func normalizeUniverse(symbols []string, weights []float64, requireWeights bool) (universe, error) {
	if len(symbols) == 0 {
		return universe{}, domain.NewValidationError("symbols", "at least one symbol is required")
	}
	hasWeights := len(weights) > 0
	if hasWeights && len(weights) != len(symbols) {
		return universe{}, domain.NewValidationError("weights",
			"%d weights for %d symbols", len(weights), len(symbols))
	}

	type pair struct {
		symbol string
		weight float64
	}
	seen := make(map[string]float64, len(symbols))
	pairs := make([]pair, 0, len(symbols))
	for i, raw := range symbols {
		s := fingerprint.NormalizeSymbol(raw)
		if s == "" {
			return universe{}, domain.NewValidationError("symbols", "entry %d is empty", i)
		}
		var w float64
		if hasWeights {
			w = weights[i]
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return universe{}, domain.NewValidationError("weights", "entry %d (%s) is not finite", i, s)
			}
			if w < 0 {
				return universe{}, domain.NewValidationError("weights", "entry %d (%s) is negative, short positions are not supported", i, s)
			}
		}
		if prev, dup := seen[s]; dup {
			if prev != w {
				return universe{}, domain.NewValidationError("symbols", "%s is listed twice with different weights", s)
			}
			continue
		}
		seen[s] = w
		pairs = append(pairs, pair{symbol: s, weight: w})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].symbol < pairs[j].symbol })

	u := universe{symbols: make([]string, len(pairs))}
	for i, p := range pairs {
		u.symbols[i] = p.symbol
	}

	if !hasWeights {
		if requireWeights {
			u.weights = equalWeights(len(pairs))
		}
		return u, nil
	}

	var sum float64
	for _, p := range pairs {
		sum += p.weight
	}
	if !(sum > 0) {
		return universe{}, domain.NewValidationError("weights", "must sum to a positive value, got %g", sum)
	}
	u.weights = make([]float64, len(pairs))
	for i, p := range pairs {
		u.weights[i] = p.weight / sum
	}
	return u, nil
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

func validateWindow(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return domain.NewValidationError("end_date", "%s is before start date %s",
			domain.FormatDate(end), domain.FormatDate(start))
	}
	return nil
}

func validateRate(rf float64) error {
	if math.IsNaN(rf) || math.IsInf(rf, 0) {
		return domain.NewValidationError("risk_free_rate", "must be finite")
	}
	return nil
}

func validateTarget(target *float64) error {
	if target != nil && (math.IsNaN(*target) || math.IsInf(*target, 0)) {
		return domain.NewValidationError("target_return", "must be finite")
	}
	return nil
}

func (s *Service) convention(c domain.ReturnConvention) (domain.ReturnConvention, error) {
	if c == "" {
		return s.cfg.ReturnConvention, nil
	}
	if !c.Valid() {
		return "", domain.NewValidationError("return_convention", "unsupported convention %q", c)
	}
	return c, nil
}

func (s *Service) bounds(b *domain.Bounds) *domain.Bounds {
	if b != nil {
		out := *b
		return &out
	}
	out := s.cfg.DefaultBounds
	return &out
}

// normalizeAnalytics validates req and rewrites it into the canonical form
// the pipeline and the fingerprint both see. Fields that cannot affect the
// result are cleared so they do not split the cache.
func (s *Service) normalizeAnalytics(req domain.PortfolioRequest) (domain.PortfolioRequest, error) {
	u, err := normalizeUniverse(req.Symbols, req.Weights, true)
	if err != nil {
		return req, err
	}
	strategy, ok := domain.ParseStrategy(string(req.Strategy))
	if !ok {
		return req, domain.NewValidationError("strategy", "unsupported strategy %q", req.Strategy)
	}
	if err := validateWindow(req.StartDate, req.EndDate); err != nil {
		return req, err
	}
	if err := validateRate(req.RiskFreeRate); err != nil {
		return req, err
	}
	if err := validateTarget(req.TargetReturn); err != nil {
		return req, err
	}
	if strategy == domain.StrategyMeanVariance && req.TargetReturn == nil {
		return req, domain.NewValidationError("target_return", "required by %s", strategy)
	}
	convention, err := s.convention(req.ReturnConvention)
	if err != nil {
		return req, err
	}

	out := domain.PortfolioRequest{
		Symbols:          u.symbols,
		Weights:          u.weights,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Strategy:         strategy,
		RiskFreeRate:     req.RiskFreeRate,
		Benchmark:        fingerprint.NormalizeSymbol(req.Benchmark),
		ReturnConvention: convention,
	}
	if strategy != domain.StrategyNone {
		out.Bounds = s.bounds(req.Bounds)
	}
	if strategy == domain.StrategyMeanVariance {
		t := *req.TargetReturn
		out.TargetReturn = &t
	}
	return out, nil
}

// normalizeOptimize resolves the default strategy: mean_variance when a
// target is given, max_sharpe otherwise.
func (s *Service) normalizeOptimize(req domain.OptimizeRequest) (domain.OptimizeRequest, error) {
	u, err := normalizeUniverse(req.Symbols, nil, false)
	if err != nil {
		return req, err
	}
	strategy, ok := domain.ParseStrategy(string(req.Strategy))
	if !ok {
		return req, domain.NewValidationError("strategy", "unsupported strategy %q", req.Strategy)
	}
	if strategy == domain.StrategyNone {
		strategy = domain.StrategyMaxSharpe
		if req.TargetReturn != nil {
			strategy = domain.StrategyMeanVariance
		}
	}
	if err := validateWindow(req.StartDate, req.EndDate); err != nil {
		return req, err
	}
	if err := validateRate(req.RiskFreeRate); err != nil {
		return req, err
	}
	if err := validateTarget(req.TargetReturn); err != nil {
		return req, err
	}
	if strategy == domain.StrategyMeanVariance && req.TargetReturn == nil {
		return req, domain.NewValidationError("target_return", "required by %s", strategy)
	}
	convention, err := s.convention(req.ReturnConvention)
	if err != nil {
		return req, err
	}

	out := domain.OptimizeRequest{
		Symbols:          u.symbols,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Strategy:         strategy,
		RiskFreeRate:     req.RiskFreeRate,
		Bounds:           s.bounds(req.Bounds),
		ReturnConvention: convention,
	}
	if strategy == domain.StrategyMeanVariance {
		t := *req.TargetReturn
		out.TargetReturn = &t
	}
	return out, nil
}

func (s *Service) normalizeFrontier(req domain.FrontierRequest) (domain.FrontierRequest, error) {
	u, err := normalizeUniverse(req.Symbols, nil, false)
	if err != nil {
		return req, err
	}
	if req.Points < 0 || req.Points > MaxFrontierPoints {
		return req, domain.NewValidationError("points", "must be in [0, %d], got %d", MaxFrontierPoints, req.Points)
	}
	if err := validateWindow(req.StartDate, req.EndDate); err != nil {
		return req, err
	}
	if err := validateRate(req.RiskFreeRate); err != nil {
		return req, err
	}
	convention, err := s.convention(req.ReturnConvention)
	if err != nil {
		return req, err
	}

	points := req.Points
	if points == 0 {
		points = s.optimizer.FrontierPoints()
	}
	return domain.FrontierRequest{
		Symbols:          u.symbols,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Points:           points,
		RiskFreeRate:     req.RiskFreeRate,
		Bounds:           s.bounds(req.Bounds),
		ReturnConvention: convention,
	}, nil
}
