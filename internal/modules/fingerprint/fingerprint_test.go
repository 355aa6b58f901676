package fingerprint

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
)

var settings = Settings{CovarianceMethod: "sample", PeriodsPerYear: 252, MaxGap: 3}

func baseRequest() domain.PortfolioRequest {
	return domain.PortfolioRequest{
		Symbols:          []string{"AAPL", "MSFT"},
		Weights:          []float64{0.6, 0.4},
		StartDate:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		Strategy:         domain.StrategyMaxSharpe,
		RiskFreeRate:     0.02,
		Benchmark:        "SPY",
		Bounds:           &domain.Bounds{MinWeight: 0, MaxWeight: 1},
		ReturnConvention: domain.ReturnSimple,
	}
}

func TestCanonicalText(t *testing.T) {
	req := baseRequest()
	c := Canonical{
		Symbols:    req.Symbols,
		Weights:    req.Weights,
		Start:      req.StartDate,
		End:        req.EndDate,
		Strategy:   req.Strategy,
		Convention: req.ReturnConvention,
		RiskFree:   req.RiskFreeRate,
		Benchmark:  req.Benchmark,
		Bounds:     req.Bounds,
		Op:         OpAnalytics,
	}

	expected := strings.Join([]string{
		"pae/v1",
		"symbols=AAPL,MSFT",
		"weights=0.6,0.4",
		"start=2024-01-02",
		"end=2024-06-28",
		"strategy=max_sharpe",
		"convention=simple",
		"rf=0.02",
		"benchmark=SPY",
		"target=",
		"bounds=0,1",
		"op=analytics",
	}, "\n") + "\n"
	assert.Equal(t, expected, c.Text())
}

func TestAnalytics_Shape(t *testing.T) {
	key := Analytics(baseRequest(), settings)
	assert.Len(t, string(key), 64)
	assert.True(t, Valid(string(key)))
	assert.Equal(t, key, Analytics(baseRequest(), settings))
}

func TestAnalytics_OrderInvariant(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.Symbols = []string{"msft ", " aapl"}
	b.Weights = []float64{0.4, 0.6}

	assert.Equal(t, Analytics(a, settings), Analytics(b, settings))
}

func TestAnalytics_DistinctRequests(t *testing.T) {
	target := 0.1
	mutations := map[string]func(r *domain.PortfolioRequest){
		"symbols":    func(r *domain.PortfolioRequest) { r.Symbols = []string{"AAPL", "GOOG"} },
		"weights":    func(r *domain.PortfolioRequest) { r.Weights = []float64{0.5, 0.5} },
		"swapped":    func(r *domain.PortfolioRequest) { r.Weights = []float64{0.4, 0.6} },
		"start":      func(r *domain.PortfolioRequest) { r.StartDate = r.StartDate.AddDate(0, 0, 1) },
		"end":        func(r *domain.PortfolioRequest) { r.EndDate = r.EndDate.AddDate(0, 0, -1) },
		"strategy":   func(r *domain.PortfolioRequest) { r.Strategy = domain.StrategyRiskParity },
		"convention": func(r *domain.PortfolioRequest) { r.ReturnConvention = domain.ReturnLog },
		"rf":         func(r *domain.PortfolioRequest) { r.RiskFreeRate = 0.03 },
		"benchmark":  func(r *domain.PortfolioRequest) { r.Benchmark = "QQQ" },
		"target":     func(r *domain.PortfolioRequest) { r.TargetReturn = &target },
		"bounds":     func(r *domain.PortfolioRequest) { r.Bounds = &domain.Bounds{MinWeight: 0.1, MaxWeight: 0.9} },
		"no bounds":  func(r *domain.PortfolioRequest) { r.Bounds = nil },
	}

	base := Analytics(baseRequest(), settings)
	seen := map[Key]string{base: "base"}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			req := baseRequest()
			mutate(&req)
			key := Analytics(req, settings)
			assert.NotEqual(t, base, key)
			prev, dup := seen[key]
			assert.False(t, dup, "collides with %s", prev)
			seen[key] = name
		})
	}
}

func TestAnalytics_Defaults(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.ReturnConvention = ""
	assert.Equal(t, Analytics(a, settings), Analytics(b, settings))

	a.Strategy = domain.StrategyNone
	b.Strategy = ""
	assert.Equal(t, Analytics(a, settings), Analytics(b, settings))
}

func TestOperationsDoNotCollide(t *testing.T) {
	req := baseRequest()
	req.Weights = nil
	req.Benchmark = ""
	req.Strategy = domain.StrategyMeanVariance

	analytics := Analytics(req, settings)
	optimize := Optimize(domain.OptimizeRequest{
		Symbols:          req.Symbols,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Strategy:         req.Strategy,
		RiskFreeRate:     req.RiskFreeRate,
		Bounds:           req.Bounds,
		ReturnConvention: req.ReturnConvention,
	}, settings)
	frontier := Frontier(domain.FrontierRequest{
		Symbols:          req.Symbols,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		RiskFreeRate:     req.RiskFreeRate,
		Bounds:           req.Bounds,
		ReturnConvention: req.ReturnConvention,
	}, settings)

	assert.NotEqual(t, analytics, optimize)
	assert.NotEqual(t, analytics, frontier)
	assert.NotEqual(t, optimize, frontier)
}

func TestFrontier_Points(t *testing.T) {
	req := domain.FrontierRequest{Symbols: []string{"A", "B"}, Points: 10}
	other := req
	other.Points = 20
	assert.NotEqual(t, Frontier(req, settings), Frontier(other, settings))
}

func TestBacktest_Capital(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	a := Backtest([]string{"A", "B"}, []float64{0.5, 0.5}, start, time.Time{}, 10000)
	b := Backtest([]string{"b", "a"}, []float64{0.5, 0.5}, start, time.Time{}, 10000)
	c := Backtest([]string{"A", "B"}, []float64{0.5, 0.5}, start, time.Time{}, 5000)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	text := Canonical{Symbols: []string{"A"}, Capital: 10000, Op: OpBacktest}.Text()
	assert.Contains(t, text, "capital=10000\n")
	assert.NotContains(t, Canonical{Symbols: []string{"A"}, Op: OpBacktest}.Text(), "capital=")
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0", formatFloat(math.Copysign(0, -1)))
	assert.Equal(t, "0", formatFloat(0))
	assert.Equal(t, "0.1", formatFloat(0.1))
	assert.Equal(t, "1e-12", formatFloat(1e-12))
	assert.Equal(t, "0.30000000000000004", formatFloat(0.1+0.2))
}

func TestNegativeZeroWeight(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	a.Weights = []float64{1, 0}
	b.Weights = []float64{1, math.Copysign(0, -1)}
	assert.Equal(t, Analytics(a, settings), Analytics(b, settings))
}

func TestValid(t *testing.T) {
	key := string(Analytics(baseRequest(), settings))
	require.True(t, Valid(key))
	assert.False(t, Valid(key[:63]))
	assert.False(t, Valid(strings.ToUpper(key)))
	assert.False(t, Valid(strings.Repeat("z", 64)))
}

func TestSettingsChangeTheKey(t *testing.T) {
	base := Analytics(baseRequest(), settings)

	variants := map[string]Settings{
		"covariance method": {CovarianceMethod: "shrinkage", Shrinkage: 0.2, PeriodsPerYear: 252, MaxGap: 3},
		"shrinkage":         {CovarianceMethod: "shrinkage", Shrinkage: 0.5, PeriodsPerYear: 252, MaxGap: 3},
		"periods per year":  {CovarianceMethod: "sample", PeriodsPerYear: 52, MaxGap: 3},
		"max gap":           {CovarianceMethod: "sample", PeriodsPerYear: 252, MaxGap: 0},
	}
	seen := map[Key]string{}
	for name, v := range variants {
		key := Analytics(baseRequest(), v)
		assert.NotEqual(t, base, key, name)
		if prev, ok := seen[key]; ok {
			t.Errorf("%s and %s share a key", name, prev)
		}
		seen[key] = name
	}

	text := Canonical{Symbols: []string{"A"}, Settings: Settings{CovarianceMethod: "shrinkage", Shrinkage: 0.25, PeriodsPerYear: 12, MaxGap: 1}}.Text()
	assert.Contains(t, text, "covariance=shrinkage,0.25\nperiods=12\nmax_gap=1\n")
}
