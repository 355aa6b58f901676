// Package fingerprint derives deterministic cache keys from requests.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Version prefixes every canonical form. Bump it when the result shape
// changes so stale cache entries stop matching.
const Version = "pae/v1"

// Operations namespace keys of different result types
const (
	OpAnalytics = "analytics"
	OpOptimize  = "optimize"
	OpFrontier  = "frontier"
	OpBacktest  = "backtest"
)

// Key is a 64 character sha256 hex digest
type Key string

// Settings are the server side estimation settings every result depends
// on. They are hashed with the request so a reconfigured server never
// serves results computed under the old settings.
type Settings struct {
	CovarianceMethod string
	Shrinkage        float64 // Only meaningful with the shrinkage method
	PeriodsPerYear   int
	MaxGap           int
}

// Canonical is the normalized form of a request. Two requests that must
// produce the same result have the same Canonical.
type Canonical struct {
	Symbols    []string
	Weights    []float64 // Aligned with Symbols, nil when the operation has none
	Start      time.Time
	End        time.Time
	Strategy   domain.Strategy
	Convention domain.ReturnConvention
	RiskFree   float64
	Benchmark  string
	Target     *float64
	Bounds     *domain.Bounds
	Points     int
	Capital    float64 // Backtest starting value, omitted when zero
	Settings   Settings
	Op         string
}

// NormalizeSymbol trims and upper-cases a ticker
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Text renders the canonical form, one field per line. Symbols are sorted
// and weights are reordered with them.
func (c Canonical) Text() string {
	idx := make([]int, len(c.Symbols))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return NormalizeSymbol(c.Symbols[idx[a]]) < NormalizeSymbol(c.Symbols[idx[b]])
	})

	symbols := make([]string, len(idx))
	weights := make([]string, 0, len(c.Weights))
	for i, j := range idx {
		symbols[i] = NormalizeSymbol(c.Symbols[j])
		if j < len(c.Weights) {
			weights = append(weights, formatFloat(c.Weights[j]))
		}
	}

	convention := c.Convention
	if convention == "" {
		convention = domain.ReturnSimple
	}
	strategy := c.Strategy
	if strategy == "" {
		strategy = domain.StrategyNone
	}

	target := ""
	if c.Target != nil {
		target = formatFloat(*c.Target)
	}
	bounds := ""
	if c.Bounds != nil {
		bounds = formatFloat(c.Bounds.MinWeight) + "," + formatFloat(c.Bounds.MaxWeight)
	}

	var b strings.Builder
	b.WriteString(Version)
	b.WriteByte('\n')
	writeField(&b, "symbols", strings.Join(symbols, ","))
	writeField(&b, "weights", strings.Join(weights, ","))
	writeField(&b, "start", formatDate(c.Start))
	writeField(&b, "end", formatDate(c.End))
	writeField(&b, "strategy", string(strategy))
	writeField(&b, "convention", string(convention))
	writeField(&b, "rf", formatFloat(c.RiskFree))
	writeField(&b, "benchmark", NormalizeSymbol(c.Benchmark))
	writeField(&b, "target", target)
	writeField(&b, "bounds", bounds)
	if c.Points > 0 {
		writeField(&b, "points", strconv.Itoa(c.Points))
	}
	if c.Capital > 0 {
		writeField(&b, "capital", formatFloat(c.Capital))
	}
	if c.Settings != (Settings{}) {
		covariance := c.Settings.CovarianceMethod
		if c.Settings.Shrinkage != 0 {
			covariance += "," + formatFloat(c.Settings.Shrinkage)
		}
		writeField(&b, "covariance", covariance)
		writeField(&b, "periods", strconv.Itoa(c.Settings.PeriodsPerYear))
		writeField(&b, "max_gap", strconv.Itoa(c.Settings.MaxGap))
	}
	writeField(&b, "op", c.Op)
	return b.String()
}

// Key hashes the canonical text
func (c Canonical) Key() Key {
	sum := sha256.Sum256([]byte(c.Text()))
	return Key(hex.EncodeToString(sum[:]))
}

// Analytics fingerprints a compute_analytics request
func Analytics(req domain.PortfolioRequest, settings Settings) Key {
	return Canonical{
		Symbols:    req.Symbols,
		Weights:    req.Weights,
		Start:      req.StartDate,
		End:        req.EndDate,
		Strategy:   req.Strategy,
		Convention: req.ReturnConvention,
		RiskFree:   req.RiskFreeRate,
		Benchmark:  req.Benchmark,
		Target:     req.TargetReturn,
		Bounds:     req.Bounds,
		Settings:   settings,
		Op:         OpAnalytics,
	}.Key()
}

// Optimize fingerprints an optimize request
func Optimize(req domain.OptimizeRequest, settings Settings) Key {
	return Canonical{
		Symbols:    req.Symbols,
		Start:      req.StartDate,
		End:        req.EndDate,
		Strategy:   req.Strategy,
		Convention: req.ReturnConvention,
		RiskFree:   req.RiskFreeRate,
		Target:     req.TargetReturn,
		Bounds:     req.Bounds,
		Settings:   settings,
		Op:         OpOptimize,
	}.Key()
}

// Frontier fingerprints an efficient frontier request
func Frontier(req domain.FrontierRequest, settings Settings) Key {
	return Canonical{
		Symbols:    req.Symbols,
		Start:      req.StartDate,
		End:        req.EndDate,
		Strategy:   domain.StrategyMeanVariance,
		Convention: req.ReturnConvention,
		RiskFree:   req.RiskFreeRate,
		Bounds:     req.Bounds,
		Points:     req.Points,
		Settings:   settings,
		Op:         OpFrontier,
	}.Key()
}

// Backtest fingerprints a buy-and-hold backtest
func Backtest(symbols []string, weights []float64, start, end time.Time, capital float64) Key {
	return Canonical{
		Symbols:    symbols,
		Weights:    weights,
		Start:      start,
		End:        end,
		Strategy:   domain.StrategyNone,
		Convention: domain.ReturnSimple,
		Capital:    capital,
		Op:         OpBacktest,
	}.Key()
}

// Valid reports whether s looks like a Key
func Valid(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}

func writeField(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte('\n')
}

// formatFloat is the shortest representation that round-trips. -0 and +0
// are the same number and must hash the same.
func formatFloat(v float64) string {
	if v == 0 {
		v = 0
	}
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return domain.FormatDate(t)
}
