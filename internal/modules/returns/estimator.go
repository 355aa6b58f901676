// Package returns turns raw price series into aligned return series and the
// sample moments the risk and optimization modules consume.
package returns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// MinObservations is the shortest return series any variance based statistic accepts
const MinObservations = 2

// Estimate is the aligned return matrix of a window plus its sample moments.
// Mean and Covariance are computed from exactly the rows in Returns.
type Estimate struct {
	Symbols    []string
	Convention domain.ReturnConvention
	PriceDates []time.Time // Aligned calendar, one longer than Dates
	Dates      []time.Time // Date of each return observation
	Returns    [][]float64 // Returns[i] is the series of Symbols[i]
	Mean       []float64
	Covariance *mat.SymDense

	Benchmark        string
	BenchmarkReturns []float64 // Nil when no benchmark was aligned
}

// Observations is the number of return periods in the window
func (e *Estimate) Observations() int {
	return len(e.Dates)
}

// Series returns the aligned ReturnSeries of every symbol
func (e *Estimate) Series() []domain.ReturnSeries {
	out := make([]domain.ReturnSeries, len(e.Symbols))
	for i, s := range e.Symbols {
		out[i] = domain.ReturnSeries{Symbol: s, Dates: e.Dates, Values: e.Returns[i]}
	}
	return out
}

// CovarianceRows copies the covariance matrix into row slices
func (e *Estimate) CovarianceRows() [][]float64 {
	return symRows(e.Covariance)
}

// Correlation returns the sample correlation matrix of the same window
func (e *Estimate) Correlation() *mat.SymDense {
	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, e.returnMatrix(), nil)
	return &corr
}

// Shrunk blends the sample covariance with a constant correlation target:
// Σ' = (1-δ)Σ + δF, where F keeps the sample variances and replaces every
// pairwise correlation with the average one.
func (e *Estimate) Shrunk(delta float64) *mat.SymDense {
	n := len(e.Symbols)
	sigma := e.Covariance
	out := mat.NewSymDense(n, nil)
	if n == 0 {
		return out
	}
	delta = math.Max(0, math.Min(1, delta))

	vols := make([]float64, n)
	for i := 0; i < n; i++ {
		vols[i] = math.Sqrt(math.Max(sigma.At(i, i), 0))
	}

	avgCorr := 0.0
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if vols[i] > 0 && vols[j] > 0 {
				avgCorr += sigma.At(i, j) / (vols[i] * vols[j])
				pairs++
			}
		}
	}
	if pairs > 0 {
		avgCorr /= float64(pairs)
	}

	for i := 0; i < n; i++ {
		out.SetSym(i, i, sigma.At(i, i))
		for j := i + 1; j < n; j++ {
			target := avgCorr * vols[i] * vols[j]
			out.SetSym(i, j, (1-delta)*sigma.At(i, j)+delta*target)
		}
	}
	return out
}

func (e *Estimate) returnMatrix() *mat.Dense {
	t := len(e.Dates)
	x := mat.NewDense(t, len(e.Symbols), nil)
	for j, col := range e.Returns {
		x.SetCol(j, col)
	}
	return x
}

// Estimator aligns price series and derives return statistics
type Estimator struct {
	maxGap int
	log    zerolog.Logger
}

// NewEstimator creates an estimator that forward-fills at most maxGap
// consecutive missing closes.
func NewEstimator(maxGap int, log zerolog.Logger) *Estimator {
	return &Estimator{
		maxGap: maxGap,
		log:    log.With().Str("component", "return_estimator").Logger(),
	}
}

// MaxGap is the longest run of missing closes that is forward-filled
func (e *Estimator) MaxGap() int {
	return e.maxGap
}

// Estimate aligns series on the intersection of their dates inside
// [start, end] and computes returns, the mean vector and the sample
// covariance matrix. Zero start or end leaves that side of the window open.
func (est *Estimator) Estimate(series []domain.PriceSeries, start, end time.Time, convention domain.ReturnConvention) (*Estimate, error) {
	return est.EstimateWithBenchmark(series, nil, start, end, convention)
}

// EstimateWithBenchmark is Estimate with the benchmark series taking part in
// the date alignment. The benchmark is excluded from Mean and Covariance.
func (est *Estimator) EstimateWithBenchmark(
	series []domain.PriceSeries,
	benchmark *domain.PriceSeries,
	start, end time.Time,
	convention domain.ReturnConvention,
) (*Estimate, error) {
	if len(series) == 0 {
		return nil, domain.NewValidationError("symbols", "at least one price series is required")
	}
	if convention == "" {
		convention = domain.ReturnSimple
	}
	if !convention.Valid() {
		return nil, domain.NewValidationError("return_convention", "unsupported convention %q", convention)
	}

	all := series
	if benchmark != nil {
		all = append(append([]domain.PriceSeries{}, series...), *benchmark)
	}

	clipped := make([]domain.PriceSeries, len(all))
	for i, s := range all {
		if err := validateSeries(s); err != nil {
			return nil, err
		}
		clipped[i] = clip(s, start, end)
		if len(clipped[i].Points) == 0 {
			return nil, &domain.InsufficientDataError{
				Symbol:   s.Symbol,
				Required: MinObservations + 1,
				Reason:   "no prices inside the requested window",
			}
		}
	}

	dates := intersectDates(clipped)
	if len(dates) == 0 {
		return nil, &domain.InsufficientDataError{
			Required: MinObservations + 1,
			Reason:   "price series share no common dates",
		}
	}

	prices := make([][]float64, len(clipped))
	for i, s := range clipped {
		aligned, err := est.alignAndFill(s, dates)
		if err != nil {
			return nil, err
		}
		prices[i] = aligned
	}

	if len(dates)-1 < MinObservations {
		return nil, &domain.InsufficientDataError{
			Observations: max(len(dates)-1, 0),
			Required:     MinObservations,
			Reason:       "aligned window is too short",
		}
	}

	returns := make([][]float64, len(prices))
	for i, p := range prices {
		if convention == domain.ReturnLog {
			returns[i] = formulas.LogReturns(p)
		} else {
			returns[i] = formulas.SimpleReturns(p)
		}
	}

	e := &Estimate{
		Convention: convention,
		PriceDates: dates,
		Dates:      dates[1:],
	}
	for i := range series {
		e.Symbols = append(e.Symbols, series[i].Symbol)
		e.Returns = append(e.Returns, returns[i])
	}
	if benchmark != nil {
		e.Benchmark = benchmark.Symbol
		e.BenchmarkReturns = returns[len(returns)-1]
	}

	x := e.returnMatrix()
	e.Mean = make([]float64, len(e.Symbols))
	for j := range e.Symbols {
		e.Mean[j] = stat.Mean(e.Returns[j], nil)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	e.Covariance = &cov

	est.log.Debug().
		Strs("symbols", e.Symbols).
		Str("benchmark", e.Benchmark).
		Int("observations", e.Observations()).
		Str("convention", string(convention)).
		Msg("Estimated returns")

	return e, nil
}

// validateSeries rejects empty series and out-of-order or duplicate dates
func validateSeries(s domain.PriceSeries) error {
	if len(s.Points) == 0 {
		return &domain.InsufficientDataError{
			Symbol:   s.Symbol,
			Required: MinObservations + 1,
			Reason:   "empty price series",
		}
	}
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].Date.After(s.Points[i-1].Date) {
			return &domain.DataQualityError{
				Symbol: s.Symbol,
				Date:   s.Points[i].Date,
				Reason: "dates are not strictly increasing",
			}
		}
	}
	return nil
}

func clip(s domain.PriceSeries, start, end time.Time) domain.PriceSeries {
	out := domain.PriceSeries{Symbol: s.Symbol}
	for _, p := range s.Points {
		if !start.IsZero() && p.Date.Before(start) {
			continue
		}
		if !end.IsZero() && p.Date.After(end) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}

// intersectDates returns the calendar dates present in every series, ascending
func intersectDates(series []domain.PriceSeries) []time.Time {
	counts := make(map[string]int)
	first := make(map[string]time.Time)
	for _, s := range series {
		for _, p := range s.Points {
			key := domain.FormatDate(p.Date)
			counts[key]++
			if _, ok := first[key]; !ok {
				first[key] = p.Date
			}
		}
	}

	var dates []time.Time
	for key, c := range counts {
		if c == len(series) {
			dates = append(dates, first[key])
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// alignAndFill projects s onto dates and forward-fills unusable closes
func (est *Estimator) alignAndFill(s domain.PriceSeries, dates []time.Time) ([]float64, error) {
	byDate := make(map[string]float64, len(s.Points))
	for _, p := range s.Points {
		byDate[domain.FormatDate(p.Date)] = p.Close
	}

	out := make([]float64, len(dates))
	gap := 0
	filled := 0
	for i, d := range dates {
		v := byDate[domain.FormatDate(d)]
		if usable(v) {
			out[i] = v
			gap = 0
			continue
		}

		if i == 0 {
			return nil, &domain.DataQualityError{
				Symbol: s.Symbol,
				Date:   d,
				Gap:    1,
				Reason: "missing close with no prior value to carry forward",
			}
		}
		gap++
		if gap > est.maxGap {
			return nil, &domain.DataQualityError{
				Symbol: s.Symbol,
				Date:   d,
				Gap:    gap,
				Reason: fmt.Sprintf("missing closes exceed forward-fill limit of %d", est.maxGap),
			}
		}
		out[i] = out[i-1]
		filled++
	}

	if filled > 0 {
		est.log.Warn().
			Str("symbol", s.Symbol).
			Int("filled_data_points", filled).
			Msg("Forward-filled missing closes")
	}
	return out, nil
}

func usable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func symRows(s *mat.SymDense) [][]float64 {
	if s == nil {
		return nil
	}
	n := s.SymmetricDim()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = s.At(i, j)
		}
	}
	return rows
}
