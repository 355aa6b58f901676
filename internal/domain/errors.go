package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrPortfolioNotFound is returned by PortfolioStore implementations for unknown ids
var ErrPortfolioNotFound = errors.New("portfolio not found")

// ValidationError is a malformed request. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientDataError means the aligned window is too short to compute a statistic
type InsufficientDataError struct {
	Symbol       string // Empty when the shortfall is portfolio wide
	Observations int
	Required     int
	Reason       string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("insufficient data: %d observations, %d required", e.Observations, e.Required)
	if e.Symbol != "" {
		msg += " for " + e.Symbol
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// DataQualityError reports a gap or malformed point in an upstream series
type DataQualityError struct {
	Symbol string
	Date   time.Time
	Gap    int
	Reason string
}

func (e *DataQualityError) Error() string {
	msg := fmt.Sprintf("data quality error for %s at %s: %s", e.Symbol, FormatDate(e.Date), e.Reason)
	if e.Gap > 0 {
		msg += fmt.Sprintf(" (gap of %d periods)", e.Gap)
	}
	return msg
}

// DataUnavailableError is raised by a PriceSeriesProvider that has no data for a symbol
type DataUnavailableError struct {
	Symbol string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("price data unavailable for %s: %v", e.Symbol, e.Err)
	}
	return "price data unavailable for " + e.Symbol
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// BenchmarkRequiredError is raised by relative metrics called without a benchmark
type BenchmarkRequiredError struct {
	Metric string
}

func (e *BenchmarkRequiredError) Error() string {
	return e.Metric + " requires a benchmark series"
}

// IllConditionedCovarianceError rejects a covariance matrix the optimizer cannot trust
type IllConditionedCovarianceError struct {
	Condition     float64
	Threshold     float64
	MinEigenvalue float64
	Reason        string
}

func (e *IllConditionedCovarianceError) Error() string {
	return fmt.Sprintf("ill-conditioned covariance: %s (condition=%.3g, threshold=%.3g, min eigenvalue=%.3g)",
		e.Reason, e.Condition, e.Threshold, e.MinEigenvalue)
}

// OptimizationNonConvergenceError means an iterative solver ran out of iterations
type OptimizationNonConvergenceError struct {
	Strategy   Strategy
	Iterations int
	Residual   float64
}

func (e *OptimizationNonConvergenceError) Error() string {
	return fmt.Sprintf("%s did not converge after %d iterations (residual=%.3g)", e.Strategy, e.Iterations, e.Residual)
}

// InfeasibleConstraintError means no allocation satisfies the constraints
type InfeasibleConstraintError struct {
	Constraint string
	Reason     string
}

func (e *InfeasibleConstraintError) Error() string {
	return fmt.Sprintf("infeasible constraint %s: %s", e.Constraint, e.Reason)
}

// IsClientError reports whether err was caused by the request rather than
// by the data or the numerics behind it.
func IsClientError(err error) bool {
	var v *ValidationError
	var b *BenchmarkRequiredError
	return errors.As(err, &v) || errors.As(err, &b)
}

// IsDataError reports whether err originates from the price data
func IsDataError(err error) bool {
	var insufficient *InsufficientDataError
	var quality *DataQualityError
	var unavailable *DataUnavailableError
	return errors.As(err, &insufficient) || errors.As(err, &quality) || errors.As(err, &unavailable)
}

// IsNumericalError reports whether err is a solver or conditioning failure
func IsNumericalError(err error) bool {
	var ill *IllConditionedCovarianceError
	var nonConv *OptimizationNonConvergenceError
	var infeasible *InfeasibleConstraintError
	return errors.As(err, &ill) || errors.As(err, &nonConv) || errors.As(err, &infeasible)
}
