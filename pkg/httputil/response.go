// Package httputil holds the JSON envelope and error mapping shared by all handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Validate is the shared DTO validator
var Validate = validator.New()

// Metadata accompanies every successful response
type Metadata struct {
	Timestamp string `json:"timestamp"`
	CacheHit  *bool  `json:"cache_hit,omitempty"`
}

// Envelope is the top level response body
type Envelope struct {
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
}

// ErrorBody is the response body of a failed request
type ErrorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteData wraps data in the response envelope
func WriteData(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	WriteJSON(w, log, status, Envelope{
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

// WriteCached wraps data in the envelope and reports whether it came from the cache
func WriteCached(w http.ResponseWriter, log zerolog.Logger, data interface{}, cacheHit bool) {
	WriteJSON(w, log, http.StatusOK, Envelope{
		Data: data,
		Metadata: Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			CacheHit:  &cacheHit,
		},
	})
}

// WriteError maps err onto a status code and writes an ErrorBody
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, kind := Classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		WriteJSON(w, log, status, ErrorBody{Error: "internal error", Kind: kind})
		return
	}
	log.Debug().Err(err).Str("kind", kind).Msg("Request rejected")
	WriteJSON(w, log, status, ErrorBody{Error: err.Error(), Kind: kind})
}

// Classify returns the HTTP status and a stable kind label for err
func Classify(err error) (int, string) {
	var (
		validation   *domain.ValidationError
		benchmark    *domain.BenchmarkRequiredError
		unavailable  *domain.DataUnavailableError
		insufficient *domain.InsufficientDataError
		quality      *domain.DataQualityError
		ill          *domain.IllConditionedCovarianceError
		nonConv      *domain.OptimizationNonConvergenceError
		infeasible   *domain.InfeasibleConstraintError
		invalid      validator.ValidationErrors
		syntax       *json.SyntaxError
		unmarshal    *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &invalid),
		errors.As(err, &syntax), errors.As(err, &unmarshal):
		return http.StatusBadRequest, "validation"
	case errors.As(err, &benchmark):
		return http.StatusBadRequest, "benchmark_required"
	case errors.Is(err, domain.ErrPortfolioNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &unavailable):
		return http.StatusNotFound, "data_unavailable"
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.As(err, &quality):
		return http.StatusUnprocessableEntity, "data_quality"
	case errors.As(err, &ill):
		return http.StatusUnprocessableEntity, "ill_conditioned_covariance"
	case errors.As(err, &nonConv):
		return http.StatusUnprocessableEntity, "non_convergence"
	case errors.As(err, &infeasible):
		return http.StatusUnprocessableEntity, "infeasible_constraint"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// DecodeJSON decodes the request body into dst and runs struct validation
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntax *json.SyntaxError
		var unmarshal *json.UnmarshalTypeError
		if errors.As(err, &syntax) || errors.As(err, &unmarshal) {
			return err
		}
		return domain.NewValidationError("body", "%v", err)
	}
	if err := Validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError flattens validator output into a domain ValidationError
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return domain.NewValidationError("body", "%v", err)
	}
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return domain.NewValidationError(ve[0].Field(), "invalid fields: %s", strings.Join(fields, ", "))
}
