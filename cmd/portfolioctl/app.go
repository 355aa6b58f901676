package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/di"
	"github.com/aristath/portfolio-engine/internal/domain"
)

// app is the state shared by every subcommand
type app struct {
	cfg *config.Config
	log zerolog.Logger
	out io.Writer
	in  io.Reader
}

// open wires the local databases and services. The scheduler is never started.
func (a *app) open() (*di.Container, error) {
	container, _, err := di.Wire(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	return container, nil
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requestFlags are the flags shared by analytics, optimize, frontier and fingerprint
type requestFlags struct {
	symbols    string
	start      string
	end        string
	rf         float64
	convention string
	bounds     string
}

func (r *requestFlags) register(f *flag.FlagSet, cfg *config.Config) {
	f.StringVar(&r.symbols, "symbols", "", "Comma separated tickers, e.g. AAPL,MSFT.")
	f.StringVar(&r.start, "start", "", "First date of the window (YYYY-MM-DD). Defaults to the earliest common date.")
	f.StringVar(&r.end, "end", "", "Last date of the window (YYYY-MM-DD). Defaults to the latest common date.")
	f.Float64Var(&r.rf, "rf", cfg.Analytics.RiskFreeRate, "Annual risk-free rate as a decimal.")
	f.StringVar(&r.convention, "convention", "", "Return convention (simple, log). Defaults to RETURN_CONVENTION.")
	f.StringVar(&r.bounds, "bounds", "", "Per asset weight bounds as min,max. Defaults to MIN_WEIGHT,MAX_WEIGHT.")
}

func (r *requestFlags) symbolList() ([]string, error) {
	symbols := splitList(r.symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("-symbols is required")
	}
	return symbols, nil
}

func (r *requestFlags) window() (time.Time, time.Time, error) {
	start, err := optionalDate("-start", r.start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := optionalDate("-end", r.end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// boundList parses "min,max". Empty means the configured default.
func (r *requestFlags) boundList() (*domain.Bounds, error) {
	if strings.TrimSpace(r.bounds) == "" {
		return nil, nil
	}
	values, err := parseFloats(r.bounds)
	if err != nil || len(values) != 2 {
		return nil, fmt.Errorf("-bounds must be min,max, got %q", r.bounds)
	}
	return &domain.Bounds{MinWeight: values[0], MaxWeight: values[1]}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out[i] = v
	}
	return out, nil
}

func optionalDate(flagName, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := domain.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q is not YYYY-MM-DD", flagName, v)
	}
	return t, nil
}

// optionalFloat parses a flag whose empty value means unset
func optionalFloat(flagName, v string) (*float64, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid number %q", flagName, v)
	}
	return &f, nil
}
