package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/domain"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return &app{
		cfg: &config.Config{
			DataDir: t.TempDir(),
			Analytics: config.AnalyticsConfig{
				RiskFreeRate:     0.02,
				PeriodsPerYear:   252,
				DefaultBounds:    domain.Bounds{MinWeight: 0, MaxWeight: 1},
				ReturnConvention: domain.ReturnSimple,
				MaxGap:           3,
				CovarianceMethod: "sample",
			},
			Cache: config.CacheConfig{
				Backend:       config.CacheMemory,
				AnalyticsTTL:  time.Minute,
				PricesTTL:     time.Hour,
				SweepSchedule: "0 */10 * * * *",
			},
			Store: config.StoreConfig{Backend: config.StoreSQLite},
		},
		log: zerolog.Nop(),
		out: out,
		in:  strings.NewReader(""),
	}, out
}

func run(t *testing.T, a *app, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet("portfolioctl", flag.ContinueOnError)
	commander := subcommands.NewCommander(fs, "portfolioctl")
	register(commander, a)
	require.NoError(t, fs.Parse(args))
	return commander.Execute(context.Background())
}

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// seed loads the two asset reference history
func seed(t *testing.T, a *app, out *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	aaa := writeCSV(t, dir, "AAA.csv", "date,close\n2024-01-02,100\n2024-01-03,101\n2024-01-04,102\n2024-01-05,101\n")
	bbb := writeCSV(t, dir, "bbb.csv", "# closes\n2024-01-02,50\n2024-01-03,49\n2024-01-04,51\n2024-01-05,52\n")

	require.Equal(t, subcommands.ExitSuccess, run(t, a, "import-prices", aaa, bbb))
	assert.Contains(t, out.String(), "AAA: 4 closes")
	assert.Contains(t, out.String(), "BBB: 4 closes")
	out.Reset()
}

func TestAnalyticsCommand(t *testing.T) {
	a, out := newTestApp(t)
	seed(t, a, out)

	require.Equal(t, subcommands.ExitSuccess, run(t, a, "analytics", "-symbols", "AAA,BBB", "-weights", "0.5,0.5"))

	var result domain.AnalyticsResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.NotNil(t, result.Sharpe)
	assert.InDelta(t, 8.5522447584244254, *result.Sharpe, 1e-8)
	assert.Equal(t, "2024-01-02", result.StartDate)
	assert.Equal(t, 3, result.Observations)

	out.Reset()
	require.Equal(t, subcommands.ExitSuccess, run(t, a, "analytics", "-symbols", "AAA,BBB", "-summary"))
	assert.Contains(t, out.String(), "Sharpe")
	assert.Contains(t, out.String(), "8.5522")
	assert.Contains(t, out.String(), "Max drawdown")
}

func TestAnalyticsCommand_Errors(t *testing.T) {
	a, out := newTestApp(t)
	seed(t, a, out)

	assert.Equal(t, subcommands.ExitUsageError, run(t, a, "analytics"))
	assert.Equal(t, subcommands.ExitUsageError, run(t, a, "analytics", "-symbols", "AAA", "-start", "2024/01/02"))
	assert.Equal(t, subcommands.ExitUsageError, run(t, a, "analytics", "-symbols", "AAA", "-bounds", "0.1"))
	assert.Equal(t, subcommands.ExitFailure, run(t, a, "analytics", "-symbols", "ZZZ"))
	assert.Equal(t, subcommands.ExitFailure, run(t, a, "analytics", "-symbols", "AAA,BBB", "-strategy", "yolo"))
}

func TestOptimizeAndFrontierCommands(t *testing.T) {
	a, out := newTestApp(t)
	seed(t, a, out)

	require.Equal(t, subcommands.ExitSuccess, run(t, a, "optimize", "-symbols", "AAA,BBB", "-strategy", "min_variance"))
	var opt domain.OptimizationResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &opt))
	assert.Equal(t, domain.StrategyMinVariance, opt.Strategy)
	require.Len(t, opt.Weights, 2)
	assert.InDelta(t, 1, opt.Weights[0]+opt.Weights[1], 1e-9)

	out.Reset()
	require.Equal(t, subcommands.ExitSuccess, run(t, a, "frontier", "-symbols", "AAA,BBB", "-points", "5"))
	var frontier domain.Frontier
	require.NoError(t, json.Unmarshal(out.Bytes(), &frontier))
	assert.Equal(t, 5, frontier.Requested)
	assert.NotEmpty(t, frontier.Points)
}

func TestFingerprintCommand(t *testing.T) {
	a, out := newTestApp(t)

	require.Equal(t, subcommands.ExitSuccess, run(t, a, "fingerprint", "-symbols", "AAA,BBB", "-weights", "0.5,0.5"))
	first := strings.TrimSpace(out.String())
	assert.Len(t, first, 64)

	out.Reset()
	require.Equal(t, subcommands.ExitSuccess, run(t, a, "fingerprint", "-symbols", "bbb,aaa", "-weights", "1,1"))
	assert.Equal(t, first, strings.TrimSpace(out.String()))

	out.Reset()
	require.Equal(t, subcommands.ExitSuccess, run(t, a, "fingerprint", "-symbols", "AAA,BBB", "-rf", "0.05"))
	assert.NotEqual(t, first, strings.TrimSpace(out.String()))
}

func TestImportPricesCommand(t *testing.T) {
	a, out := newTestApp(t)

	assert.Equal(t, subcommands.ExitUsageError, run(t, a, "import-prices"))
	assert.Equal(t, subcommands.ExitFailure, run(t, a, "import-prices", "-"))

	a.in = strings.NewReader("2024-01-02,10\n2024-01-03,11\n")
	require.Equal(t, subcommands.ExitSuccess, run(t, a, "import-prices", "-symbol", "ccc", "-"))
	assert.Contains(t, out.String(), "CCC: 2 closes")

	bad := writeCSV(t, t.TempDir(), "BAD.csv", "2024-01-02,abc\n2024-01-03,oops\n")
	assert.Equal(t, subcommands.ExitFailure, run(t, a, "import-prices", bad))
	assert.Equal(t, subcommands.ExitFailure, run(t, a, "import-prices", filepath.Join(t.TempDir(), "missing.csv")))
}

func TestFlagHelpers(t *testing.T) {
	assert.Equal(t, []string{"AAA", "BBB"}, splitList(" AAA, ,BBB,"))
	assert.Nil(t, splitList(""))

	values, err := parseFloats("0.5, 0.25,0.25")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25, 0.25}, values)
	_, err = parseFloats("0.5,x")
	assert.Error(t, err)

	assert.Equal(t, "AAPL", symbolFromPath("/tmp/prices/AAPL.csv"))
	assert.Equal(t, "", symbolFromPath("-"))

	r := requestFlags{bounds: "0.1, 0.6"}
	b, err := r.boundList()
	require.NoError(t, err)
	assert.Equal(t, &domain.Bounds{MinWeight: 0.1, MaxWeight: 0.6}, b)

	target, err := optionalFloat("-target", "")
	require.NoError(t, err)
	assert.Nil(t, target)
}
