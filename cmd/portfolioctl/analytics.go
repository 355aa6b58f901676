package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/aristath/portfolio-engine/internal/domain"
)

type analyticsCmd struct {
	*app
	req       requestFlags
	weights   string
	strategy  string
	benchmark string
	target    string
	summary   bool
}

func (*analyticsCmd) Name() string     { return "analytics" }
func (*analyticsCmd) Synopsis() string { return "compute risk metrics for a weighted universe" }
func (*analyticsCmd) Usage() string {
	return `portfolioctl analytics -symbols <a,b,...> [-weights <w1,w2,...>] [-start <date>] [-end <date>]
  [-benchmark <symbol>] [-strategy <name>] [-target <annual return>] [-rf <rate>] [-summary]

  Computes returns, volatility, Sharpe, Sortino, Calmar, drawdown, tail risk and
  risk attribution from the local price history. Missing weights mean equal
  weights. With -strategy the optimized weights are attached to the result.
`
}

func (c *analyticsCmd) SetFlags(f *flag.FlagSet) {
	c.req.register(f, c.cfg)
	f.StringVar(&c.weights, "weights", "", "Comma separated weights aligned with -symbols. Normalized to sum to 1.")
	f.StringVar(&c.strategy, "strategy", "none", "Optimization strategy (none, mean_variance, max_sharpe, min_variance, risk_parity).")
	f.StringVar(&c.benchmark, "benchmark", "", "Benchmark symbol for beta, tracking error and information ratio.")
	f.StringVar(&c.target, "target", "", "Annualized target return, required by mean_variance.")
	f.BoolVar(&c.summary, "summary", false, "Print a short table instead of JSON.")
}

func (c *analyticsCmd) request() (domain.PortfolioRequest, error) {
	symbols, err := c.req.symbolList()
	if err != nil {
		return domain.PortfolioRequest{}, err
	}
	weights, err := parseFloats(c.weights)
	if err != nil {
		return domain.PortfolioRequest{}, fmt.Errorf("-weights: %w", err)
	}
	start, end, err := c.req.window()
	if err != nil {
		return domain.PortfolioRequest{}, err
	}
	bounds, err := c.req.boundList()
	if err != nil {
		return domain.PortfolioRequest{}, err
	}
	target, err := optionalFloat("-target", c.target)
	if err != nil {
		return domain.PortfolioRequest{}, err
	}
	return domain.PortfolioRequest{
		Symbols:          symbols,
		Weights:          weights,
		StartDate:        start,
		EndDate:          end,
		Strategy:         domain.Strategy(c.strategy),
		RiskFreeRate:     c.req.rf,
		Benchmark:        c.benchmark,
		TargetReturn:     target,
		Bounds:           bounds,
		ReturnConvention: domain.ReturnConvention(c.req.convention),
	}, nil
}

func (c *analyticsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	req, err := c.request()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	container, err := c.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	resp, err := container.AnalyticsService.ComputeAnalytics(ctx, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.summary {
		writeSummary(c.out, resp.Result)
		return subcommands.ExitSuccess
	}
	if err := c.printJSON(resp.Result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func writeSummary(w io.Writer, r *domain.AnalyticsResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Window\t%s .. %s (%d returns)\n", r.StartDate, r.EndDate, r.Observations)
	for i, s := range r.Symbols {
		fmt.Fprintf(tw, "Weight %s\t%.4f\n", s, r.Weights[i])
	}
	fmt.Fprintf(tw, "Annualized return\t%.4f\n", r.AnnualizedReturn)
	fmt.Fprintf(tw, "Annualized volatility\t%.4f\n", r.AnnualizedVolatility)
	fmt.Fprintf(tw, "Total return\t%.4f\n", r.TotalReturn)
	fmt.Fprintf(tw, "Sharpe\t%s\n", formatRatio(r.Sharpe))
	fmt.Fprintf(tw, "Sortino\t%s\n", formatRatio(r.Sortino))
	fmt.Fprintf(tw, "Calmar\t%s\n", formatRatio(r.Calmar))
	fmt.Fprintf(tw, "Max drawdown\t%.4f\n", r.Drawdown.Max)
	for _, t := range r.TailRisk {
		fmt.Fprintf(tw, "VaR/CVaR %.0f%%\t%.4f / %.4f\n", t.Alpha*100, t.VaR, t.CVaR)
	}
	tw.Flush()
}

func formatRatio(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}

type optimizeCmd struct {
	*app
	req      requestFlags
	strategy string
	target   string
}

func (*optimizeCmd) Name() string     { return "optimize" }
func (*optimizeCmd) Synopsis() string { return "solve for portfolio weights" }
func (*optimizeCmd) Usage() string {
	return `portfolioctl optimize -symbols <a,b,...> [-strategy <name>] [-target <annual return>]
  [-bounds <min,max>] [-start <date>] [-end <date>] [-rf <rate>]

  Solves for weights under the chosen strategy. Without -strategy, max_sharpe is
  used, or mean_variance when -target is given.
`
}

func (c *optimizeCmd) SetFlags(f *flag.FlagSet) {
	c.req.register(f, c.cfg)
	f.StringVar(&c.strategy, "strategy", "", "Optimization strategy (mean_variance, max_sharpe, min_variance, risk_parity).")
	f.StringVar(&c.target, "target", "", "Annualized target return for mean_variance.")
}

func (c *optimizeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	symbols, err := c.req.symbolList()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	start, end, err := c.req.window()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	bounds, err := c.req.boundList()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	target, err := optionalFloat("-target", c.target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	container, err := c.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	resp, err := container.AnalyticsService.Optimize(ctx, domain.OptimizeRequest{
		Symbols:          symbols,
		StartDate:        start,
		EndDate:          end,
		Strategy:         domain.Strategy(c.strategy),
		RiskFreeRate:     c.req.rf,
		TargetReturn:     target,
		Bounds:           bounds,
		ReturnConvention: domain.ReturnConvention(c.req.convention),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := c.printJSON(resp.Result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type frontierCmd struct {
	*app
	req    requestFlags
	points int
}

func (*frontierCmd) Name() string     { return "frontier" }
func (*frontierCmd) Synopsis() string { return "sample the efficient frontier" }
func (*frontierCmd) Usage() string {
	return `portfolioctl frontier -symbols <a,b,...> [-points <n>] [-bounds <min,max>]
  [-start <date>] [-end <date>] [-rf <rate>]

  Samples minimum variance portfolios between the lowest and highest
  achievable returns and marks the tangency portfolio.
`
}

func (c *frontierCmd) SetFlags(f *flag.FlagSet) {
	c.req.register(f, c.cfg)
	f.IntVar(&c.points, "points", 0, "Number of frontier samples. Defaults to FRONTIER_POINTS.")
}

func (c *frontierCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	symbols, err := c.req.symbolList()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	start, end, err := c.req.window()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	bounds, err := c.req.boundList()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	container, err := c.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	resp, err := container.AnalyticsService.Frontier(ctx, domain.FrontierRequest{
		Symbols:          symbols,
		StartDate:        start,
		EndDate:          end,
		Points:           c.points,
		RiskFreeRate:     c.req.rf,
		Bounds:           bounds,
		ReturnConvention: domain.ReturnConvention(c.req.convention),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := c.printJSON(resp.Result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type fingerprintCmd struct {
	*app
	analytics analyticsCmd
}

func (*fingerprintCmd) Name() string     { return "fingerprint" }
func (*fingerprintCmd) Synopsis() string { return "print the cache key of an analytics request" }
func (*fingerprintCmd) Usage() string {
	return `portfolioctl fingerprint -symbols <a,b,...> [analytics flags]

  Prints the key an analytics request is cached under, for use with
  DELETE /api/analytics/cache/{key}. Accepts the flags of the analytics command.
`
}

func (c *fingerprintCmd) SetFlags(f *flag.FlagSet) {
	c.analytics.app = c.app
	c.analytics.SetFlags(f)
}

func (c *fingerprintCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	req, err := c.analytics.request()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	container, err := c.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	key, err := container.AnalyticsService.Fingerprint(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(c.out, key)
	return subcommands.ExitSuccess
}
