package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"github.com/aristath/portfolio-engine/internal/modules/prices"
)

type importPricesCmd struct {
	*app
	symbol string
}

func (*importPricesCmd) Name() string     { return "import-prices" }
func (*importPricesCmd) Synopsis() string { return "load daily closes from CSV files into the history database" }
func (*importPricesCmd) Usage() string {
	return `portfolioctl import-prices [-symbol <ticker>] <file.csv|-> [<file.csv> ...]

  Each file holds "date,close" rows (YYYY-MM-DD, optional header, # comments).
  The symbol defaults to the file name without extension, so AAPL.csv loads
  AAPL. Use "-" with -symbol to read from standard input. Existing closes on
  the same dates are replaced.
`
}

func (c *importPricesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Ticker to load. Required with a single file or stdin, ignored otherwise.")
}

func (c *importPricesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	files := f.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "at least one CSV file is required")
		return subcommands.ExitUsageError
	}
	if c.symbol != "" && len(files) > 1 {
		fmt.Fprintln(os.Stderr, "-symbol only applies to a single file")
		return subcommands.ExitUsageError
	}

	container, err := c.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	status := subcommands.ExitSuccess
	for _, path := range files {
		symbol := c.symbol
		if symbol == "" {
			symbol = symbolFromPath(path)
		}
		if symbol == "" {
			fmt.Fprintf(os.Stderr, "%s: cannot infer a symbol, use -symbol\n", path)
			status = subcommands.ExitFailure
			continue
		}

		n, err := c.importFile(ctx, container.History, path, symbol)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			status = subcommands.ExitFailure
			continue
		}
		container.Prices.Forget(symbol)
		fmt.Fprintf(c.out, "%s: %d closes\n", strings.ToUpper(symbol), n)
	}
	return status
}

func (c *importPricesCmd) importFile(ctx context.Context, history *prices.HistoryDB, path, symbol string) (int, error) {
	var r io.Reader = c.in
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer file.Close()
		r = file
	}

	points, err := prices.ParseCSV(r)
	if err != nil {
		return 0, err
	}
	return history.UpsertPrices(ctx, symbol, points)
}

func symbolFromPath(path string) string {
	if path == "-" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
