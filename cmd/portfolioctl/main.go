// Command portfolioctl runs the analytics engine against the local databases
// without the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/pkg/logger"
)

var (
	dataDir  = flag.String("data-dir", "", "Directory holding history.db and portfolios.db. Overrides PAE_DATA_DIR.")
	logLevel = flag.String("log-level", "warn", "Log level (debug, info, warn, error).")
)

// register adds every subcommand to c
func register(c *subcommands.Commander, a *app) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(c.CommandsCommand(), "")

	c.Register(&analyticsCmd{app: a}, "analytics")
	c.Register(&optimizeCmd{app: a}, "analytics")
	c.Register(&frontierCmd{app: a}, "analytics")
	c.Register(&fingerprintCmd{app: a}, "analytics")

	c.Register(&importPricesCmd{app: a}, "data")
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, filepath.Base(os.Args[0]))
	a := &app{out: os.Stdout, in: os.Stdin}
	register(commander, a)

	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(subcommands.ExitFailure))
	}
	if *dataDir != "" {
		abs, err := filepath.Abs(*dataDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(int(subcommands.ExitFailure))
		}
		cfg.DataDir = abs
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(subcommands.ExitFailure))
	}

	a.cfg = cfg
	a.log = logger.New(logger.Config{Level: *logLevel, Pretty: true, Output: os.Stderr})

	os.Exit(int(commander.Execute(context.Background())))
}
