// Package cmd implements the arbdash CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/app"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	MetaToken    string
	JoinadsToken string
	DBPath       string
	Format       string
	Out          string
	NoCache      bool
	Refresh      bool
	Timeout      string
	Concurrency  int
	Rate         float64
	Quiet        bool
	Verbose      bool
	Debug        bool
}

// rootCmd is the base command. Running `arbdash` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "arbdash",
	Short: "arbdash: ads spend vs. publisher revenue for media arbitrage",
	Long: `arbdash joins ad performance from the Meta Graph API with publisher
revenue from JoinAds, reports profit and ROAS per ad and ad set, and
watches ad-set groups against CPA and spend limits, pausing them when a
limit is broken.

Quick start:
  arbdash config init                            # create config.json
  arbdash report --account act_123 --domain example.com
  arbdash rules enable promo-x --name "Promo X" --adsets 1,2 --cpa 12.5
  arbdash watch run --account act_123 --dry-run`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute is the entry point called by main.
func Execute() {
	registerCompletions()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogging installs the CLI text handler on stderr.
func setupLogging() {
	level := slog.LevelWarn
	switch {
	case globalFlags.Debug:
		level = slog.LevelDebug
	case globalFlags.Verbose:
		level = slog.LevelInfo
	case globalFlags.Quiet:
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load(config.Flags{
		MetaToken:    globalFlags.MetaToken,
		JoinadsToken: globalFlags.JoinadsToken,
		DBPath:       globalFlags.DBPath,
	})
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.NoCache = globalFlags.NoCache
	cfg.Refresh = globalFlags.Refresh
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Concurrency > 0 {
		cfg.Concurrency = globalFlags.Concurrency
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return app.New(cfg), nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.MetaToken, "meta-token", "",
		"Meta Graph API access token (overrides env META_ACCESS_TOKEN and config.json)")
	pf.StringVar(&globalFlags.JoinadsToken, "joinads-token", "",
		"JoinAds API token (overrides env JOINADS_ACCESS_TOKEN and config.json)")
	pf.StringVar(&globalFlags.DBPath, "db", "",
		"path to the local bbolt database (default: ~/.arbdash/arbdash.db)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.BoolVar(&globalFlags.NoCache, "no-cache", false,
		"bypass cache reads (still writes results to cache)")
	pf.BoolVar(&globalFlags.Refresh, "refresh", false,
		"force re-fetch and overwrite cached entries")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.IntVar(&globalFlags.Concurrency, "concurrency", 0,
		"max parallel requests for fan-out lookups (default: 4)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max API requests per second per platform (default: 5.0)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show cache/timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and responses (tokens redacted)")
}
