package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/app"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/watch"
)

var watchFlags struct {
	Accounts []string
	Since    string
	Until    string
	DryRun   bool
	Interval string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Evaluate watch rules and pause ad sets that break them",
	Long: `A watch tick loads an account's rules, reads fresh ad-set statuses and
spend/results from Meta, and pauses every ad set of a group whose spend or
CPA is over its limit. Groups with any ad set not currently active are
left alone.`,
}

var watchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single watch tick and print what it decided",
	Example: `  arbdash watch run --account act_123 --dry-run
  arbdash watch run --account act_123 --since 2024-05-01 --until 2024-05-07 --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, w, err := newWatcher(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		accounts := watchAccounts(deps)
		if len(accounts) != 1 {
			return fmt.Errorf("watch run takes exactly one --account (got %d)", len(accounts))
		}

		start := time.Now()
		report, err := w.Tick(cmd.Context(), watch.TickOptions{
			AccountID: accounts[0],
			Since:     watchFlags.Since,
			Until:     watchFlags.Until,
			DryRun:    watchFlags.DryRun,
		})
		if err != nil {
			return err
		}
		result := newResult(model.KindWatchReport, "watch run", report, len(report.Decisions), start)
		if watchFlags.DryRun && len(report.Paused) > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("dry run: %d ad set(s) would have been paused", len(report.Paused)))
		}
		return emit(cmd.OutOrStdout(), deps, result)
	},
}

var watchStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run watch ticks on a schedule until interrupted",
	Long: `Start ticks every configured account immediately and then every
--interval (default: watch_interval from config). Overlapping ticks are
skipped. Stop with Ctrl-C; an in-flight tick finishes first.`,
	Example: `  arbdash watch start --account act_123 --account act_456 --interval 5m
  arbdash watch start --dry-run --verbose`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, w, err := newWatcher(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := w.Start(ctx); err != nil {
			return err
		}
		slog.Info("watcher started",
			slog.Any("accounts", watchAccounts(deps)),
			slog.Duration("interval", deps.Config.WatchInterval),
			slog.Bool("dry_run", watchFlags.DryRun),
		)
		<-ctx.Done()
		slog.Info("watcher stopping")
		return w.Stop()
	},
}

// newWatcher resolves config, opens the rule backend and builds a watcher
// over the Meta client.
func newWatcher(cmd *cobra.Command) (*app.Deps, *watch.Watcher, error) {
	deps, err := buildDeps()
	if err != nil {
		return nil, nil, err
	}
	if watchFlags.Interval != "" {
		d, err := time.ParseDuration(watchFlags.Interval)
		if err != nil || d < time.Second {
			deps.Close()
			return nil, nil, fmt.Errorf("invalid --interval %q", watchFlags.Interval)
		}
		deps.Config.WatchInterval = d
	}
	if err := deps.Config.RequireMeta(); err != nil {
		deps.Close()
		return nil, nil, err
	}
	if err := deps.RequireRules(cmd.Context()); err != nil {
		deps.Close()
		return nil, nil, err
	}
	w := watch.New(watch.Config{
		Interval:   deps.Config.WatchInterval,
		AccountIDs: watchAccounts(deps),
		DryRun:     watchFlags.DryRun,
	}, deps.Rules, deps.Meta, nil)
	return deps, w, nil
}

func watchAccounts(deps *app.Deps) []string {
	if ids := splitIDs(watchFlags.Accounts); len(ids) > 0 {
		return ids
	}
	return deps.Config.AccountIDs
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	pf := watchCmd.PersistentFlags()
	pf.StringSliceVar(&watchFlags.Accounts, "account", nil, "ad account id(s) (default: account_ids from config)")
	pf.BoolVar(&watchFlags.DryRun, "dry-run", false, "evaluate and report without pausing anything")

	watchRunCmd.Flags().StringVar(&watchFlags.Since, "since", "", "start date YYYY-MM-DD (default: today UTC)")
	watchRunCmd.Flags().StringVar(&watchFlags.Until, "until", "", "end date YYYY-MM-DD (default: today UTC)")
	watchStartCmd.Flags().StringVar(&watchFlags.Interval, "interval", "", "time between ticks, e.g. 2m")

	watchCmd.AddCommand(watchRunCmd, watchStartCmd)
	rootCmd.AddCommand(watchCmd)
}
