package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/analyze"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/chart"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Save and replay report filters",
	Long: `Views store a named set of report filters (account, domain, grouping,
custom keys and date range) in the local database so a dashboard can be
reopened with one command.

  arbdash view save weekly --domain example.com --days 7 --group ad
  arbdash view list
  arbdash view run weekly --chart line`,
}

// ─── view save ────────────────────────────────────────────────────────────────

var viewSaveFlags model.SavedView

var viewSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save report filters under a name",
	Example: `  arbdash view save weekly --account act_123 --domain example.com --days 7
  arbdash view save may --domain example.com --since 2024-05-01 --until 2024-05-31 --group date`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if viewSaveFlags.Days > 0 && (viewSaveFlags.Since != "" || viewSaveFlags.Until != "") {
			return fmt.Errorf("--days cannot be combined with --since/--until")
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		v := viewSaveFlags
		v.Name = args[0]
		v.CreatedAt = time.Time{}
		if err := deps.Store.PutView(v); err != nil {
			return fmt.Errorf("saving view: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved view %s  (%s)\n", strings.TrimSpace(v.Name), viewRange(v))
		return nil
	},
}

// ─── view list / show ─────────────────────────────────────────────────────────

var viewListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List saved views",
	Example: `  arbdash view list`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		views, err := deps.Store.ListViews()
		if err != nil {
			return fmt.Errorf("listing views: %w", err)
		}
		if len(views) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No views saved.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: arbdash view save <name> --domain <domain> --days 7")
			return nil
		}
		printSimpleTable(cmd.OutOrStdout(), []string{"NAME", "ACCOUNT", "DOMAIN", "GROUP", "RANGE", "CREATED"}, func(add func(...string)) {
			for _, v := range views {
				add(v.Name, firstNonEmpty(v.AccountID, "-"), v.Domain, firstNonEmpty(v.Group, "-"), viewRange(v),
					v.CreatedAt.Format("2006-01-02 15:04"))
			}
		})
		return nil
	},
}

var viewShowCmd = &cobra.Command{
	Use:     "show <name>",
	Short:   "Show every field of a saved view",
	Example: `  arbdash view show weekly`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		v, ok, err := deps.Store.GetView(args[0])
		if err != nil {
			return fmt.Errorf("reading view: %w", err)
		}
		if !ok {
			return fmt.Errorf("view %q not found", args[0])
		}
		printKVTable(cmd.OutOrStdout(), [][]string{
			{"name", v.Name},
			{"account", firstNonEmpty(v.AccountID, "(first configured)")},
			{"domain", v.Domain},
			{"group", firstNonEmpty(v.Group, "(report default)")},
			{"report_type", firstNonEmpty(v.ReportType, "(report default)")},
			{"ad_key", firstNonEmpty(v.AdKey, "(report default)")},
			{"adset_key", firstNonEmpty(v.AdsetKey, "(report default)")},
			{"range", viewRange(v)},
			{"created", v.CreatedAt.Format(time.RFC3339)},
		})
		return nil
	},
}

// ─── view run ─────────────────────────────────────────────────────────────────

var viewRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run the report stored in a view",
	Long: `Run loads the view's filters into the report command and executes it.
Output flags (--chart, --metric, --summary, --totals, --usd-brl) apply as
they do for report.`,
	Example: `  arbdash view run weekly
  arbdash view run weekly --summary --metric roas
  arbdash view run may --chart line --cumulative`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			deps.Close()
			return err
		}
		// report opens its own handle; bbolt holds an exclusive file lock.
		v, ok, err := deps.Store.GetView(args[0])
		deps.Close()
		if err != nil {
			return fmt.Errorf("reading view: %w", err)
		}
		if !ok {
			return fmt.Errorf("view %q not found", args[0])
		}

		applyView(v)
		if !globalFlags.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "▶ view %s  %s  %s..%s\n", v.Name, v.Domain, reportFlags.Since, reportFlags.Until)
		}
		return runReport(cmd, nil)
	},
}

// applyView copies a view's filters onto the report flags. Empty view fields
// keep the report defaults.
func applyView(v model.SavedView) {
	reportFlags.Account = v.AccountID
	reportFlags.Domain = v.Domain
	if v.Group != "" {
		reportFlags.Group = v.Group
	}
	if v.ReportType != "" {
		reportFlags.ReportType = v.ReportType
	}
	if v.AdKey != "" {
		reportFlags.AdKey = v.AdKey
	}
	if v.AdsetKey != "" {
		reportFlags.AdsetKey = v.AdsetKey
	}
	reportFlags.Since, reportFlags.Until = v.Since, v.Until
	if v.Days > 0 {
		reportFlags.Since, reportFlags.Until = util.LastDays(v.Days)
	}
}

func viewRange(v model.SavedView) string {
	switch {
	case v.Days == 1:
		return "today"
	case v.Days > 1:
		return "last " + strconv.Itoa(v.Days) + " days"
	case v.Since == "" && v.Until == "":
		return "today"
	}
	return firstNonEmpty(v.Since, "today") + ".." + firstNonEmpty(v.Until, "today")
}

// ─── view delete ──────────────────────────────────────────────────────────────

var viewDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Short:   "Delete a saved view",
	Example: `  arbdash view delete weekly`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		v, ok, err := deps.Store.GetView(args[0])
		if err != nil {
			return fmt.Errorf("reading view: %w", err)
		}
		if !ok {
			return fmt.Errorf("view %q not found", args[0])
		}
		if err := deps.Store.DeleteView(args[0]); err != nil {
			return fmt.Errorf("deleting view: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted view %s\n", v.Name)
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.AddCommand(viewSaveCmd, viewListCmd, viewShowCmd, viewRunCmd, viewDeleteCmd)

	f := viewSaveCmd.Flags()
	f.StringVar(&viewSaveFlags.AccountID, "account", "", "ad account id (default: first configured account at run time)")
	f.StringVar(&viewSaveFlags.Domain, "domain", "", "JoinAds domain (required)")
	f.StringVar(&viewSaveFlags.Group, "group", "", "group rows by: ad|adset|none|date")
	f.StringVar(&viewSaveFlags.ReportType, "report-type", "", "JoinAds report type")
	f.StringVar(&viewSaveFlags.AdKey, "ad-key", "", "custom key holding the ad name")
	f.StringVar(&viewSaveFlags.AdsetKey, "adset-key", "", "custom key holding the ad-set name")
	f.IntVar(&viewSaveFlags.Days, "days", 0, "rolling range: the last N days at run time")
	f.StringVar(&viewSaveFlags.Since, "since", "", "fixed start date YYYY-MM-DD")
	f.StringVar(&viewSaveFlags.Until, "until", "", "fixed end date YYYY-MM-DD")
	_ = viewSaveCmd.MarkFlagRequired("domain")

	r := viewRunCmd.Flags()
	r.StringVar(&reportFlags.Chart, "chart", "", "draw a chart instead of a table: bar|line")
	r.StringVar(&reportFlags.Metric, "metric", chart.MetricProfit, "chart and summary metric: profit|spend|revenue|roas")
	r.BoolVar(&reportFlags.Summary, "summary", false, "summarize --metric across days with a fitted trend")
	r.StringVar(&reportFlags.Method, "trend-method", analyze.MethodOLS, "trend fit for --summary: ols|theil-sen")
	r.IntVar(&reportFlags.Rolling, "rolling", 0, "chart an N-day rolling mean of --metric")
	r.BoolVar(&reportFlags.Cumulative, "cumulative", false, "chart the running total of --metric")
	r.BoolVar(&reportFlags.Totals, "totals", false, "print only the totals row")
	r.Float64Var(&reportFlags.USDBRL, "usd-brl", 0, "USD to BRL rate (overrides currency_rate)")
}
