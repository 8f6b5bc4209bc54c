package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/app"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/dashboard"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/join"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/pipeline"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/store"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/watch"
)

var importFlags struct {
	Performance    string
	AdAnalytics    string
	AdsetAnalytics string
	Group          string
	USDBRL         float64
	Evaluate       bool
	Account        string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Join exported JSONL files offline and print the report",
	Long: `Import reads performance and analytics rows from JSONL files (as written by
"arbdash export", or raw upstream records) and runs the same join and
grouping as "report" without calling either platform.

Pass "-" to read one of the files from stdin.

With --evaluate, the saved watch rules for --account are run against the
imported rows instead, and the verdicts are printed. Nothing is paused.
Ad-set statuses come from the imported rows only; watched ad sets without
one are reported with status NO_STATUS and their groups count as inactive.`,
	Example: `  arbdash import --performance perf.jsonl --ad-analytics ad.jsonl --adset-analytics adset.jsonl
  arbdash import --performance perf.jsonl --ad-analytics ad.jsonl --group ad --usd-brl 5.1
  cat perf.jsonl | arbdash import --performance - --ad-analytics ad.jsonl --format csv
  arbdash import --performance perf.jsonl --ad-analytics ad.jsonl --evaluate --account act_123`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkGroupMode(importFlags.Group); err != nil {
			return err
		}
		if !importFlags.Evaluate && importFlags.AdAnalytics == "" && importFlags.AdsetAnalytics == "" {
			return fmt.Errorf("pass at least one of --ad-analytics or --adset-analytics")
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		perf, err := pipeline.ReadFile(importFlags.Performance, pipeline.ReadPerformance)
		if err != nil {
			return fmt.Errorf("--performance: %w", err)
		}
		patches := []dashboard.Patch{dashboard.PerformanceLoaded{Rows: perf}}
		for source, path := range map[string]string{
			dashboard.SourceAdAnalytics:    importFlags.AdAnalytics,
			dashboard.SourceAdsetAnalytics: importFlags.AdsetAnalytics,
		} {
			if path == "" {
				continue
			}
			rows, err := pipeline.ReadFile(path, pipeline.ReadAnalytics)
			if err != nil {
				return fmt.Errorf("%s: %w", source, err)
			}
			patches = append(patches, dashboard.AnalyticsLoaded{Source: source, Rows: rows})
		}

		rate := deps.Config.CurrencyRate
		if importFlags.USDBRL > 0 {
			rate = importFlags.USDBRL
		}
		group := importFlags.Group
		if group == groupDate {
			group = dashboard.GroupNone
		}
		state := dashboard.Apply(dashboard.New(dashboard.Filters{Group: group, Rate: rate}), patches...)

		var result *model.Result
		switch {
		case importFlags.Evaluate:
			rep, err := previewRules(cmd, deps, state.Joined)
			if err != nil {
				return err
			}
			result = newResult(model.KindWatchReport, "import", rep, len(rep.Decisions), start)
			if n := countUnknownStatus(rep.Skipped); n > 0 {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%d watched ad sets have no status in the imported rows; their groups count as inactive", n))
			}
		case importFlags.Group == groupDate:
			rows := join.GroupByDate(state.Joined)
			result = newResult(model.KindGrouped, "import", rows, len(rows), start)
		case group == dashboard.GroupNone:
			result = newResult(model.KindJoined, "import", state.Joined, len(state.Joined), start)
		default:
			result = newResult(model.KindGrouped, "import", state.Grouped, len(state.Grouped), start)
		}
		if unmatched := countUnmatched(state.Joined); unmatched > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%d of %d rows had no analytics match", unmatched, len(state.Joined)))
		}
		return emit(cmd.OutOrStdout(), deps, result)
	},
}

// previewRules evaluates the account's saved rules against rows.
func previewRules(cmd *cobra.Command, deps *app.Deps, rows []model.JoinedRow) (*model.WatchReport, error) {
	if err := deps.RequireRules(cmd.Context()); err != nil {
		return nil, err
	}
	account := firstNonEmpty(importFlags.Account, firstAccount(deps.Config.AccountIDs), store.DefaultAccount)
	doc, err := deps.Rules.Load(cmd.Context(), account)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	return watch.Preview(account, doc.Rules.Sorted(), rows, nil), nil
}

func countUnknownStatus(skipped []model.SkippedAdset) int {
	n := 0
	for _, s := range skipped {
		if s.Status == watch.StatusUnknown {
			n++
		}
	}
	return n
}

var exportFlags struct {
	Account    string
	Since      string
	Until      string
	Domain     string
	ReportType string
	AdKey      string
	AdsetKey   string
	Dir        string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Fetch report inputs and write them as JSONL for offline import",
	Long: `Export fetches the three report inputs (ad insights, ad-level and
ad-set-level analytics) and writes each to a JSONL file in --dir:
performance.jsonl, analytics_ad.jsonl and analytics_adset.jsonl.`,
	Example: `  arbdash export --account act_123 --domain example.com --since 2024-05-01 --dir ./may
  arbdash import --performance ./may/performance.jsonl --ad-analytics ./may/analytics_ad.jsonl`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.Config.RequireMeta(); err != nil {
			return err
		}
		if err := deps.Config.RequireJoinads(); err != nil {
			return err
		}
		account := firstNonEmpty(exportFlags.Account, firstAccount(deps.Config.AccountIDs))
		if err := util.Missing("account", account, "domain", exportFlags.Domain); err != nil {
			return err
		}
		since, until, err := util.ResolveRange(exportFlags.Since, exportFlags.Until)
		if err != nil {
			return err
		}

		filters := dashboard.Filters{AccountID: account, Since: since, Until: until, Domain: exportFlags.Domain}
		state := dashboard.Refresh(cmd.Context(), dashboard.New(filters), reportCommands(deps, filters, analyticsKeys{
			ReportType: exportFlags.ReportType,
			Ad:         exportFlags.AdKey,
			Adset:      exportFlags.AdsetKey,
		})...)
		if len(state.Errors) > 0 {
			return fmt.Errorf("export incomplete: %v", state.ErrorList())
		}

		if err := os.MkdirAll(exportFlags.Dir, 0o755); err != nil {
			return err
		}
		files := []struct {
			name  string
			write func(f *os.File) error
			n     int
		}{
			{"performance.jsonl", func(f *os.File) error { return pipeline.WriteJSONL(f, state.Performance) }, len(state.Performance)},
			{"analytics_ad.jsonl", func(f *os.File) error { return pipeline.WriteJSONL(f, state.AdAnalytics) }, len(state.AdAnalytics)},
			{"analytics_adset.jsonl", func(f *os.File) error { return pipeline.WriteJSONL(f, state.AdsetAnalytics) }, len(state.AdsetAnalytics)},
		}
		for _, file := range files {
			path := filepath.Join(exportFlags.Dir, file.name)
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			werr := file.write(f)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				return fmt.Errorf("writing %s: %w", path, werr)
			}
			if !deps.Config.Quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s (%d rows)\n", path, file.n)
			}
		}
		return nil
	},
}

func countUnmatched(rows []model.JoinedRow) int {
	n := 0
	for _, r := range rows {
		if !r.Matched {
			n++
		}
	}
	return n
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.Performance, "performance", "", "performance rows JSONL (required)")
	f.StringVar(&importFlags.AdAnalytics, "ad-analytics", "", "ad-level analytics rows JSONL")
	f.StringVar(&importFlags.AdsetAnalytics, "adset-analytics", "", "ad-set-level analytics rows JSONL")
	f.StringVar(&importFlags.Group, "group", dashboard.GroupAdset, "group rows by: ad|adset|none|date")
	f.Float64Var(&importFlags.USDBRL, "usd-brl", 0, "USD to BRL rate (overrides currency_rate)")
	f.BoolVar(&importFlags.Evaluate, "evaluate", false, "run saved watch rules against the rows instead of reporting")
	f.StringVar(&importFlags.Account, "account", "", "account whose rules --evaluate loads (default: first configured, then \"default\")")
	_ = importCmd.MarkFlagRequired("performance")

	e := exportCmd.Flags()
	e.StringVar(&exportFlags.Account, "account", "", "ad account id (default: first configured account)")
	e.StringVar(&exportFlags.Since, "since", "", "start date YYYY-MM-DD (default: today UTC)")
	e.StringVar(&exportFlags.Until, "until", "", "end date YYYY-MM-DD (default: today UTC)")
	e.StringVar(&exportFlags.Domain, "domain", "", "JoinAds domain")
	e.StringVar(&exportFlags.ReportType, "report-type", "Analytical", "JoinAds report type")
	e.StringVar(&exportFlags.AdKey, "ad-key", "utm_content", "custom key holding the ad name")
	e.StringVar(&exportFlags.AdsetKey, "adset-key", "utm_campaign", "custom key holding the ad-set name")
	e.StringVar(&exportFlags.Dir, "dir", ".", "output directory")

	rootCmd.AddCommand(importCmd, exportCmd)
}
