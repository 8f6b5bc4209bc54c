package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/app"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/joinads"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/store"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

var analyticsFlags struct {
	Since       string
	Until       string
	Domain      string
	Domains     []string
	Limit       int
	Sort        string
	ReportType  string
	CustomKey   string
	CustomValue string
	Filter      string
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query JoinAds publisher revenue reports",
	Long: `Read-only queries against the JoinAds reporting API. Dates default to
today (UTC). Responses are cached in the local database for cache_ttl.`,
}

var analyticsEarningsCmd = &cobra.Command{
	Use:   "earnings",
	Short: "Earnings per day, optionally for one domain",
	Example: `  arbdash analytics earnings --since 2024-05-01 --until 2024-05-07
  arbdash analytics earnings --domain example.com --format csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAnalytics(cmd, func(deps *app.Deps, since, until string) (any, int, error) {
			key := store.CacheKey("earnings", since, until, analyticsFlags.Domain)
			rows, _, err := app.Cached(deps, key, func() ([]model.Record, error) {
				return deps.Analytics.Earnings(cmd.Context(), since, until, analyticsFlags.Domain)
			})
			return rows, len(rows), err
		})
	},
}

var analyticsTopURLCmd = &cobra.Command{
	Use:     "top-url",
	Short:   "Best performing URLs across one or more domains",
	Example: `  arbdash analytics top-url --domains example.com,example.org --limit 10 --sort revenue`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAnalytics(cmd, func(deps *app.Deps, since, until string) (any, int, error) {
			q := joinads.TopURLQuery{
				Start:   since,
				End:     until,
				Domains: splitIDs(analyticsFlags.Domains),
				Limit:   analyticsFlags.Limit,
				Sort:    analyticsFlags.Sort,
			}
			rows, err := deps.Analytics.TopURL(cmd.Context(), q)
			return rows, len(rows), err
		})
	},
}

var analyticsKeyValueCmd = &cobra.Command{
	Use:   "key-value",
	Short: "Revenue per custom value for one domain",
	Example: `  arbdash analytics key-value --domain example.com --custom-key utm_content
  arbdash analytics key-value --domain example.com --custom-key utm_campaign --custom-value promo-x`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAnalytics(cmd, func(deps *app.Deps, since, until string) (any, int, error) {
			q := joinads.KeyValueQuery{
				Start:       since,
				End:         until,
				Domain:      analyticsFlags.Domain,
				ReportType:  analyticsFlags.ReportType,
				CustomKey:   analyticsFlags.CustomKey,
				CustomValue: analyticsFlags.CustomValue,
			}
			key := store.CacheKey("key-value", q.Domain, q.ReportType, q.CustomKey, since, until, q.CustomValue)
			rows, _, err := app.Cached(deps, key, func() ([]model.AnalyticsRow, error) {
				return deps.Analytics.KeyValue(cmd.Context(), q)
			})
			return rows, len(rows), err
		})
	},
}

var analyticsDomainsCmd = &cobra.Command{
	Use:     "domains",
	Short:   "List the domains with data in the date range",
	Example: `  arbdash analytics domains --since 2024-05-01`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAnalytics(cmd, func(deps *app.Deps, since, until string) (any, int, error) {
			key := store.CacheKey("domains", since, until)
			names, _, err := app.Cached(deps, key, func() ([]string, error) {
				return deps.Analytics.Domains(cmd.Context(), since, until)
			})
			return names, len(names), err
		})
	},
}

var analyticsSuperFilterCmd = &cobra.Command{
	Use:   "super-filter",
	Short: "Run a free-form JoinAds super filter",
	Long: `Post a JSON filter object to the super-filter endpoint. The filter is
read from --filter (inline JSON, @file, or - for stdin). --since and --until
fill start_date and end_date when the filter omits them.`,
	Example: `  arbdash analytics super-filter --filter '{"domain":"example.com","group":["date"]}'
  arbdash analytics super-filter --filter @filter.json --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := readFilter(analyticsFlags.Filter)
		if err != nil {
			return err
		}
		return withAnalytics(cmd, func(deps *app.Deps, since, until string) (any, int, error) {
			if _, ok := filter["start_date"]; !ok {
				filter["start_date"] = since
			}
			if _, ok := filter["end_date"]; !ok {
				filter["end_date"] = until
			}
			rows, err := deps.Analytics.SuperFilter(cmd.Context(), filter)
			return rows, len(rows), err
		})
	},
}

// withAnalytics resolves deps and the date range, runs fn and renders its
// rows as a records result.
func withAnalytics(cmd *cobra.Command, fn func(*app.Deps, string, string) (any, int, error)) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()
	if err := deps.Config.RequireJoinads(); err != nil {
		return err
	}
	since, until, err := util.ResolveRange(analyticsFlags.Since, analyticsFlags.Until)
	if err != nil {
		return err
	}

	start := time.Now()
	data, n, err := fn(deps, since, until)
	if err != nil {
		return err
	}
	kind := model.KindRecords
	if _, ok := data.([]model.AnalyticsRow); ok {
		kind = model.KindAnalytics
	}
	return emit(cmd.OutOrStdout(), deps, newResult(kind, cmd.CommandPath(), data, n, start))
}

// readFilter decodes inline JSON, @path or - (stdin) into a filter object.
func readFilter(arg string) (map[string]any, error) {
	var raw []byte
	switch {
	case arg == "":
		return map[string]any{}, nil
	case arg == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading filter from stdin: %w", err)
		}
		raw = b
	case arg[0] == '@':
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("reading filter: %w", err)
		}
		raw = b
	default:
		raw = []byte(arg)
	}
	filter := map[string]any{}
	if err := json.Unmarshal(raw, &filter); err != nil {
		return nil, fmt.Errorf("--filter must be a JSON object: %w", err)
	}
	return filter, nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	pf := analyticsCmd.PersistentFlags()
	pf.StringVar(&analyticsFlags.Since, "since", "", "start date YYYY-MM-DD (default: today UTC)")
	pf.StringVar(&analyticsFlags.Until, "until", "", "end date YYYY-MM-DD (default: today UTC)")

	analyticsEarningsCmd.Flags().StringVar(&analyticsFlags.Domain, "domain", "", "restrict to one domain")

	analyticsTopURLCmd.Flags().StringSliceVar(&analyticsFlags.Domains, "domains", nil, "domains to rank (repeatable or comma-separated)")
	analyticsTopURLCmd.Flags().IntVar(&analyticsFlags.Limit, "limit", 5, "number of URLs")
	analyticsTopURLCmd.Flags().StringVar(&analyticsFlags.Sort, "sort", "revenue", "sort field")

	analyticsKeyValueCmd.Flags().StringVar(&analyticsFlags.Domain, "domain", "", "domain (required)")
	analyticsKeyValueCmd.Flags().StringVar(&analyticsFlags.ReportType, "report-type", "Analytical", "report type")
	analyticsKeyValueCmd.Flags().StringVar(&analyticsFlags.CustomKey, "custom-key", "utm_content", "custom key to break down by")
	analyticsKeyValueCmd.Flags().StringVar(&analyticsFlags.CustomValue, "custom-value", "", "restrict to one custom value")

	analyticsSuperFilterCmd.Flags().StringVar(&analyticsFlags.Filter, "filter", "", "filter JSON, @file, or - for stdin")

	analyticsCmd.AddCommand(
		analyticsEarningsCmd,
		analyticsTopURLCmd,
		analyticsKeyValueCmd,
		analyticsDomainsCmd,
		analyticsSuperFilterCmd,
	)
	rootCmd.AddCommand(analyticsCmd)
}
