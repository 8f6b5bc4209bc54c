package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/analyze"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/app"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/chart"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/dashboard"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/join"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/joinads"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/store"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/transform"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// groupDate groups joined rows by day. It is a report-only mode layered on
// top of the dashboard's grouping.
const groupDate = "date"

var reportFlags struct {
	Account    string
	Since      string
	Until      string
	Domain     string
	ReportType string
	AdKey      string
	AdsetKey   string
	Group      string
	Chart      string
	Metric     string
	USDBRL     float64
	Totals     bool
	Summary    bool
	Method     string
	Rolling    int
	Cumulative bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Join ad spend with publisher revenue and report profit and ROAS",
	Long: `Fetch ad-level insights from Meta and custom-value revenue from JoinAds,
join them per ad (falling back to the ad-set level), convert revenue to BRL
and print one row per ad, per ad set, or per day.

Upstream payloads are cached in the local database for cache_ttl; use
--refresh to re-fetch or --no-cache to skip cached reads.`,
	Example: `  arbdash report --account act_123 --domain example.com
  arbdash report --account act_123 --domain example.com --since 2024-05-01 --until 2024-05-07 --group ad
  arbdash report --account act_123 --domain example.com --group date --chart line --metric profit
  arbdash report --account act_123 --domain example.com --since 2024-05-01 --until 2024-05-31 --summary --metric roas
  arbdash report --account act_123 --domain example.com --since 2024-05-01 --until 2024-05-31 --chart line --cumulative
  arbdash report --account act_123 --domain example.com --format csv --out report.csv`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := checkGroupMode(reportFlags.Group); err != nil {
		return err
	}
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

	account := firstNonEmpty(reportFlags.Account, firstAccount(deps.Config.AccountIDs))
	if err := util.Missing("account", account, "domain", reportFlags.Domain); err != nil {
		return err
	}
	since, until, err := util.ResolveRange(reportFlags.Since, reportFlags.Until)
	if err != nil {
		return err
	}
	rate := deps.Config.CurrencyRate
	if reportFlags.USDBRL > 0 {
		rate = reportFlags.USDBRL
	}

	group := reportFlags.Group
	if group == groupDate {
		group = dashboard.GroupNone
	}
	filters := dashboard.Filters{
		AccountID: account,
		Since:     since,
		Until:     until,
		Domain:    strings.TrimSpace(reportFlags.Domain),
		Group:     group,
		Rate:      rate,
	}

	start := time.Now()
	state := dashboard.Refresh(cmd.Context(), dashboard.New(filters), reportCommands(deps, filters, analyticsKeys{
		ReportType: reportFlags.ReportType,
		Ad:         reportFlags.AdKey,
		Adset:      reportFlags.AdsetKey,
	})...)

	if msg, failed := state.Errors[dashboard.SourcePerformance]; failed {
		return fmt.Errorf("fetching ad insights: %s", msg)
	}

	var result *model.Result
	switch {
	case reportFlags.Summary:
		sum, err := analyze.Daily(join.GroupByDate(state.Joined), reportFlags.Metric, reportFlags.Method)
		if err != nil {
			return err
		}
		result = newResult(model.KindSummary, "report", sum, sum.Days, start)
	case reportFlags.Totals:
		result = newResult(model.KindGrouped, "report", []model.GroupedRow{state.Totals}, 1, start)
	case reportFlags.Group == groupDate:
		rows := join.GroupByDate(state.Joined)
		result = newResult(model.KindGrouped, "report", rows, len(rows), start)
	case group == dashboard.GroupNone:
		result = newResult(model.KindJoined, "report", state.Joined, len(state.Joined), start)
	default:
		result = newResult(model.KindGrouped, "report", state.Grouped, len(state.Grouped), start)
	}
	result.Warnings = state.ErrorList()
	result.Stats.CacheHit = len(state.CacheHits) > 0
	for _, hit := range state.CacheHits {
		result.Stats.CacheHit = result.Stats.CacheHit && hit
	}
	if rate <= 0 {
		result.Warnings = append(result.Warnings, "no USD to BRL rate configured; BRL revenue, profit and ROAS are empty")
	}

	if reportFlags.Chart != "" && !reportFlags.Summary {
		return renderReportChart(cmd, state, result)
	}
	return emit(cmd.OutOrStdout(), deps, result)
}

// analyticsKeys names the custom keys that carry ad and ad-set names on the
// analytics platform.
type analyticsKeys struct {
	ReportType string
	Ad         string
	Adset      string
}

// reportCommands builds the three fetches behind a report: ad insights and
// the ad and ad-set levels of custom-value analytics. Each goes through the
// local cache.
func reportCommands(deps *app.Deps, f dashboard.Filters, k analyticsKeys) []dashboard.Command {
	adQuery := joinads.KeyValueQuery{
		Start: f.Since, End: f.Until, Domain: f.Domain,
		ReportType: k.ReportType, CustomKey: k.Ad,
	}
	adsetQuery := adQuery
	adsetQuery.CustomKey = k.Adset

	return []dashboard.Command{
		dashboard.FetchPerformance(cached(deps,
			store.CacheKey("insights", f.AccountID, f.Since, f.Until),
			dashboard.PerformanceFrom(deps.Meta, f))),
		dashboard.FetchAnalytics(dashboard.SourceAdAnalytics, cached(deps,
			store.CacheKey("key-value", adQuery.Domain, adQuery.ReportType, adQuery.CustomKey, f.Since, f.Until),
			dashboard.AnalyticsFrom(deps.Analytics, adQuery))),
		dashboard.FetchAnalytics(dashboard.SourceAdsetAnalytics, cached(deps,
			store.CacheKey("key-value", adsetQuery.Domain, adsetQuery.ReportType, adsetQuery.CustomKey, f.Since, f.Until),
			dashboard.AnalyticsFrom(deps.Analytics, adsetQuery))),
	}
}

// cached wraps a dashboard fetcher with the local response cache.
func cached[T any](deps *app.Deps, key string, fetch dashboard.Fetcher[T]) dashboard.Fetcher[T] {
	return func(ctx context.Context) (T, bool, error) {
		return app.Cached(deps, key, func() (T, error) {
			v, _, err := fetch(ctx)
			return v, err
		})
	}
}

func renderReportChart(cmd *cobra.Command, state dashboard.State, result *model.Result) error {
	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeFn()

	var rows []model.GroupedRow
	byDate := reportFlags.Chart == "line" || reportFlags.Group == groupDate
	switch {
	case byDate:
		rows = join.GroupByDate(state.Joined)
	case state.Filters.Group == dashboard.GroupAd:
		rows = join.GroupByAd(state.Joined)
	default:
		rows = join.GroupByAdset(state.Joined)
	}
	points, err := chart.FromGrouped(rows, reportFlags.Metric)
	if err != nil {
		return err
	}
	label := reportFlags.Metric
	if !byDate && (reportFlags.Rolling > 1 || reportFlags.Cumulative) {
		return fmt.Errorf("--rolling and --cumulative need a daily series (--chart line or --group date)")
	}
	if reportFlags.Rolling > 1 {
		if points, err = transform.Rolling(points, reportFlags.Rolling, transform.StatMean); err != nil {
			return err
		}
		label = fmt.Sprintf("%s (%d-day mean)", label, reportFlags.Rolling)
	}
	if reportFlags.Cumulative {
		points = transform.Cumulative(points)
		label = "cumulative " + label
	}
	title := fmt.Sprintf("%s  %s  %s..%s", label, state.Filters.Domain, state.Filters.Since, state.Filters.Until)

	switch reportFlags.Chart {
	case "bar":
		err = chart.Bar(w, title, points, chart.BarOptions{})
	case "line":
		err = chart.Line(w, title, points, chart.LineOptions{})
	default:
		return fmt.Errorf("unknown chart type %q (want bar or line)", reportFlags.Chart)
	}
	if err != nil {
		return err
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %s\n", warn)
	}
	return nil
}

func checkGroupMode(mode string) error {
	switch mode {
	case dashboard.GroupAd, dashboard.GroupAdset, dashboard.GroupNone, groupDate:
		return nil
	}
	return fmt.Errorf("invalid --group %q (want ad, adset, none or date)", mode)
}

func firstAccount(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.Account, "account", "", "ad account id (default: first configured account)")
	f.StringVar(&reportFlags.Since, "since", "", "start date YYYY-MM-DD (default: today UTC)")
	f.StringVar(&reportFlags.Until, "until", "", "end date YYYY-MM-DD (default: today UTC)")
	f.StringVar(&reportFlags.Domain, "domain", "", "JoinAds domain to read revenue for")
	f.StringVar(&reportFlags.ReportType, "report-type", "Analytical", "JoinAds report type")
	f.StringVar(&reportFlags.AdKey, "ad-key", "utm_content", "custom key holding the ad name")
	f.StringVar(&reportFlags.AdsetKey, "adset-key", "utm_campaign", "custom key holding the ad-set name")
	f.StringVar(&reportFlags.Group, "group", dashboard.GroupAdset, "group rows by: ad|adset|none|date")
	f.StringVar(&reportFlags.Chart, "chart", "", "draw a chart instead of a table: bar|line")
	f.StringVar(&reportFlags.Metric, "metric", chart.MetricProfit, "chart and summary metric: profit|spend|revenue|roas")
	f.Float64Var(&reportFlags.USDBRL, "usd-brl", 0, "USD to BRL rate (overrides currency_rate)")
	f.BoolVar(&reportFlags.Totals, "totals", false, "print only the totals row")
	f.BoolVar(&reportFlags.Summary, "summary", false, "summarize --metric across days with a fitted trend")
	f.IntVar(&reportFlags.Rolling, "rolling", 0, "chart an N-day rolling mean of --metric")
	f.BoolVar(&reportFlags.Cumulative, "cumulative", false, "chart the running total of --metric")
	f.StringVar(&reportFlags.Method, "trend-method", analyze.MethodOLS, "trend fit for --summary: ols|theil-sen")

	rootCmd.AddCommand(reportCmd)
}
