// Package render converts Result values into human-readable or machine-parseable
// output. Every Kind is first flattened into a table (headers plus string
// rows); the table, CSV/TSV and Markdown writers all consume that one shape.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// renderJSONL writes one line per element when Data is a slice, otherwise a
// single line holding Data.
func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	v := reflect.ValueOf(result.Data)
	if v.Kind() != reflect.Slice {
		return enc.Encode(result.Data)
	}
	for i := 0; i < v.Len(); i++ {
		if err := enc.Encode(v.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// ─── Tabulation ───────────────────────────────────────────────────────────────

// table is the format-neutral shape every Kind is flattened to.
type table struct {
	headers []string
	rows    [][]string
	right   map[int]bool // right-aligned (numeric) columns
}

func numeric(cols ...int) map[int]bool {
	m := make(map[int]bool, len(cols))
	for _, c := range cols {
		m[c] = true
	}
	return m
}

// tabulate flattens result.Data. ok is false for shapes it does not know.
func tabulate(result *model.Result) (table, bool) {
	switch data := result.Data.(type) {
	case []model.PerformanceRow:
		return performanceTable(data), true
	case []model.AnalyticsRow:
		return analyticsTable(data), true
	case []model.JoinedRow:
		return joinedTable(data), true
	case []model.GroupedRow:
		return groupedTable(data), true
	case model.RuleDocument:
		return rulesTable(data), true
	case *model.RuleDocument:
		return rulesTable(*data), true
	case *model.WatchReport:
		return watchTable(data), true
	case []model.ObjectStatus:
		return statusTable(data), true
	case map[string]model.ObjectStatus:
		return statusTable(statusSlice(data)), true
	case model.ActionResult:
		return actionTable([]model.ActionResult{data}), true
	case []model.ActionResult:
		return actionTable(data), true
	case []model.Record:
		return recordTable(data), true
	case model.MetricSummary:
		return summaryTable(data), true
	case []string:
		t := table{headers: []string{"VALUE"}}
		for _, s := range data {
			t.rows = append(t.rows, []string{s})
		}
		return t, true
	}
	return table{}, false
}

func performanceTable(rows []model.PerformanceRow) table {
	t := table{
		headers: []string{"DATE", "CAMPAIGN", "ADSET", "AD", "OBJECTIVE", "SPEND", "RESULTS", "CPR", "STATUS"},
		right:   numeric(5, 6, 7),
	}
	for _, r := range rows {
		t.rows = append(t.rows, []string{
			r.Date, truncate(r.CampaignName, 30), truncate(r.AdsetName, 30), truncate(r.AdName, 30),
			r.Objective, money(r.Spend), optNumber(r.Results), money(r.CostPerResult), status(r.EffectiveStatus, r.Status),
		})
	}
	return t
}

func analyticsTable(rows []model.AnalyticsRow) table {
	t := table{
		headers: []string{"DATE", "DOMAIN", "CUSTOM VALUE", "IMPRESSIONS", "CLICKS", "REVENUE", "REVENUE CLIENT", "ECPM CLIENT"},
		right:   numeric(3, 4, 5, 6, 7),
	}
	for _, r := range rows {
		t.rows = append(t.rows, []string{
			r.Date, r.Domain, truncate(r.CustomValue, 40), optNumber(r.Impressions), number(r.Clicks),
			optMoney(r.Revenue), optMoney(r.RevenueClient), optMoney(r.ECPMClient),
		})
	}
	return t
}

func joinedTable(rows []model.JoinedRow) table {
	t := table{
		headers: []string{"DATE", "AD", "ADSET", "SPEND", "RESULTS", "REVENUE USD", "REVENUE BRL", "PROFIT BRL", "ROAS", "LEVEL"},
		right:   numeric(3, 4, 5, 6, 7, 8),
	}
	for _, r := range rows {
		level := r.Source.DataLevel()
		if level == "" {
			level = "-"
		}
		t.rows = append(t.rows, []string{
			r.Date, truncate(r.AdName, 30), truncate(r.AdsetName, 30), money(r.Spend), optNumber(r.Results),
			money(r.RevenueClientValue), optMoney(r.RevenueClientBRL), optMoney(r.ProfitBRL), optRatio(r.ROAS), level,
		})
	}
	return t
}

func groupedTable(rows []model.GroupedRow) table {
	t := table{
		headers: []string{"NAME", "OBJECTIVE", "ROWS", "SPEND", "RESULTS", "CPA", "REVENUE USD", "REVENUE BRL", "PROFIT BRL", "ROAS", "MATCH"},
		right:   numeric(2, 3, 4, 5, 6, 7, 8, 9),
	}
	for _, g := range rows {
		match := "-"
		switch {
		case g.Matched && g.Fallback:
			match = "adset"
		case g.Matched:
			match = "ad"
		}
		t.rows = append(t.rows, []string{
			truncate(g.Name, 40), g.Objective, strconv.Itoa(g.Rows), money(g.Spend), number(g.Results), optMoney(g.CPA),
			money(g.Revenue), optMoney(g.RevenueBRL), optMoney(g.ProfitBRL), optRatio(g.ROAS), match,
		})
	}
	return t
}

func rulesTable(doc model.RuleDocument) table {
	t := table{
		headers: []string{"GROUP", "NAME", "ADSETS", "MAX CPA", "MAX SPEND"},
		right:   numeric(2, 3, 4),
	}
	for _, r := range doc.Rules.Sorted() {
		t.rows = append(t.rows, []string{
			r.GroupKey, truncate(r.GroupName, 40), strconv.Itoa(len(r.AdsetIDs)), optMoney(r.MaxCPA), optMoney(r.MaxSpend),
		})
	}
	return t
}

func watchTable(rep *model.WatchReport) table {
	t := table{
		headers: []string{"GROUP", "VERDICT", "SPEND", "RESULTS", "CPA", "ALL ACTIVE"},
		right:   numeric(2, 3, 4),
	}
	for _, d := range rep.Decisions {
		t.rows = append(t.rows, []string{
			d.GroupKey, d.Verdict, money(d.Metrics.TotalSpend), number(d.Metrics.TotalResults),
			optMoney(d.Metrics.CPA), strconv.FormatBool(d.Metrics.AllActive),
		})
	}
	for _, id := range rep.Paused {
		t.rows = append(t.rows, []string{id, "paused", "", "", "", ""})
	}
	for _, s := range rep.Skipped {
		reason := s.Status
		if s.Error != "" {
			reason = s.Error
		}
		t.rows = append(t.rows, []string{s.ID, "skipped: " + truncate(reason, 40), "", "", "", ""})
	}
	return t
}

func statusSlice(m map[string]model.ObjectStatus) []model.ObjectStatus {
	out := make([]model.ObjectStatus, 0, len(m))
	for id, st := range m {
		if st.ID == "" {
			st.ID = id
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func statusTable(rows []model.ObjectStatus) table {
	t := table{headers: []string{"ID", "NAME", "STATUS", "EFFECTIVE STATUS"}}
	for _, s := range rows {
		t.rows = append(t.rows, []string{s.ID, truncate(s.Name, 40), s.Status, s.EffectiveStatus})
	}
	return t
}

func actionTable(rows []model.ActionResult) table {
	t := table{headers: []string{"ACTION", "ID", "OK", "NEW ID", "DETAIL"}}
	for _, a := range rows {
		detail := ""
		if len(a.Detail) > 0 {
			b, _ := json.Marshal(a.Detail)
			detail = truncate(string(b), 60)
		}
		t.rows = append(t.rows, []string{a.Action, a.ID, strconv.FormatBool(a.OK), a.NewID, detail})
	}
	return t
}

// summaryTable lays a metric summary out as statistic/value pairs.
func summaryTable(s model.MetricSummary) table {
	t := table{headers: []string{"STATISTIC", "VALUE"}, right: numeric(1)}
	add := func(k, v string) { t.rows = append(t.rows, []string{k, v}) }
	add("metric", s.Metric)
	add("days", strconv.Itoa(s.Days))
	add("missing", strconv.Itoa(s.Missing))
	if s.Days == s.Missing {
		return t
	}
	add("total", money(s.Total))
	add("mean", money(s.Mean))
	add("std", money(s.Std))
	add("min", money(s.Min)+"  "+s.WorstDay)
	add("median", money(s.Median))
	add("max", money(s.Max)+"  "+s.BestDay)
	add("first", money(s.First))
	add("last", money(s.Last))
	add("change", money(s.Change))
	add("change %", money(s.ChangePct))
	if tr := s.Trend; tr != nil {
		add("trend", tr.Direction+" ("+tr.Method+")")
		add("slope / day", strconv.FormatFloat(tr.SlopePerDay, 'f', 4, 64))
		add("r2", strconv.FormatFloat(tr.R2, 'f', 4, 64))
	}
	return t
}

// recordTable uses the sorted union of keys as columns.
func recordTable(rows []model.Record) table {
	keys := map[string]bool{}
	for _, r := range rows {
		for k := range r {
			keys[k] = true
		}
	}
	var cols []string
	for k := range keys {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	t := table{headers: make([]string, len(cols))}
	for i, c := range cols {
		t.headers[i] = strings.ToUpper(c)
	}
	for _, r := range rows {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cell(r[c])
		}
		t.rows = append(t.rows, row)
	}
	return t
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	t, ok := tabulate(result)
	if !ok {
		return renderJSON(w, result)
	}
	if rep, isReport := result.Data.(*model.WatchReport); isReport {
		fmt.Fprintf(w, "Run %s  account=%s  %s..%s  rules=%d  paused=%d  skipped=%d\n\n",
			rep.RunID, rep.AccountID, rep.Since, rep.Until, rep.Rules, len(rep.Paused), len(rep.Skipped))
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	aligns := make([]int, len(t.headers))
	for i := range aligns {
		aligns[i] = tablewriter.ALIGN_LEFT
		if t.right[i] {
			aligns[i] = tablewriter.ALIGN_RIGHT
		}
	}
	tw.SetColumnAlignment(aligns)
	tw.SetAutoWrapText(false)
	tw.AppendBulk(t.rows)
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	if t, ok := tabulate(result); ok {
		header := make([]string, len(t.headers))
		for i, h := range t.headers {
			header[i] = strings.ReplaceAll(strings.ToLower(h), " ", "_")
		}
		_ = cw.Write(header)
		for _, r := range t.rows {
			_ = cw.Write(r)
		}
	} else {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	t, ok := tabulate(result)
	if !ok {
		return renderJSON(w, result)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(t.headers, " | "))
	seps := make([]string, len(t.headers))
	for i := range seps {
		seps[i] = "---"
		if t.right[i] {
			seps[i] = "---:"
		}
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, r := range t.rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
			src,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optMoney(v *float64) string {
	if v == nil {
		return "-"
	}
	return money(*v)
}

// optRatio shows ROAS with two decimals and a trailing x.
func optRatio(v *float64) string {
	if v == nil {
		return "-"
	}
	return money(*v) + "x"
}

// number drops the fraction for whole counts.
func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optNumber(v *float64) string {
	if v == nil {
		return "-"
	}
	return number(*v)
}

func status(effective, configured string) string {
	if effective != "" {
		return effective
	}
	if configured != "" {
		return configured
	}
	return "-"
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return number(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
