package analyze_test

import (
	"math"
	"testing"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/analyze"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/chart"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/join"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// days labels values with consecutive March 2026 dates.
func days(values ...float64) []chart.Point {
	out := make([]chart.Point, len(values))
	for i, v := range values {
		out[i] = chart.Point{Label: "2026-03-" + twoDigits(i+1), Value: v}
	}
	return out
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func ptr(v float64) *float64 { return &v }

// ─── Summarize ────────────────────────────────────────────────────────────────

func TestSummarizeSkipsGaps(t *testing.T) {
	s, err := analyze.Summarize("profit", days(10, 20, math.NaN(), 40), analyze.MethodOLS)
	if err != nil {
		t.Fatal(err)
	}
	if s.Days != 4 || s.Missing != 1 {
		t.Errorf("Days/Missing = %d/%d, want 4/1", s.Days, s.Missing)
	}
	if s.Total != 70 || !approxEqual(s.Mean, 70.0/3, 1e-9) {
		t.Errorf("Total/Mean = %g/%g", s.Total, s.Mean)
	}
	if s.Median != 20 || s.Min != 10 || s.Max != 40 {
		t.Errorf("Median/Min/Max = %g/%g/%g", s.Median, s.Min, s.Max)
	}
	if s.BestDay != "2026-03-04" || s.WorstDay != "2026-03-01" {
		t.Errorf("BestDay/WorstDay = %s/%s", s.BestDay, s.WorstDay)
	}
	if s.Change != 30 || !approxEqual(s.ChangePct, 300, 1e-9) {
		t.Errorf("Change/ChangePct = %g/%g", s.Change, s.ChangePct)
	}
}

func TestSummarizeAllMissing(t *testing.T) {
	s, err := analyze.Summarize("roas", days(math.NaN(), math.NaN()), "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Days != 2 || s.Missing != 2 {
		t.Errorf("Days/Missing = %d/%d", s.Days, s.Missing)
	}
	if s.Trend != nil || s.BestDay != "" {
		t.Errorf("expected no trend and no best day, got %+v", s)
	}
}

func TestSummarizeSingleDayHasNoTrend(t *testing.T) {
	s, err := analyze.Summarize("spend", days(12.5), "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Trend != nil {
		t.Errorf("single day should not fit a trend: %+v", s.Trend)
	}
	if s.Std != 0 || s.Median != 12.5 {
		t.Errorf("Std/Median = %g/%g", s.Std, s.Median)
	}
}

func TestSummarizeZeroFirstLeavesChangePct(t *testing.T) {
	s, _ := analyze.Summarize("profit", days(0, 5), "")
	if s.Change != 5 || s.ChangePct != 0 {
		t.Errorf("Change/ChangePct = %g/%g", s.Change, s.ChangePct)
	}
}

// ─── Trend ────────────────────────────────────────────────────────────────────

func TestTrendOLSUsesCalendarDays(t *testing.T) {
	// The gap on day 3 keeps day 4 at x=3, so the points lie on y = 10 + 10x.
	s, err := analyze.Summarize("profit", days(10, 20, math.NaN(), 40), analyze.MethodOLS)
	if err != nil {
		t.Fatal(err)
	}
	tr := s.Trend
	if tr == nil {
		t.Fatal("expected trend")
	}
	if !approxEqual(tr.SlopePerDay, 10, 1e-9) || !approxEqual(tr.Intercept, 10, 1e-9) {
		t.Errorf("slope/intercept = %g/%g, want 10/10", tr.SlopePerDay, tr.Intercept)
	}
	if !approxEqual(tr.R2, 1, 1e-9) {
		t.Errorf("R2 = %g, want 1", tr.R2)
	}
	if tr.Direction != "up" || tr.Method != analyze.MethodOLS {
		t.Errorf("Direction/Method = %s/%s", tr.Direction, tr.Method)
	}
}

func TestTrendTheilSenIgnoresOutlier(t *testing.T) {
	s, err := analyze.Summarize("profit", days(1, 2, 3, 100, 5), analyze.MethodTheilSen)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(s.Trend.SlopePerDay, 1, 1e-9) {
		t.Errorf("theil-sen slope = %g, want 1", s.Trend.SlopePerDay)
	}
}

func TestTrendDirection(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   string
	}{
		{"constant", []float64{7, 7, 7}, "flat"},
		{"falling", []float64{30, 20, 10}, "down"},
		{"symmetric", []float64{10, -10, -10, 10}, "flat"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := analyze.Summarize("profit", days(tc.values...), "")
			if err != nil {
				t.Fatal(err)
			}
			if s.Trend.Direction != tc.want {
				t.Errorf("direction = %s, want %s (slope %g)", s.Trend.Direction, tc.want, s.Trend.SlopePerDay)
			}
		})
	}
}

func TestTrendNonDateLabelsUsePosition(t *testing.T) {
	pts := []chart.Point{{Label: "a", Value: 1}, {Label: "b", Value: 3}, {Label: "c", Value: 5}}
	s, err := analyze.Summarize("spend", pts, analyze.MethodOLS)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(s.Trend.SlopePerDay, 2, 1e-9) {
		t.Errorf("slope = %g, want 2", s.Trend.SlopePerDay)
	}
}

func TestSummarizeUnknownMethod(t *testing.T) {
	if _, err := analyze.Summarize("profit", days(1, 2), "loess"); err == nil {
		t.Error("expected error for unknown method")
	}
}

// ─── Daily ────────────────────────────────────────────────────────────────────

func TestDailyPicksMetric(t *testing.T) {
	rows := []model.GroupedRow{
		{Name: "2026-03-01", Spend: 10, ProfitBRL: ptr(5)},
		{Name: "2026-03-02", Spend: 30},
	}
	s, err := analyze.Daily(rows, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Metric != chart.MetricProfit || s.Missing != 1 || s.Total != 5 {
		t.Errorf("profit summary = %+v", s)
	}

	s, err = analyze.Daily(rows, chart.MetricSpend, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 40 || s.Trend == nil || !approxEqual(s.Trend.SlopePerDay, 20, 1e-9) {
		t.Errorf("spend summary = %+v", s)
	}

	if _, err := analyze.Daily(rows, "clicks", ""); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestDailyTotalsMatchRangeAnalytics(t *testing.T) {
	perf := []model.PerformanceRow{
		{Date: "2026-03-01", AdName: "promo", Spend: 10},
		{Date: "2026-03-02", AdName: "promo", Spend: 20},
		{Date: "2026-03-03", AdName: "promo", Spend: 30},
	}
	ad := join.IndexAnalytics([]model.AnalyticsRow{{CustomValue: "promo", RevenueClient: ptr(30)}})
	rows := join.Join(perf, ad, nil, 5)
	total := join.Totals(rows)
	daily := join.GroupByDate(rows)

	s, err := analyze.Daily(daily, chart.MetricRevenue, "")
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(s.Total, total.Revenue, 1e-9) || !approxEqual(s.Total, 30, 1e-9) {
		t.Errorf("revenue total = %v, want %v", s.Total, total.Revenue)
	}

	s, err = analyze.Daily(daily, chart.MetricProfit, "")
	if err != nil {
		t.Fatal(err)
	}
	if total.ProfitBRL == nil || !approxEqual(s.Total, *total.ProfitBRL, 1e-9) {
		t.Errorf("profit total = %v, want %v", s.Total, total.ProfitBRL)
	}
	if s.Missing != 0 || s.Trend == nil {
		t.Errorf("profit summary = %+v", s)
	}
}
