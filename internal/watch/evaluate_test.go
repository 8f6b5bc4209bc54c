package watch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/watch"
)

func f(v float64) *float64 { return &v }

func active(ids ...string) map[string]model.ObjectStatus {
	out := make(map[string]model.ObjectStatus, len(ids))
	for _, id := range ids {
		out[id] = model.ObjectStatus{ID: id, Status: "ACTIVE", EffectiveStatus: "ACTIVE"}
	}
	return out
}

func TestEvaluateSpendWithoutResultsExceedsCPA(t *testing.T) {
	rules := []model.WatchRule{{GroupKey: "g", AdsetIDs: []string{"S1", "S2"}, MaxCPA: f(1)}}
	groups := map[string]model.GroupMetrics{
		"g": {GroupKey: "g", TotalSpend: 100, TotalResults: 0, AllActive: true},
	}
	assert.Equal(t, []string{"S1", "S2"}, watch.Evaluate(rules, groups))
}

func TestEvaluateSkipsMixedStatusGroup(t *testing.T) {
	rules := []model.WatchRule{{GroupKey: "g", AdsetIDs: []string{"S1", "S2"}, MaxCPA: f(1), MaxSpend: f(1)}}
	statuses := map[string]model.ObjectStatus{
		"S1": {ID: "S1", Status: "PAUSED", EffectiveStatus: "PAUSED"},
		"S2": {ID: "S2", Status: "ACTIVE", EffectiveStatus: "ACTIVE"},
	}
	adsets := map[string]model.AdsetMetrics{
		"S1": {AdsetID: "S1", Spend: 500},
		"S2": {AdsetID: "S2", Spend: 500},
	}
	groups := watch.MetricsFromAdsets(rules, adsets, statuses)
	assert.False(t, groups["g"].AllActive)
	assert.Empty(t, watch.Evaluate(rules, groups))

	d := watch.Decide(rules, groups)
	require.Len(t, d, 1)
	assert.Equal(t, model.VerdictInactive, d[0].Verdict)
}

func TestEvaluateThresholds(t *testing.T) {
	cases := []struct {
		name  string
		rule  model.WatchRule
		gm    model.GroupMetrics
		pause bool
	}{
		{"cpa under limit", model.WatchRule{MaxCPA: f(10)}, model.GroupMetrics{TotalSpend: 50, TotalResults: 10}, false},
		{"cpa over limit", model.WatchRule{MaxCPA: f(4)}, model.GroupMetrics{TotalSpend: 50, TotalResults: 10}, true},
		{"cpa equal to limit", model.WatchRule{MaxCPA: f(5)}, model.GroupMetrics{TotalSpend: 50, TotalResults: 10}, false},
		{"no spend no results", model.WatchRule{MaxCPA: f(1)}, model.GroupMetrics{}, false},
		{"spend over limit", model.WatchRule{MaxSpend: f(40)}, model.GroupMetrics{TotalSpend: 50, TotalResults: 10}, true},
		{"spend equal to limit", model.WatchRule{MaxSpend: f(50)}, model.GroupMetrics{TotalSpend: 50}, false},
		{"no thresholds", model.WatchRule{}, model.GroupMetrics{TotalSpend: 1e6}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.rule.GroupKey = "g"
			tc.rule.AdsetIDs = []string{"S1"}
			groups := watch.MetricsFromAdsets(
				[]model.WatchRule{tc.rule},
				map[string]model.AdsetMetrics{"S1": {AdsetID: "S1", Spend: tc.gm.TotalSpend, Results: tc.gm.TotalResults}},
				active("S1"),
			)
			got := watch.Evaluate([]model.WatchRule{tc.rule}, groups)
			if tc.pause {
				assert.Equal(t, []string{"S1"}, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestEvaluateInertRule(t *testing.T) {
	rules := []model.WatchRule{{GroupKey: "empty", MaxSpend: f(0)}}
	groups := map[string]model.GroupMetrics{"empty": {GroupKey: "empty", TotalSpend: 10, AllActive: true}}
	assert.Empty(t, watch.Evaluate(rules, groups))
	assert.Equal(t, model.VerdictInert, watch.Decide(rules, groups)[0].Verdict)
}

func TestEvaluateDeduplicatesAcrossRules(t *testing.T) {
	rules := []model.WatchRule{
		{GroupKey: "a", AdsetIDs: []string{"S1", "S2"}, MaxSpend: f(1)},
		{GroupKey: "b", AdsetIDs: []string{"S2", "S3"}, MaxSpend: f(1)},
	}
	groups := watch.MetricsFromAdsets(rules, map[string]model.AdsetMetrics{
		"S1": {Spend: 5}, "S2": {Spend: 5}, "S3": {Spend: 5},
	}, active("S1", "S2", "S3"))
	assert.Equal(t, []string{"S1", "S2", "S3"}, watch.Evaluate(rules, groups))
}

func TestEvaluateIsIdempotent(t *testing.T) {
	rules := []model.WatchRule{{GroupKey: "g", AdsetIDs: []string{"S1"}, MaxSpend: f(1)}}
	groups := watch.MetricsFromAdsets(rules, map[string]model.AdsetMetrics{"S1": {Spend: 5}}, active("S1"))
	first := watch.Evaluate(rules, groups)
	second := watch.Evaluate(rules, groups)
	assert.Equal(t, first, second)

	// once paused, the group is no longer all active and is skipped
	paused := map[string]model.ObjectStatus{"S1": {ID: "S1", Status: "PAUSED"}}
	after := watch.MetricsFromAdsets(rules, map[string]model.AdsetMetrics{"S1": {Spend: 5}}, paused)
	assert.Empty(t, watch.Evaluate(rules, after))
}

func TestMetricsFromAdsetsCPAUndefinedWithoutResults(t *testing.T) {
	rules := []model.WatchRule{{GroupKey: "g", AdsetIDs: []string{"S1", "S2"}}}
	groups := watch.MetricsFromAdsets(rules, map[string]model.AdsetMetrics{
		"S1": {Spend: 3},
		"S2": {Spend: 4},
	}, active("S1", "S2"))
	gm := groups["g"]
	assert.Equal(t, 7.0, gm.TotalSpend)
	assert.Nil(t, gm.CPA)
	assert.True(t, gm.AllActive)
}

func TestMetricsFromAdsetsUnknownStatusIsNotActive(t *testing.T) {
	rules := []model.WatchRule{{GroupKey: "g", AdsetIDs: []string{"S1", "S2"}}}
	groups := watch.MetricsFromAdsets(rules, nil, active("S1"))
	assert.False(t, groups["g"].AllActive)
}

func TestMetricsFromJoined(t *testing.T) {
	rows := []model.JoinedRow{
		{PerformanceRow: model.PerformanceRow{AdsetID: "S1", Spend: 10, Results: f(2), AdsetStatus: "ACTIVE", AdsetEffectiveStatus: "ACTIVE"},
			Matched: true, JoinKey: "adset:set1", RevenueClientValue: 4},
		{PerformanceRow: model.PerformanceRow{AdsetID: "S1", Spend: 6, AdsetStatus: "ACTIVE", AdsetEffectiveStatus: "ACTIVE"},
			Matched: true, JoinKey: "adset:set1", RevenueClientValue: 4},
	}
	rules := []model.WatchRule{{GroupKey: "g", AdsetIDs: []string{"S1"}, MaxCPA: f(5)}}
	groups := watch.MetricsFromJoined(rules, rows, watch.StatusesFromRows(rows))
	gm := groups["g"]
	assert.Equal(t, 16.0, gm.TotalSpend)
	assert.Equal(t, 2.0, gm.TotalResults)
	require.NotNil(t, gm.CPA)
	assert.Equal(t, 8.0, *gm.CPA)
	assert.Equal(t, 4.0, gm.RevenueUSD)
	assert.True(t, gm.AllActive)
	assert.Equal(t, []string{"S1"}, watch.Evaluate(rules, groups))
}

func TestPreviewReportsWithoutDispatch(t *testing.T) {
	rows := []model.JoinedRow{
		{PerformanceRow: model.PerformanceRow{Date: "2024-05-02", AdsetID: "S1", Spend: 30, AdsetStatus: "ACTIVE", AdsetEffectiveStatus: "ACTIVE"}},
		{PerformanceRow: model.PerformanceRow{Date: "2024-05-01", AdsetID: "S2", Spend: 5, Results: f(5), AdsetStatus: "PAUSED", AdsetEffectiveStatus: "PAUSED"}},
	}
	rules := []model.WatchRule{
		{GroupKey: "a", AdsetIDs: []string{"S1"}, MaxCPA: f(1)},
		{GroupKey: "b", AdsetIDs: []string{"S2"}, MaxSpend: f(1)},
	}
	rep := watch.Preview("act_1", rules, rows, nil)
	assert.Equal(t, "2024-05-01", rep.Since)
	assert.Equal(t, "2024-05-02", rep.Until)
	assert.Equal(t, 2, rep.Rules)
	assert.Equal(t, []string{"S1"}, rep.Paused)
	require.Len(t, rep.Decisions, 2)
	assert.Equal(t, model.VerdictPause, rep.Decisions[0].Verdict)
	assert.Equal(t, model.VerdictInactive, rep.Decisions[1].Verdict)
}

func TestPreviewFlagsMissingStatuses(t *testing.T) {
	rows := []model.JoinedRow{
		{PerformanceRow: model.PerformanceRow{Date: "2024-05-01", AdsetID: "S1", Spend: 30}},
		{PerformanceRow: model.PerformanceRow{Date: "2024-05-01", AdsetID: "S2", Spend: 30}},
	}
	rules := []model.WatchRule{{GroupKey: "a", AdsetIDs: []string{"S1", "S2"}, MaxSpend: f(10)}}

	rep := watch.Preview("act_1", rules, rows, nil)
	assert.Empty(t, rep.Paused)
	assert.Equal(t, []model.SkippedAdset{
		{ID: "S1", Status: watch.StatusUnknown},
		{ID: "S2", Status: watch.StatusUnknown},
	}, rep.Skipped)
	assert.Equal(t, model.VerdictInactive, rep.Decisions[0].Verdict)

	rep = watch.Preview("act_1", rules, rows, active("S1", "S2"))
	assert.Empty(t, rep.Skipped)
	assert.Equal(t, []string{"S1", "S2"}, rep.Paused)
}

func TestOwnersNamesFirstViolatingRule(t *testing.T) {
	rules := []model.WatchRule{
		{GroupKey: "a", AdsetIDs: []string{"S1", "S2"}, MaxSpend: f(1)},
		{GroupKey: "b", AdsetIDs: []string{"S2", "S3"}, MaxSpend: f(1)},
		{GroupKey: "c", AdsetIDs: []string{"S4"}, MaxSpend: f(100)},
	}
	groups := map[string]model.GroupMetrics{
		"a": {GroupKey: "a", AllActive: true, TotalSpend: 5},
		"b": {GroupKey: "b", AllActive: true, TotalSpend: 5},
		"c": {GroupKey: "c", AllActive: true, TotalSpend: 5},
	}
	assert.Equal(t, map[string]string{"S1": "a", "S2": "a", "S3": "b"}, watch.Owners(rules, groups))
}
