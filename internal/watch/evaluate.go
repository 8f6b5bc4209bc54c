// Package watch implements the rule-based spend watcher: rule transitions,
// group metric construction, rule evaluation, and the periodic tick that
// dispatches pauses to the ads platform.
package watch

import (
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// ─── Group Metrics ────────────────────────────────────────────────────────────

// MetricsFromAdsets builds one GroupMetrics per rule from per-ad-set totals
// and statuses. An ad set with no status entry counts as not active.
func MetricsFromAdsets(rules []model.WatchRule, adsets map[string]model.AdsetMetrics, statuses map[string]model.ObjectStatus) map[string]model.GroupMetrics {
	out := make(map[string]model.GroupMetrics, len(rules))
	for _, r := range rules {
		ids := util.DedupeIDs(r.AdsetIDs)
		gm := model.GroupMetrics{GroupKey: r.GroupKey, AllActive: len(ids) > 0}
		for _, id := range ids {
			if m, ok := adsets[id]; ok {
				gm.TotalSpend += m.Spend
				gm.TotalResults += m.Results
			}
			if st, ok := statuses[id]; !ok || !st.IsActive() {
				gm.AllActive = false
			}
		}
		out[r.GroupKey] = withCPA(gm)
	}
	return out
}

// MetricsFromJoined builds GroupMetrics from joined report rows, so a report
// can preview what the watcher would do. Revenue follows the same add-once
// rule as grouping.
func MetricsFromJoined(rules []model.WatchRule, rows []model.JoinedRow, statuses map[string]model.ObjectStatus) map[string]model.GroupMetrics {
	adsets := make(map[string]model.AdsetMetrics)
	byAdset := make(map[string][]model.JoinedRow)
	for _, r := range rows {
		m := adsets[r.AdsetID]
		m.AdsetID = r.AdsetID
		m.Spend += r.Spend
		m.Results += r.ResultCount()
		adsets[r.AdsetID] = m
		byAdset[r.AdsetID] = append(byAdset[r.AdsetID], r)
	}

	out := MetricsFromAdsets(rules, adsets, statuses)
	for _, rule := range rules {
		seen := make(map[string]bool)
		var revenue float64
		for _, id := range util.DedupeIDs(rule.AdsetIDs) {
			for _, r := range byAdset[id] {
				if !r.Matched || seen[r.JoinKey] {
					continue
				}
				seen[r.JoinKey] = true
				revenue += r.RevenueClientValue
			}
		}
		gm := out[rule.GroupKey]
		gm.RevenueUSD = revenue
		out[rule.GroupKey] = gm
	}
	return out
}

// StatusesFromRows derives ad-set statuses from enriched performance rows.
func StatusesFromRows(rows []model.JoinedRow) map[string]model.ObjectStatus {
	out := make(map[string]model.ObjectStatus)
	for _, r := range rows {
		if r.AdsetID == "" || (r.AdsetStatus == "" && r.AdsetEffectiveStatus == "") {
			continue
		}
		out[r.AdsetID] = model.ObjectStatus{
			ID:              r.AdsetID,
			Name:            r.AdsetName,
			Status:          r.AdsetStatus,
			EffectiveStatus: r.AdsetEffectiveStatus,
		}
	}
	return out
}

func withCPA(gm model.GroupMetrics) model.GroupMetrics {
	gm.CPA = nil
	if gm.TotalResults > 0 {
		cpa := gm.TotalSpend / gm.TotalResults
		gm.CPA = &cpa
	}
	return gm
}

// ─── Evaluation ───────────────────────────────────────────────────────────────

// Decide evaluates every rule against its group and explains the verdict.
func Decide(rules []model.WatchRule, groups map[string]model.GroupMetrics) []model.RuleDecision {
	out := make([]model.RuleDecision, 0, len(rules))
	for _, r := range rules {
		d := model.RuleDecision{GroupKey: r.GroupKey, GroupName: r.GroupName}
		gm, ok := groups[r.GroupKey]
		if !ok {
			gm = model.GroupMetrics{GroupKey: r.GroupKey}
		}
		d.Metrics = gm

		switch {
		case len(util.DedupeIDs(r.AdsetIDs)) == 0:
			d.Verdict = model.VerdictInert
		case !gm.AllActive:
			d.Verdict = model.VerdictInactive
		default:
			d.ExceedsSpend = exceedsSpend(r, gm)
			d.ExceedsCPA = exceedsCPA(r, gm)
			d.Verdict = model.VerdictOK
			if d.ExceedsSpend || d.ExceedsCPA {
				d.Verdict = model.VerdictPause
			}
		}
		out = append(out, d)
	}
	return out
}

// StatusUnknown marks a watched ad set that Preview found no status for.
const StatusUnknown = "NO_STATUS"

// Preview evaluates rules against already-joined rows without calling the
// ads platform. Paused lists the ad sets a tick would pause; nothing is
// dispatched.
//
// Ad-set statuses come from the rows' enrichment fields, overridden by
// statuses when it is non-nil. A watched ad set with neither is listed in
// Skipped with StatusUnknown, since its group counts as inactive here while a
// live tick would fetch its real status.
func Preview(accountID string, rules []model.WatchRule, rows []model.JoinedRow, statuses map[string]model.ObjectStatus) *model.WatchReport {
	rep := &model.WatchReport{
		AccountID: accountID,
		Rules:     len(rules),
		Paused:    []string{},
		Skipped:   []model.SkippedAdset{},
	}
	for _, r := range rows {
		if r.Date == "" {
			continue
		}
		if rep.Since == "" || r.Date < rep.Since {
			rep.Since = r.Date
		}
		if r.Date > rep.Until {
			rep.Until = r.Date
		}
	}

	known := StatusesFromRows(rows)
	for id, st := range statuses {
		known[id] = st
	}
	var watched []string
	for _, r := range rules {
		watched = append(watched, r.AdsetIDs...)
	}
	for _, id := range util.DedupeIDs(watched) {
		if _, ok := known[id]; !ok {
			rep.Skipped = append(rep.Skipped, model.SkippedAdset{ID: id, Status: StatusUnknown})
		}
	}

	groups := MetricsFromJoined(rules, rows, known)
	rep.Decisions = Decide(rules, groups)
	rep.Paused = append(rep.Paused, Evaluate(rules, groups)...)
	return rep
}

// Evaluate returns the de-duplicated ad-set ids to pause, in rule order.
// Rules with no ad sets, and groups with any non-active member, are skipped.
func Evaluate(rules []model.WatchRule, groups map[string]model.GroupMetrics) []string {
	var queue []string
	for i, d := range Decide(rules, groups) {
		if d.Verdict == model.VerdictPause {
			queue = append(queue, rules[i].AdsetIDs...)
		}
	}
	return util.DedupeIDs(queue)
}

// Owners maps every ad-set id Evaluate would queue to the key of the first
// violating rule, in rule order, that queued it.
func Owners(rules []model.WatchRule, groups map[string]model.GroupMetrics) map[string]string {
	out := make(map[string]string)
	for i, d := range Decide(rules, groups) {
		if d.Verdict != model.VerdictPause {
			continue
		}
		for _, id := range util.DedupeIDs(rules[i].AdsetIDs) {
			if _, ok := out[id]; !ok {
				out[id] = rules[i].GroupKey
			}
		}
	}
	return out
}

func exceedsSpend(r model.WatchRule, gm model.GroupMetrics) bool {
	return r.MaxSpend != nil && gm.TotalSpend > *r.MaxSpend
}

// exceedsCPA treats spend with zero results as a violation.
func exceedsCPA(r model.WatchRule, gm model.GroupMetrics) bool {
	if r.MaxCPA == nil {
		return false
	}
	if gm.CPA != nil {
		return *gm.CPA > *r.MaxCPA
	}
	return gm.TotalSpend > 0
}
