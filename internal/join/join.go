// Package join correlates ads-platform performance rows with
// analytics-platform custom-value rows and rolls the result up into
// per-ad and per-ad-set views.
//
// All functions are pure: they never mutate their input and never fail on
// missing optional data. A row without an analytics match comes back with
// Matched=false and nil derived fields.
package join

import (
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// Index maps a normalized custom value to its analytics row.
type Index map[string]model.AnalyticsRow

// ─── Indexing ─────────────────────────────────────────────────────────────────

// IndexAnalytics builds a lookup keyed by normalized custom_value. Rows whose
// key normalizes to "" are dropped. Several rows with the same key (one per
// domain or per day) are folded into one.
func IndexAnalytics(rows []model.AnalyticsRow) Index {
	idx := make(Index, len(rows))
	for _, r := range rows {
		key := util.NormalizeKey(r.CustomValue)
		if key == "" {
			continue
		}
		if prev, ok := idx[key]; ok {
			idx[key] = fold(prev, r)
			continue
		}
		idx[key] = r
	}
	return idx
}

// fold merges b into a. Revenue is folded through the precedence rule so a
// row that only carried eCPM still contributes its derived revenue.
func fold(a, b model.AnalyticsRow) model.AnalyticsRow {
	out := a
	out.Clicks = a.Clicks + b.Clicks
	out.Impressions = addOpt(a.Impressions, b.Impressions)
	out.Revenue = addOpt(a.Revenue, b.Revenue)
	out.ECPM = nil

	ra, okA := Revenue(a)
	rb, okB := Revenue(b)
	if okA || okB {
		sum := ra + rb
		out.RevenueClient = &sum
	}
	out.ECPMClient = nil
	if out.RevenueClient == nil && a.ECPMClient != nil && b.ECPMClient != nil {
		avg := (*a.ECPMClient + *b.ECPMClient) / 2
		out.ECPMClient = &avg
	}
	if a.Domain != b.Domain {
		out.Domain = ""
	}
	if a.Date != b.Date {
		out.Date = ""
	}
	return out
}

func addOpt(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	default:
		v := *a + *b
		return &v
	}
}

// ─── Revenue ──────────────────────────────────────────────────────────────────

// Revenue returns the client revenue of an analytics row.
//
// Precedence: revenue_client, then revenue, then ecpm_client*impressions/1000.
// A level is skipped only when its field is absent; an explicit zero wins.
// ok is false when no level could be applied.
func Revenue(a model.AnalyticsRow) (float64, bool) {
	switch {
	case a.RevenueClient != nil:
		return *a.RevenueClient, true
	case a.Revenue != nil:
		return *a.Revenue, true
	case a.ECPMClient != nil && a.Impressions != nil:
		return *a.ECPMClient * *a.Impressions / 1000, true
	default:
		return 0, false
	}
}

// ─── Join ─────────────────────────────────────────────────────────────────────

// Join attaches analytics values to each performance row.
//
// Lookup order: ad name in adIndex, then ad id in adIndex, then ad-set name
// in adsetIndex. rate converts USD revenue to BRL; a rate <= 0 means unknown
// and leaves the BRL projection, ROAS and profit nil.
func Join(perf []model.PerformanceRow, adIndex, adsetIndex Index, rate float64) []model.JoinedRow {
	out := make([]model.JoinedRow, 0, len(perf))
	for _, p := range perf {
		out = append(out, joinRow(p, adIndex, adsetIndex, rate))
	}
	return out
}

func joinRow(p model.PerformanceRow, adIndex, adsetIndex Index, rate float64) model.JoinedRow {
	jr := model.JoinedRow{PerformanceRow: p}

	a, src, key := lookup(p, adIndex, adsetIndex)
	if src == model.Unmatched {
		return jr
	}

	jr.Source = src
	jr.Matched = true
	jr.JoinKey = src.DataLevel() + ":" + key

	rev, _ := Revenue(a)
	jr.RevenueClientValue = rev
	impr := 0.0
	if a.Impressions != nil {
		impr = *a.Impressions
	}
	clicks := a.Clicks
	jr.ImpressionsJoinads = &impr
	jr.ClicksJoinads = &clicks

	if rate > 0 {
		brl := rev * rate
		profit := brl - p.Spend
		jr.RevenueClientBRL = &brl
		jr.ProfitBRL = &profit
		if p.Spend > 0 {
			roas := brl / p.Spend
			jr.ROAS = &roas
		}
	}
	return jr
}

// lookup resolves the analytics row for p and reports where it came from.
func lookup(p model.PerformanceRow, adIndex, adsetIndex Index) (model.AnalyticsRow, model.JoinSource, string) {
	for _, key := range []string{util.NormalizeKey(p.AdName), util.NormalizeKey(p.AdID)} {
		if key == "" {
			continue
		}
		if a, ok := adIndex[key]; ok {
			return a, model.AdLevel, key
		}
	}
	if key := util.NormalizeKey(p.AdsetName); key != "" {
		if a, ok := adsetIndex[key]; ok {
			return a, model.AdsetLevelFallback, key
		}
	}
	return model.AnalyticsRow{}, model.Unmatched, ""
}
