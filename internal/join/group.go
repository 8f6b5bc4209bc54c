package join

import (
	"fmt"
	"sort"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// ─── Grouping ─────────────────────────────────────────────────────────────────

// GroupByAdset rolls joined rows up by (ad-set name, objective).
func GroupByAdset(rows []model.JoinedRow) []model.GroupedRow {
	return group(rows, func(r model.JoinedRow) (string, string) {
		if r.AdsetName != "" {
			return r.AdsetName, r.Objective
		}
		return r.AdsetID, r.Objective
	})
}

// GroupByAd rolls joined rows up by (ad name, objective).
func GroupByAd(rows []model.JoinedRow) []model.GroupedRow {
	return group(rows, func(r model.JoinedRow) (string, string) {
		if r.AdName != "" {
			return r.AdName, r.Objective
		}
		return r.AdID, r.Objective
	})
}

// GroupByDate rolls joined rows up by day, oldest first. Name holds the date.
//
// Analytics values cover the whole requested range, so a join key seen on
// several days has its revenue, impressions and clicks spread over the rows
// carrying it in proportion to their spend (evenly when none of them spent).
// The daily values therefore add up to Totals.
func GroupByDate(rows []model.JoinedRow) []model.GroupedRow {
	out := group(spread(rows), func(r model.JoinedRow) (string, string) { return r.Date, "" })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// spread returns a copy of rows where each matched row carries only its share
// of the join key's analytics values. Every share gets its own join key so the
// add-once rule in group keeps all of them.
func spread(rows []model.JoinedRow) []model.JoinedRow {
	type weight struct {
		spend float64
		n     int
	}
	byKey := make(map[string]*weight)
	for _, r := range rows {
		if !r.Matched {
			continue
		}
		w, ok := byKey[r.JoinKey]
		if !ok {
			w = &weight{}
			byKey[r.JoinKey] = w
		}
		w.spend += r.Spend
		w.n++
	}

	out := make([]model.JoinedRow, len(rows))
	for i, r := range rows {
		out[i] = r
		if !r.Matched {
			continue
		}
		w := byKey[r.JoinKey]
		share := 1 / float64(w.n)
		if w.spend > 0 {
			share = r.Spend / w.spend
		}
		out[i].JoinKey = fmt.Sprintf("%s#%d", r.JoinKey, i)
		out[i].RevenueClientValue = r.RevenueClientValue * share
		out[i].ImpressionsJoinads = scale(r.ImpressionsJoinads, share)
		out[i].ClicksJoinads = scale(r.ClicksJoinads, share)
		out[i].RevenueClientBRL = scale(r.RevenueClientBRL, share)
	}
	return out
}

func scale(v *float64, by float64) *float64 {
	if v == nil {
		return nil
	}
	s := *v * by
	return &s
}

// GroupKey is the composite key used for a (name, objective) group.
func GroupKey(name, objective string) string {
	return util.NormalizeKey(name) + "|" + util.NormalizeKey(objective)
}

type acc struct {
	row    model.GroupedRow
	brl    float64
	hasBRL bool
	added  map[string]bool
	adsets []string
}

// group sums spend and results over every row, but adds each analytics join
// key's impressions, clicks and revenue at most once per group. Several ads
// sharing one ad-set fallback therefore count that ad set's revenue once.
func group(rows []model.JoinedRow, keyOf func(model.JoinedRow) (string, string)) []model.GroupedRow {
	byKey := make(map[string]*acc)
	var order []string

	for _, r := range rows {
		name, objective := keyOf(r)
		key := GroupKey(name, objective)
		g, ok := byKey[key]
		if !ok {
			g = &acc{
				row:   model.GroupedRow{Key: key, Name: name, Objective: objective},
				added: make(map[string]bool),
			}
			byKey[key] = g
			order = append(order, key)
		}

		g.row.Rows++
		g.row.Spend += r.Spend
		g.row.Results += r.ResultCount()
		g.adsets = append(g.adsets, r.AdsetID)

		if !r.Matched {
			continue
		}
		g.row.Matched = true
		if r.Source == model.AdsetLevelFallback {
			g.row.Fallback = true
		}
		if g.added[r.JoinKey] {
			continue
		}
		g.added[r.JoinKey] = true
		g.row.Revenue += r.RevenueClientValue
		if r.ImpressionsJoinads != nil {
			g.row.Impressions += *r.ImpressionsJoinads
		}
		if r.ClicksJoinads != nil {
			g.row.Clicks += *r.ClicksJoinads
		}
		if r.RevenueClientBRL != nil {
			g.brl += *r.RevenueClientBRL
			g.hasBRL = true
		}
	}

	out := make([]model.GroupedRow, 0, len(order))
	for _, key := range order {
		g := byKey[key]
		row := g.row
		row.AdsetIDs = util.DedupeIDs(g.adsets)
		if row.Results > 0 {
			cpa := row.Spend / row.Results
			row.CPA = &cpa
		}
		if g.hasBRL {
			brl := g.brl
			profit := brl - row.Spend
			row.RevenueBRL = &brl
			row.ProfitBRL = &profit
			if row.Spend > 0 {
				roas := brl / row.Spend
				row.ROAS = &roas
			}
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue > out[j].Revenue
	})
	return out
}

// ─── Totals ───────────────────────────────────────────────────────────────────

// Totals rolls every row into one summary row. The add-once rule applies
// across the whole set, so a join key shared by several groups is counted
// once here too.
func Totals(rows []model.JoinedRow) model.GroupedRow {
	all := group(rows, func(model.JoinedRow) (string, string) { return "TOTAL", "" })
	if len(all) == 0 {
		return model.GroupedRow{Key: GroupKey("TOTAL", ""), Name: "TOTAL"}
	}
	return all[0]
}
