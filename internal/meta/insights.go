package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// ─── Insights ─────────────────────────────────────────────────────────────────

var adInsightFields = []string{
	"date_start",
	"campaign_name",
	"adset_id",
	"adset_name",
	"ad_id",
	"ad_name",
	"objective",
	"spend",
	"results",
	"cpm",
	"cost_per_result",
}

type rawInsight struct {
	DateStart     string `json:"date_start"`
	CampaignName  string `json:"campaign_name"`
	AdsetID       string `json:"adset_id"`
	AdsetName     string `json:"adset_name"`
	AdID          string `json:"ad_id"`
	AdName        string `json:"ad_name"`
	Objective     string `json:"objective"`
	Spend         any    `json:"spend"`
	Results       any    `json:"results"`
	CPM           any    `json:"cpm"`
	CostPerResult any    `json:"cost_per_result"`
}

func (r rawInsight) row() model.PerformanceRow {
	return model.PerformanceRow{
		Date:          r.DateStart,
		CampaignName:  r.CampaignName,
		AdsetID:       r.AdsetID,
		AdsetName:     r.AdsetName,
		AdID:          r.AdID,
		AdName:        r.AdName,
		Objective:     r.Objective,
		Spend:         util.Coerce(r.Spend),
		Results:       util.CoercePtr(r.Results),
		CPM:           util.Coerce(r.CPM),
		CostPerResult: util.Coerce(r.CostPerResult),
	}
}

func timeRange(since, until string) string {
	b, _ := json.Marshal(map[string]string{"since": since, "until": until})
	return string(b)
}

func accountPath(accountID string) string {
	accountID = strings.TrimSpace(accountID)
	if !strings.HasPrefix(accountID, "act_") {
		accountID = "act_" + accountID
	}
	return accountID
}

// GetAdInsights returns one row per ad per day for the account, enriched with
// ad status and ad-set budget/status. Enrichment lookups that fail leave the
// affected rows un-enriched.
func (c *Client) GetAdInsights(ctx context.Context, accountID, since, until string) ([]model.PerformanceRow, error) {
	if err := util.Missing("account_id", accountID, "since", since, "until", until); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("fields", strings.Join(adInsightFields, ","))
	params.Set("time_range", timeRange(since, until))
	params.Set("level", "ad")
	params.Set("time_increment", "1")
	params.Set("limit", "500")

	raw, err := c.getAll(ctx, accountPath(accountID)+"/insights", params)
	if err != nil {
		return nil, fmt.Errorf("ad insights %s: %w", accountID, err)
	}

	rows := make([]model.PerformanceRow, 0, len(raw))
	var adIDs, adsetIDs []string
	for _, r := range raw {
		var ri rawInsight
		if err := json.Unmarshal(r, &ri); err != nil {
			continue
		}
		row := ri.row()
		rows = append(rows, row)
		adIDs = append(adIDs, row.AdID)
		adsetIDs = append(adsetIDs, row.AdsetID)
	}

	c.enrich(ctx, rows, util.DedupeIDs(adIDs), util.DedupeIDs(adsetIDs))
	return rows, nil
}

type adsetInfo struct {
	DailyBudget     any    `json:"daily_budget"`
	LifetimeBudget  any    `json:"lifetime_budget"`
	BudgetRemaining any    `json:"budget_remaining"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
}

// enrich fills status and budget fields in place.
func (c *Client) enrich(ctx context.Context, rows []model.PerformanceRow, adIDs, adsetIDs []string) {
	var mu sync.Mutex
	ads := make(map[string]model.ObjectStatus)
	adsets := make(map[string]adsetInfo)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, chunk := range util.Chunk(adIDs, idsChunkSize) {
		g.Go(func() error {
			got, err := c.lookupStatuses(gctx, chunk, "name,status,effective_status")
			if err != nil {
				slog.Debug("ad status lookup failed", "ids", len(chunk), "err", err)
				return nil
			}
			mu.Lock()
			for id, st := range got {
				ads[id] = st
			}
			mu.Unlock()
			return nil
		})
	}
	for _, chunk := range util.Chunk(adsetIDs, idsChunkSize) {
		g.Go(func() error {
			var got map[string]adsetInfo
			params := url.Values{}
			params.Set("ids", strings.Join(chunk, ","))
			params.Set("fields", "daily_budget,lifetime_budget,budget_remaining,status,effective_status")
			if err := c.get(gctx, "", params, &got); err != nil {
				slog.Debug("ad set budget lookup failed", "ids", len(chunk), "err", err)
				return nil
			}
			mu.Lock()
			for id, info := range got {
				adsets[id] = info
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i := range rows {
		if st, ok := ads[rows[i].AdID]; ok {
			rows[i].Status = st.Status
			rows[i].EffectiveStatus = st.EffectiveStatus
		}
		if info, ok := adsets[rows[i].AdsetID]; ok {
			rows[i].AdsetStatus = info.Status
			rows[i].AdsetEffectiveStatus = info.EffectiveStatus
			rows[i].DailyBudget = minorPtr(info.DailyBudget)
			rows[i].LifetimeBudget = minorPtr(info.LifetimeBudget)
		}
	}
}

func minorPtr(v any) *float64 {
	if _, ok := util.CoerceOpt(v); !ok {
		return nil
	}
	f := util.FromMinorUnits(v)
	return &f
}

// GetAdsetMetrics sums spend and action counts per ad set over [since, until].
// Ad sets without delivery in the range are absent from the result.
func (c *Client) GetAdsetMetrics(ctx context.Context, accountID string, adsetIDs []string, since, until string) (map[string]model.AdsetMetrics, error) {
	out := make(map[string]model.AdsetMetrics)
	for _, chunk := range util.Chunk(util.DedupeIDs(adsetIDs), idsChunkSize) {
		filter, _ := json.Marshal([]map[string]any{
			{"field": "adset.id", "operator": "IN", "value": chunk},
		})
		params := url.Values{}
		params.Set("fields", "adset_id,adset_name,spend,actions")
		params.Set("level", "adset")
		params.Set("time_range", timeRange(since, until))
		params.Set("filtering", string(filter))

		raw, err := c.getAll(ctx, accountPath(accountID)+"/insights", params)
		if err != nil {
			return nil, fmt.Errorf("ad set insights %s: %w", accountID, err)
		}
		for _, r := range raw {
			var row struct {
				AdsetID string `json:"adset_id"`
				Spend   any    `json:"spend"`
				Actions []struct {
					Value any `json:"value"`
				} `json:"actions"`
			}
			if err := json.Unmarshal(r, &row); err != nil || row.AdsetID == "" {
				continue
			}
			m := out[row.AdsetID]
			m.AdsetID = row.AdsetID
			m.Spend += util.Coerce(row.Spend)
			for _, a := range row.Actions {
				m.Results += util.Coerce(a.Value)
			}
			out[row.AdsetID] = m
		}
	}
	return out, nil
}
