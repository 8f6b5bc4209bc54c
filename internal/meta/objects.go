package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/retry"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// ─── Status Lookups ───────────────────────────────────────────────────────────

// lookupStatuses fetches fields for one chunk of ids with a single ?ids= call.
// Objects without any status are left out.
func (c *Client) lookupStatuses(ctx context.Context, ids []string, fields string) (map[string]model.ObjectStatus, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("fields", fields)

	var raw map[string]struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Status          string `json:"status"`
		EffectiveStatus string `json:"effective_status"`
	}
	if err := c.get(ctx, "", params, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]model.ObjectStatus, len(raw))
	for id, v := range raw {
		if v.Status == "" && v.EffectiveStatus == "" {
			continue
		}
		out[id] = model.ObjectStatus{ID: id, Name: v.Name, Status: v.Status, EffectiveStatus: v.EffectiveStatus}
	}
	return out, nil
}

// GetStatuses returns the status of every id the platform knows about, looked
// up in chunks of 50. Any failed chunk fails the whole call.
func (c *Client) GetStatuses(ctx context.Context, ids []string) (map[string]model.ObjectStatus, error) {
	out := make(map[string]model.ObjectStatus)
	for _, chunk := range util.Chunk(util.DedupeIDs(ids), idsChunkSize) {
		got, err := c.lookupStatuses(ctx, chunk, "status,effective_status")
		if err != nil {
			return nil, fmt.Errorf("statuses: %w", err)
		}
		for id, st := range got {
			out[id] = st
		}
	}
	return out, nil
}

// BulkStatuses is the result of StatusBulk.
type BulkStatuses struct {
	Campaigns map[string]model.ObjectStatus `json:"campaigns"`
	Adsets    map[string]model.ObjectStatus `json:"adsets"`
	Ads       map[string]model.ObjectStatus `json:"ads"`
}

// StatusBulk looks up campaigns, ad sets and ads concurrently.
func (c *Client) StatusBulk(ctx context.Context, campaignIDs, adsetIDs, adIDs []string) (*BulkStatuses, error) {
	var out BulkStatuses
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Campaigns, err = c.GetStatuses(gctx, campaignIDs)
		return err
	})
	g.Go(func() (err error) {
		out.Adsets, err = c.GetStatuses(gctx, adsetIDs)
		return err
	})
	g.Go(func() (err error) {
		out.Ads, err = c.GetStatuses(gctx, adIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAdsetAds returns every ad in an ad set, following pagination.
func (c *Client) ListAdsetAds(ctx context.Context, adsetID string) ([]model.ObjectStatus, error) {
	if err := util.Missing("adset_id", adsetID); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("fields", "id,name,status,effective_status")
	params.Set("limit", "200")

	raw, err := c.getAll(ctx, strings.TrimSpace(adsetID)+"/ads", params)
	if err != nil {
		return nil, fmt.Errorf("ads of %s: %w", adsetID, err)
	}
	ads := make([]model.ObjectStatus, 0, len(raw))
	for _, r := range raw {
		var st model.ObjectStatus
		if err := json.Unmarshal(r, &st); err != nil {
			continue
		}
		ads = append(ads, st)
	}
	return ads, nil
}

// ─── Writes ───────────────────────────────────────────────────────────────────

// SetStatus sets an ad, ad set or campaign to ACTIVE or PAUSED.
func (c *Client) SetStatus(ctx context.Context, id, status string) error {
	status = strings.ToUpper(strings.TrimSpace(status))
	if err := util.Missing("id", id, "status", status); err != nil {
		return err
	}
	if status != "ACTIVE" && status != "PAUSED" {
		return &util.ValidationError{Fields: []string{"status"}, Reason: "must be ACTIVE or PAUSED"}
	}
	params := url.Values{}
	params.Set("status", status)
	if err := c.post(ctx, strings.TrimSpace(id), params, nil); err != nil {
		return fmt.Errorf("set status %s=%s: %w", id, status, err)
	}
	return nil
}

// Budget is an ad set's budget in currency units. Nil fields were absent.
type Budget struct {
	AdsetID         string   `json:"adset_id"`
	DailyBudget     *float64 `json:"daily_budget"`
	LifetimeBudget  *float64 `json:"lifetime_budget"`
	BudgetRemaining *float64 `json:"budget_remaining"`
}

// SetDailyBudget sets an ad set's daily budget. amount is in currency units
// and is sent as integer cents. The budget is read back after the write; a
// failed read-back returns a nil Budget without error.
func (c *Client) SetDailyBudget(ctx context.Context, adsetID, amount string) (*Budget, error) {
	if err := util.Missing("adset_id", adsetID, "daily_budget", amount); err != nil {
		return nil, err
	}
	d, err := util.ParseMoney(amount)
	if err != nil {
		return nil, &util.ValidationError{Fields: []string{"daily_budget"}, Reason: err.Error()}
	}
	cents, err := util.ToMinorUnits(d)
	if err != nil {
		return nil, &util.ValidationError{Fields: []string{"daily_budget"}, Reason: "must be greater than zero"}
	}

	params := url.Values{}
	params.Set("daily_budget", strconv.FormatInt(cents, 10))
	if err := c.post(ctx, strings.TrimSpace(adsetID), params, nil); err != nil {
		return nil, fmt.Errorf("set budget %s: %w", adsetID, err)
	}

	check := url.Values{}
	check.Set("fields", "daily_budget,lifetime_budget,budget_remaining")
	var info adsetInfo
	if err := c.get(ctx, strings.TrimSpace(adsetID), check, &info); err != nil {
		return nil, nil
	}
	return &Budget{
		AdsetID:         adsetID,
		DailyBudget:     minorPtr(info.DailyBudget),
		LifetimeBudget:  minorPtr(info.LifetimeBudget),
		BudgetRemaining: minorPtr(info.BudgetRemaining),
	}, nil
}

// Rename changes the name of any ads-platform object.
func (c *Client) Rename(ctx context.Context, id, name string) error {
	if err := util.Missing("object_id", id, "name", name); err != nil {
		return err
	}
	params := url.Values{}
	params.Set("name", name)
	if err := c.post(ctx, strings.TrimSpace(id), params, nil); err != nil {
		return fmt.Errorf("rename %s: %w", id, err)
	}
	return nil
}

// CopyOptions tunes CopyAd.
type CopyOptions struct {
	StatusOption   string         // ACTIVE|PAUSED|INHERITED_FROM_SOURCE
	RenameStrategy string         // DEEP_RENAME|ONLY_TOP_LEVEL_RENAME|NO_RENAME
	RenameOptions  map[string]any // passed through as JSON
}

// CopyAd copies an ad into adsetID and returns the new ad id. Calls that hit
// the propagation-delay subcode are retried with CopyPolicy.
func (c *Client) CopyAd(ctx context.Context, adID, adsetID string, opts CopyOptions) (string, error) {
	if err := util.Missing("ad_id", adID, "adset_id", adsetID); err != nil {
		return "", err
	}
	newID, err := retry.DoValue(ctx, c.copyRetry, func(ctx context.Context) (string, error) {
		params := url.Values{}
		params.Set("adset_id", adsetID)
		if opts.StatusOption != "" {
			params.Set("status_option", opts.StatusOption)
		}
		if opts.RenameStrategy != "" {
			params.Set("rename_strategy", opts.RenameStrategy)
		}
		if len(opts.RenameOptions) > 0 {
			b, err := json.Marshal(opts.RenameOptions)
			if err != nil {
				return "", fmt.Errorf("encoding rename options: %w", err)
			}
			params.Set("rename_options", string(b))
		}
		var out copyResponse
		if err := c.post(ctx, strings.TrimSpace(adID)+"/copies", params, &out); err != nil {
			return "", err
		}
		return out.id(out.CopiedAdID), nil
	})
	if err != nil {
		return "", fmt.Errorf("copy ad %s: %w", adID, err)
	}
	return newID, nil
}

// CopyAdset deep-copies an ad set with its ads and returns the new ad set id.
func (c *Client) CopyAdset(ctx context.Context, adsetID, statusOption string) (string, error) {
	if err := util.Missing("adset_id", adsetID); err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("deep_copy", "true")
	if statusOption != "" {
		params.Set("status_option", statusOption)
	}
	var out copyResponse
	err := retry.Do(ctx, c.copyRetry, func(ctx context.Context) error {
		return c.post(ctx, strings.TrimSpace(adsetID)+"/copies", params, &out)
	})
	if err != nil {
		return "", fmt.Errorf("copy ad set %s: %w", adsetID, err)
	}
	return out.id(out.CopiedAdsetID), nil
}

type copyResponse struct {
	CopiedAdID    string `json:"copied_ad_id"`
	CopiedAdsetID string `json:"copied_adset_id"`
	CopiedID      string `json:"copied_id"`
	ID            string `json:"id"`
}

// id picks the first non-empty id, preferring the typed field.
func (r copyResponse) id(typed string) string {
	for _, v := range []string{typed, r.ID, r.CopiedID} {
		if v != "" {
			return v
		}
	}
	return ""
}

// DeleteAd deletes an ad.
func (c *Client) DeleteAd(ctx context.Context, adID string) error {
	if err := util.Missing("ad_id", adID); err != nil {
		return err
	}
	if err := c.del(ctx, strings.TrimSpace(adID), nil); err != nil {
		return fmt.Errorf("delete ad %s: %w", adID, err)
	}
	return nil
}
