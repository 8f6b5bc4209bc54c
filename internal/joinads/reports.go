package joinads

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// ─── Key-Value ────────────────────────────────────────────────────────────────

// KeyValueQuery selects custom-value buckets for one domain.
type KeyValueQuery struct {
	Start       string
	End         string
	Domain      string
	ReportType  string
	CustomKey   string
	CustomValue string // optional
}

// KeyValue returns one AnalyticsRow per custom value.
func (c *Client) KeyValue(ctx context.Context, q KeyValueQuery) ([]model.AnalyticsRow, error) {
	if err := util.Missing(
		"start_date", q.Start,
		"end_date", q.End,
		"domain", q.Domain,
		"report_type", q.ReportType,
		"custom_key", q.CustomKey,
	); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("start_date", q.Start)
	params.Set("end_date", q.End)
	params.Set("domain", q.Domain)
	params.Set("report_type", q.ReportType)
	params.Set("custom_key", q.CustomKey)
	if q.CustomValue != "" {
		params.Set("custom_value", q.CustomValue)
	}

	var raw json.RawMessage
	if err := c.get(ctx, "key-value", params, &raw); err != nil {
		return nil, fmt.Errorf("key-value %s: %w", q.Domain, err)
	}
	records, err := dataRows(raw)
	if err != nil {
		return nil, fmt.Errorf("key-value %s: %w", q.Domain, err)
	}

	rows := make([]model.AnalyticsRow, 0, len(records))
	for _, r := range records {
		row := RowFromRecord(r)
		if row.Domain == "" {
			row.Domain = q.Domain
		}
		if row.CustomKey == "" {
			row.CustomKey = q.CustomKey
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RowFromRecord maps one upstream key-value record to an AnalyticsRow. Numeric
// fields go through util coercion; absent ones stay nil.
func RowFromRecord(r model.Record) model.AnalyticsRow {
	return model.AnalyticsRow{
		Date:          text(r["date"]),
		Domain:        text(r["domain"]),
		CustomKey:     text(r["custom_key"]),
		CustomValue:   text(r["custom_value"]),
		Impressions:   util.CoercePtr(r["impressions"]),
		Clicks:        util.Coerce(r["clicks"]),
		Revenue:       util.CoercePtr(r["revenue"]),
		RevenueClient: util.CoercePtr(r["revenue_client"]),
		ECPM:          util.CoercePtr(r["ecpm"]),
		ECPMClient:    util.CoercePtr(r["ecpm_client"]),
	}
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// dataRows accepts either a bare array or an object whose "data" member is
// the array.
func dataRows(raw json.RawMessage) ([]model.Record, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var rows []model.Record
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decoding rows: %w", err)
		}
		return rows, nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, nil
	}
	return dataRows(env.Data)
}

// ─── Earnings & Top URLs ──────────────────────────────────────────────────────

// Earnings returns the earnings report, optionally limited to one domain.
func (c *Client) Earnings(ctx context.Context, start, end, domain string) ([]model.Record, error) {
	if err := util.Missing("start_date", start, "end_date", end); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("start_date", start)
	params.Set("end_date", end)
	if domain != "" {
		params.Set("domain", domain)
	}
	var raw json.RawMessage
	if err := c.get(ctx, "earnings", params, &raw); err != nil {
		return nil, fmt.Errorf("earnings: %w", err)
	}
	return dataRows(raw)
}

// TopURLQuery selects the best performing URLs across domains.
type TopURLQuery struct {
	Start   string
	End     string
	Domains []string
	Limit   int
	Sort    string
}

// TopURL returns the top URLs for the given domains.
func (c *Client) TopURL(ctx context.Context, q TopURLQuery) ([]model.Record, error) {
	q.Domains = util.DedupeIDs(q.Domains)
	if err := util.Missing("start_date", q.Start, "end_date", q.End, "domain[]", strings.Join(q.Domains, ",")); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("start_date", q.Start)
	params.Set("end_date", q.End)
	for _, d := range q.Domains {
		params.Add("domain[]", d)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	var raw json.RawMessage
	if err := c.get(ctx, "top-url", params, &raw); err != nil {
		return nil, fmt.Errorf("top-url: %w", err)
	}
	return dataRows(raw)
}

// ─── Super Filter ─────────────────────────────────────────────────────────────

// SuperFilter posts a free-form filter. start_date and end_date are
// required; a scalar domain is promoted to a one-element array and group
// defaults to an empty array.
func (c *Client) SuperFilter(ctx context.Context, filter map[string]any) ([]model.Record, error) {
	payload := make(map[string]any, len(filter)+1)
	for k, v := range filter {
		payload[k] = v
	}
	if err := util.Missing("start_date", text(payload["start_date"]), "end_date", text(payload["end_date"])); err != nil {
		return nil, err
	}
	switch d := payload["domain"].(type) {
	case nil, []any, []string:
	case string:
		if d == "" {
			delete(payload, "domain")
		} else {
			payload["domain"] = []string{d}
		}
	default:
		payload["domain"] = []any{d}
	}
	if g, ok := payload["group"]; !ok || g == nil {
		payload["group"] = []string{}
	}

	var raw json.RawMessage
	if err := c.post(ctx, "super-filter", payload, &raw); err != nil {
		return nil, fmt.Errorf("super-filter: %w", err)
	}
	return dataRows(raw)
}

// Domains lists every domain with data in the range, de-duplicated in the
// order the platform returns them.
func (c *Client) Domains(ctx context.Context, start, end string) ([]string, error) {
	rows, err := c.SuperFilter(ctx, map[string]any{
		"start_date": start,
		"end_date":   end,
		"group":      []string{"domain"},
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, text(r["domain"]))
	}
	return util.DedupeIDs(names), nil
}
