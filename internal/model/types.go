// Package model defines the canonical data types used throughout arbdash.
// These types are the single source of truth for ads-platform and
// analytics-platform rows, the joined and grouped report views, watch rules,
// and the result envelope that every command returns.
package model

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// ─── Source Rows ──────────────────────────────────────────────────────────────

// PerformanceRow is one ad on one day as reported by the ads platform.
// Results is nil when the platform reported no result count at all.
type PerformanceRow struct {
	Date                 string   `json:"date"`
	CampaignName         string   `json:"campaign_name"`
	AdsetID              string   `json:"adset_id"`
	AdsetName            string   `json:"adset_name"`
	AdID                 string   `json:"ad_id"`
	AdName               string   `json:"ad_name"`
	Objective            string   `json:"objective"`
	Spend                float64  `json:"spend"`
	CostPerResult        float64  `json:"cost_per_result"`
	Results              *float64 `json:"results"`
	CPM                  float64  `json:"cpm,omitempty"`
	Status               string   `json:"status,omitempty"`
	EffectiveStatus      string   `json:"effective_status,omitempty"`
	AdsetStatus          string   `json:"adset_status,omitempty"`
	AdsetEffectiveStatus string   `json:"adset_effective_status,omitempty"`
	DailyBudget          *float64 `json:"daily_budget"`
	LifetimeBudget       *float64 `json:"lifetime_budget"`
}

// ResultCount returns Results, treating a missing count as zero.
func (p PerformanceRow) ResultCount() float64 {
	if p.Results == nil {
		return 0
	}
	return *p.Results
}

// AnalyticsRow is one custom-value bucket from the analytics platform.
// Pointer fields are nil when the upstream payload omitted them, which the
// revenue precedence rules depend on.
type AnalyticsRow struct {
	Date          string   `json:"date,omitempty"`
	Domain        string   `json:"domain"`
	CustomKey     string   `json:"custom_key"`
	CustomValue   string   `json:"custom_value"`
	Impressions   *float64 `json:"impressions"`
	Clicks        float64  `json:"clicks"`
	Revenue       *float64 `json:"revenue"`
	RevenueClient *float64 `json:"revenue_client"`
	ECPM          *float64 `json:"ecpm"`
	ECPMClient    *float64 `json:"ecpm_client"`
}

// ─── Join Output ──────────────────────────────────────────────────────────────

// JoinSource records which lookup produced a joined row's analytics values.
type JoinSource int

const (
	Unmatched JoinSource = iota
	AdLevel
	AdsetLevelFallback
)

// DataLevel returns the wire label for the source: "ad", "adset" or "".
func (s JoinSource) DataLevel() string {
	switch s {
	case AdLevel:
		return "ad"
	case AdsetLevelFallback:
		return "adset"
	default:
		return ""
	}
}

func (s JoinSource) String() string {
	if s == Unmatched {
		return "unmatched"
	}
	return s.DataLevel()
}

// MarshalJSON encodes the source as its data level label.
func (s JoinSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.DataLevel())
}

// UnmarshalJSON accepts the data level label.
func (s *JoinSource) UnmarshalJSON(b []byte) error {
	var label string
	if err := json.Unmarshal(b, &label); err != nil {
		return err
	}
	switch label {
	case "ad":
		*s = AdLevel
	case "adset":
		*s = AdsetLevelFallback
	default:
		*s = Unmatched
	}
	return nil
}

// JoinedRow is a PerformanceRow with analytics values attached.
type JoinedRow struct {
	PerformanceRow

	Source             JoinSource `json:"data_level"`
	JoinKey            string     `json:"join_key,omitempty"`
	Matched            bool       `json:"joinads_matched"`
	RevenueClientValue float64    `json:"revenue_client_value"`
	RevenueClientBRL   *float64   `json:"revenue_client_brl_value"`
	ROAS               *float64   `json:"roas"`
	ProfitBRL          *float64   `json:"profit_brl"`
	ImpressionsJoinads *float64   `json:"impressions_joinads"`
	ClicksJoinads      *float64   `json:"clicks_joinads"`
}

// GroupedRow is one (name, objective) rollup over joined rows.
type GroupedRow struct {
	Key         string   `json:"group_key"`
	Name        string   `json:"name"`
	Objective   string   `json:"objective"`
	Rows        int      `json:"rows"`
	AdsetIDs    []string `json:"adset_ids"`
	Spend       float64  `json:"spend"`
	Results     float64  `json:"results"`
	CPA         *float64 `json:"cpa"`
	Revenue     float64  `json:"revenue_client_value"`
	RevenueBRL  *float64 `json:"revenue_client_brl_value"`
	ROAS        *float64 `json:"roas"`
	ProfitBRL   *float64 `json:"profit_brl"`
	Impressions float64  `json:"impressions_joinads"`
	Clicks      float64  `json:"clicks_joinads"`
	Matched     bool     `json:"joinads_matched"`
	Fallback    bool     `json:"has_adset_fallback"`
}

// ─── Watch Rules ──────────────────────────────────────────────────────────────

// WatchRule binds a named ad-set group to spend thresholds. A nil threshold
// is not checked.
type WatchRule struct {
	GroupKey  string   `json:"group_key"`
	GroupName string   `json:"name"`
	AdsetIDs  []string `json:"adset_ids"`
	MaxCPA    *float64 `json:"cpa"`
	MaxSpend  *float64 `json:"spend"`
}

// RuleSet is the persisted rule map keyed by group key.
type RuleSet map[string]WatchRule

type ruleWire struct {
	Name     string   `json:"name"`
	AdsetIDs []string `json:"adset_ids"`
	CPA      any      `json:"cpa"`
	Spend    any      `json:"spend"`
}

// MarshalJSON encodes the set as {group_key: {name, adset_ids, cpa, spend}}.
func (rs RuleSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]ruleWire, len(rs))
	for key, r := range rs {
		w := ruleWire{Name: r.GroupName, AdsetIDs: r.AdsetIDs}
		if w.AdsetIDs == nil {
			w.AdsetIDs = []string{}
		}
		if r.MaxCPA != nil {
			w.CPA = *r.MaxCPA
		}
		if r.MaxSpend != nil {
			w.Spend = *r.MaxSpend
		}
		out[key] = w
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire map. Threshold values written by older
// clients as strings ("12,5") are coerced.
func (rs *RuleSet) UnmarshalJSON(b []byte) error {
	var in map[string]ruleWire
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	set := make(RuleSet, len(in))
	for key, w := range in {
		set[key] = WatchRule{
			GroupKey:  key,
			GroupName: w.Name,
			AdsetIDs:  util.DedupeIDs(w.AdsetIDs),
			MaxCPA:    thresholdPtr(w.CPA),
			MaxSpend:  thresholdPtr(w.Spend),
		}
	}
	*rs = set
	return nil
}

func thresholdPtr(v any) *float64 {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return util.CoercePtr(v)
}

// Sorted returns the rules ordered by group key.
func (rs RuleSet) Sorted() []WatchRule {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]WatchRule, 0, len(keys))
	for _, k := range keys {
		r := rs[k]
		r.GroupKey = k
		out = append(out, r)
	}
	return out
}

// AdsetIDs returns the de-duplicated union of every rule's ad-set ids in
// group key order.
func (rs RuleSet) AdsetIDs() []string {
	var ids []string
	for _, r := range rs.Sorted() {
		ids = append(ids, r.AdsetIDs...)
	}
	return util.DedupeIDs(ids)
}

// RuleDocument is the stored value under rules:<account_id>.
type RuleDocument struct {
	AccountID string    `json:"account_id,omitempty"`
	Rules     RuleSet   `json:"rules"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ─── Watcher Inputs and Outputs ───────────────────────────────────────────────

// AdsetMetrics is the spend and result total for one ad set over a range.
type AdsetMetrics struct {
	AdsetID string  `json:"adset_id"`
	Spend   float64 `json:"spend"`
	Results float64 `json:"results"`
}

// ObjectStatus is the configured and effective delivery status of one ads
// platform object.
type ObjectStatus struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
}

// IsActive reports whether the object is currently delivering.
func (s ObjectStatus) IsActive() bool {
	st := s.EffectiveStatus
	if st == "" {
		st = s.Status
	}
	return strings.EqualFold(st, "ACTIVE")
}

// GroupMetrics is computed per evaluation and never persisted. CPA is nil
// when TotalResults is zero.
type GroupMetrics struct {
	GroupKey     string   `json:"group_key"`
	TotalSpend   float64  `json:"total_spend"`
	TotalResults float64  `json:"total_results"`
	CPA          *float64 `json:"cpa"`
	RevenueUSD   float64  `json:"revenue_usd"`
	AllActive    bool     `json:"all_active"`
}

// Verdict values for RuleDecision.
const (
	VerdictOK       = "ok"
	VerdictPause    = "pause"
	VerdictInactive = "skip_not_all_active"
	VerdictInert    = "inert"
)

// RuleDecision records how one rule was evaluated in a tick.
type RuleDecision struct {
	GroupKey     string       `json:"group_key"`
	GroupName    string       `json:"name"`
	Verdict      string       `json:"verdict"`
	ExceedsSpend bool         `json:"exceeds_spend"`
	ExceedsCPA   bool         `json:"exceeds_cpa"`
	Metrics      GroupMetrics `json:"metrics"`
}

// SkippedAdset explains why an ad set queued for pause was not paused.
type SkippedAdset struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WatchReport summarises one watcher tick.
type WatchReport struct {
	RunID      string         `json:"run_id"`
	AccountID  string         `json:"account_id"`
	Since      string         `json:"since"`
	Until      string         `json:"until"`
	Rules      int            `json:"rules"`
	Decisions  []RuleDecision `json:"decisions,omitempty"`
	Paused     []string       `json:"paused"`
	Skipped    []SkippedAdset `json:"skipped"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMs int64          `json:"duration_ms"`
}

// ActionResult is the outcome of a single ads-platform write.
type ActionResult struct {
	Action string         `json:"action"`
	ID     string         `json:"id"`
	OK     bool           `json:"ok"`
	NewID  string         `json:"new_id,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// SavedView is a named set of report filters. Days, when set, replaces a
// fixed range with the last N days at run time.
type SavedView struct {
	Name       string    `json:"name" validate:"required"`
	AccountID  string    `json:"account_id,omitempty"`
	Domain     string    `json:"domain" validate:"required"`
	Group      string    `json:"group" validate:"omitempty,oneof=ad adset none date"`
	ReportType string    `json:"report_type,omitempty"`
	AdKey      string    `json:"ad_key,omitempty"`
	AdsetKey   string    `json:"adset_key,omitempty"`
	Days       int       `json:"days,omitempty" validate:"gte=0,lte=366"`
	Since      string    `json:"since,omitempty"`
	Until      string    `json:"until,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MetricSummary describes one metric across the days of a report.
type MetricSummary struct {
	Metric    string  `json:"metric"`
	Days      int     `json:"days"`
	Missing   int     `json:"missing"`
	Total     float64 `json:"total"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	Min       float64 `json:"min"`
	Median    float64 `json:"median"`
	Max       float64 `json:"max"`
	BestDay   string  `json:"best_day,omitempty"`
	WorstDay  string  `json:"worst_day,omitempty"`
	First     float64 `json:"first"`
	Last      float64 `json:"last"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Trend     *Trend  `json:"trend,omitempty"`
}

// Trend is a fitted linear slope over daily values.
type Trend struct {
	Method      string  `json:"method"`
	SlopePerDay float64 `json:"slope_per_day"`
	Intercept   float64 `json:"intercept"`
	R2          float64 `json:"r2"`
	Direction   string  `json:"direction"`
}

// Record is an untyped upstream row rendered as-is.
type Record map[string]any

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindPerformance = "performance"
	KindAnalytics   = "analytics"
	KindJoined      = "joined"
	KindGrouped     = "grouped"
	KindRules       = "rules"
	KindWatchReport = "watch_report"
	KindStatuses    = "statuses"
	KindAction      = "action"
	KindRecords     = "records"
	KindSummary     = "summary"
)
