// Package dashboard holds the report view as one explicit State value.
// Every change goes through Apply, which is pure: it returns a new State and
// never mutates its input. Fetches are Commands that run against the
// platforms and return a Patch; Refresh runs them concurrently and applies
// all of their patches in one step.
package dashboard

import (
	"maps"
	"slices"
	"time"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/join"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
)

// Grouping modes for the report view.
const (
	GroupNone  = "none"
	GroupAd    = "ad"
	GroupAdset = "adset"
)

// Data sources tracked in Loading and Errors.
const (
	SourcePerformance    = "performance"
	SourceAdAnalytics    = "analytics_ad"
	SourceAdsetAnalytics = "analytics_adset"
)

// Filters selects what the report shows.
type Filters struct {
	AccountID string
	Since     string
	Until     string
	Domain    string
	Group     string
	Rate      float64 // USD to BRL; 0 means unknown
}

// State is the whole report view. Joined, Grouped and Totals are derived
// from the raw datasets and Filters and are recomputed by Apply.
type State struct {
	Filters        Filters
	Performance    []model.PerformanceRow
	AdAnalytics    []model.AnalyticsRow
	AdsetAnalytics []model.AnalyticsRow

	Joined  []model.JoinedRow
	Grouped []model.GroupedRow
	Totals  model.GroupedRow

	Loading     map[string]bool
	Errors      map[string]string
	CacheHits   map[string]bool
	LastRefresh time.Time
	Version     int
}

// New returns the empty state for filters.
func New(f Filters) State {
	if f.Group == "" {
		f.Group = GroupAdset
	}
	return State{
		Filters:   f,
		Loading:   map[string]bool{},
		Errors:    map[string]string{},
		CacheHits: map[string]bool{},
	}
}

// Patch is one state transition.
type Patch interface {
	apply(s *State) (derive bool)
}

// Apply returns s with every patch applied in order. The derived views are
// recomputed once at the end if any patch touched their inputs.
func Apply(s State, patches ...Patch) State {
	next := s
	next.Loading = maps.Clone(s.Loading)
	next.Errors = maps.Clone(s.Errors)
	next.CacheHits = maps.Clone(s.CacheHits)
	if next.Loading == nil {
		next.Loading = map[string]bool{}
	}
	if next.Errors == nil {
		next.Errors = map[string]string{}
	}
	if next.CacheHits == nil {
		next.CacheHits = map[string]bool{}
	}

	derive := false
	for _, p := range patches {
		if p == nil {
			continue
		}
		if p.apply(&next) {
			derive = true
		}
	}
	if derive {
		next.derive()
	}
	next.Version = s.Version + 1
	return next
}

func (s *State) derive() {
	adIdx := join.IndexAnalytics(s.AdAnalytics)
	adsetIdx := join.IndexAnalytics(s.AdsetAnalytics)
	s.Joined = join.Join(s.Performance, adIdx, adsetIdx, s.Filters.Rate)
	s.Totals = join.Totals(s.Joined)
	switch s.Filters.Group {
	case GroupAd:
		s.Grouped = join.GroupByAd(s.Joined)
	case GroupNone:
		s.Grouped = nil
	default:
		s.Grouped = join.GroupByAdset(s.Joined)
	}
}

// Busy reports whether any source is still loading.
func (s State) Busy() bool {
	for _, v := range s.Loading {
		if v {
			return true
		}
	}
	return false
}

// ErrorList returns the recorded errors as "source: message" in source order.
func (s State) ErrorList() []string {
	keys := slices.Sorted(maps.Keys(s.Errors))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+": "+s.Errors[k])
	}
	return out
}

// ─── Patches ──────────────────────────────────────────────────────────────────

// SetFilters replaces the filters. Changing Rate or Group re-derives the
// views without refetching.
type SetFilters struct{ Filters Filters }

func (p SetFilters) apply(s *State) bool {
	if p.Filters.Group == "" {
		p.Filters.Group = s.Filters.Group
	}
	s.Filters = p.Filters
	return true
}

// Started marks sources as loading and clears their previous errors.
type Started struct{ Sources []string }

func (p Started) apply(s *State) bool {
	for _, src := range p.Sources {
		s.Loading[src] = true
		delete(s.Errors, src)
	}
	return false
}

// PerformanceLoaded replaces the ads-platform rows.
type PerformanceLoaded struct {
	Rows     []model.PerformanceRow
	CacheHit bool
}

func (p PerformanceLoaded) apply(s *State) bool {
	s.Performance = p.Rows
	s.Loading[SourcePerformance] = false
	s.CacheHits[SourcePerformance] = p.CacheHit
	return true
}

// AnalyticsLoaded replaces the analytics rows for one level.
type AnalyticsLoaded struct {
	Source   string // SourceAdAnalytics or SourceAdsetAnalytics
	Rows     []model.AnalyticsRow
	CacheHit bool
}

func (p AnalyticsLoaded) apply(s *State) bool {
	if p.Source == SourceAdsetAnalytics {
		s.AdsetAnalytics = p.Rows
	} else {
		p.Source = SourceAdAnalytics
		s.AdAnalytics = p.Rows
	}
	s.Loading[p.Source] = false
	s.CacheHits[p.Source] = p.CacheHit
	return true
}

// Failed records a fetch error. The previous data for the source is kept.
type Failed struct {
	Source string
	Err    error
}

func (p Failed) apply(s *State) bool {
	s.Loading[p.Source] = false
	if p.Err != nil {
		s.Errors[p.Source] = p.Err.Error()
	}
	return false
}

// Refreshed stamps the refresh time.
type Refreshed struct{ At time.Time }

func (p Refreshed) apply(s *State) bool {
	s.LastRefresh = p.At
	return false
}
