// Package metrics exposes Prometheus collectors for the spend watcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tick outcomes.
const (
	TickOK      = "ok"
	TickFailed  = "failed"
	TickOverlap = "overlap"
	TickEmpty   = "empty"
)

// Pause outcomes.
const (
	PauseOK     = "paused"
	PauseFailed = "failed"
	PauseDryRun = "dry_run"
)

// WatchMetrics records watcher ticks and pause dispatch outcomes. A nil
// *WatchMetrics is valid and records nothing.
type WatchMetrics struct {
	duration *prometheus.HistogramVec
	ticks    *prometheus.CounterVec
	pauses   *prometheus.CounterVec
	queued   *prometheus.GaugeVec
}

// NewWatchMetrics registers the watcher collectors on reg.
func NewWatchMetrics(reg prometheus.Registerer) *WatchMetrics {
	if reg == nil {
		return &WatchMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arbdash_watch_tick_duration_seconds",
		Help:    "Duration of spend watcher ticks in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"account"})
	ticks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbdash_watch_ticks_total",
		Help: "Spend watcher ticks by outcome.",
	}, []string{"account", "outcome"})
	pauses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbdash_watch_pauses_total",
		Help: "Ad-set pause dispatches by outcome.",
	}, []string{"account", "outcome"})
	queued := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbdash_watch_queued_adsets",
		Help: "Ad sets queued for pause by the most recent tick.",
	}, []string{"account"})
	reg.MustRegister(duration, ticks, pauses, queued)
	return &WatchMetrics{
		duration: duration,
		ticks:    ticks,
		pauses:   pauses,
		queued:   queued,
	}
}

// ObserveTick records a finished tick.
func (m *WatchMetrics) ObserveTick(account, outcome string, d time.Duration) {
	if m == nil || m.ticks == nil {
		return
	}
	account = normalizeLabel(account)
	m.ticks.WithLabelValues(account, normalizeLabel(outcome)).Inc()
	if outcome == TickOK || outcome == TickEmpty {
		m.duration.WithLabelValues(account).Observe(d.Seconds())
	}
}

// IncPause counts one dispatch outcome.
func (m *WatchMetrics) IncPause(account, outcome string) {
	if m == nil || m.pauses == nil {
		return
	}
	m.pauses.WithLabelValues(normalizeLabel(account), normalizeLabel(outcome)).Inc()
}

// SetQueued records how many ad sets the last evaluation queued.
func (m *WatchMetrics) SetQueued(account string, n int) {
	if m == nil || m.queued == nil {
		return
	}
	m.queued.WithLabelValues(normalizeLabel(account)).Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
