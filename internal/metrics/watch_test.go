package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWatchMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWatchMetrics(reg)

	m.ObserveTick("act_1", TickOK, 150*time.Millisecond)
	m.ObserveTick("act_1", TickFailed, 0)
	m.IncPause("act_1", PauseOK)
	m.IncPause("act_1", PauseOK)
	m.IncPause("", PauseFailed)
	m.SetQueued("act_1", 3)

	if got := testutil.ToFloat64(m.ticks.WithLabelValues("act_1", TickOK)); got != 1 {
		t.Fatalf("expected 1 ok tick, got %v", got)
	}
	if got := testutil.ToFloat64(m.pauses.WithLabelValues("act_1", PauseOK)); got != 2 {
		t.Fatalf("expected 2 pauses, got %v", got)
	}
	if got := testutil.ToFloat64(m.pauses.WithLabelValues("unknown", PauseFailed)); got != 1 {
		t.Fatalf("expected unknown label for empty account, got %v", got)
	}
	if got := testutil.ToFloat64(m.queued.WithLabelValues("act_1")); got != 3 {
		t.Fatalf("expected queued gauge 3, got %v", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *WatchMetrics
	m.ObserveTick("a", TickOK, time.Second)
	m.IncPause("a", PauseOK)
	m.SetQueued("a", 1)

	empty := NewWatchMetrics(nil)
	empty.ObserveTick("a", TickOK, time.Second)
	empty.IncPause("a", PauseFailed)
}
