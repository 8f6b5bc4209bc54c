// Package transform reshapes labeled daily series before they are charted.
// Every function returns a new slice; inputs are never modified.
package transform

import (
	"fmt"
	"math"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/chart"
)

// Stat selects the statistic computed over a rolling window.
type Stat string

const (
	StatMean Stat = "mean"
	StatSum  Stat = "sum"
	StatMin  Stat = "min"
	StatMax  Stat = "max"
)

// Rolling replaces each point with stat over itself and the window-1 points
// before it. Gaps (NaN) are skipped; a window with no values stays a gap.
func Rolling(points []chart.Point, window int, stat Stat) ([]chart.Point, error) {
	if window < 1 {
		return nil, fmt.Errorf("rolling: window must be >= 1, got %d", window)
	}
	switch stat {
	case StatMean, StatSum, StatMin, StatMax:
	default:
		return nil, fmt.Errorf("rolling: unknown stat %q (use mean, sum, min, max)", stat)
	}

	out := make([]chart.Point, len(points))
	for i, p := range points {
		start := max(i-window+1, 0)
		var n int
		var total float64
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, q := range points[start : i+1] {
			if math.IsNaN(q.Value) {
				continue
			}
			n++
			total += q.Value
			lo = math.Min(lo, q.Value)
			hi = math.Max(hi, q.Value)
		}

		v := math.NaN()
		if n > 0 {
			switch stat {
			case StatMean:
				v = total / float64(n)
			case StatSum:
				v = total
			case StatMin:
				v = lo
			case StatMax:
				v = hi
			}
		}
		out[i] = chart.Point{Label: p.Label, Value: v}
	}
	return out, nil
}

// Cumulative turns a series into its running total. Gaps contribute nothing
// but keep the total so far, so the curve has no holes after its first value.
func Cumulative(points []chart.Point) []chart.Point {
	out := make([]chart.Point, len(points))
	total, seen := 0.0, false
	for i, p := range points {
		if !math.IsNaN(p.Value) {
			total += p.Value
			seen = true
		}
		v := total
		if !seen {
			v = math.NaN()
		}
		out[i] = chart.Point{Label: p.Label, Value: v}
	}
	return out
}
