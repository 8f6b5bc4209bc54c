// Package analyze summarizes a report metric across days: descriptive
// statistics plus a fitted trend. All functions are pure; no I/O.
package analyze

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/chart"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
)

// Trend fitting methods.
const (
	MethodOLS      = "ols"
	MethodTheilSen = "theil-sen"
)

// flatShare is the fitted change over the window, relative to the observed
// range, below which a trend reads as flat.
const flatShare = 0.05

// ─── Summary ──────────────────────────────────────────────────────────────────

// Daily rolls rows up by date and summarizes metric over the days. Rows are
// expected to come from join.GroupByDate, so Name holds YYYY-MM-DD.
func Daily(rows []model.GroupedRow, metric, method string) (model.MetricSummary, error) {
	points, err := chart.FromGrouped(rows, metric)
	if err != nil {
		return model.MetricSummary{}, err
	}
	if metric == "" {
		metric = chart.MetricProfit
	}
	return Summarize(metric, points, method)
}

// Summarize computes statistics over points in day order. NaN values are
// gaps: counted in Missing, excluded from everything else. A trend is
// attached when at least two days carry a value.
func Summarize(metric string, points []chart.Point, method string) (model.MetricSummary, error) {
	s := model.MetricSummary{Metric: metric, Days: len(points)}

	var present []chart.Point
	for _, p := range points {
		if math.IsNaN(p.Value) {
			s.Missing++
			continue
		}
		present = append(present, p)
	}
	if len(present) == 0 {
		return s, nil
	}

	vals := make([]float64, len(present))
	best, worst := 0, 0
	for i, p := range present {
		vals[i] = p.Value
		s.Total += p.Value
		if p.Value > present[best].Value {
			best = i
		}
		if p.Value < present[worst].Value {
			worst = i
		}
	}
	s.BestDay = present[best].Label
	s.WorstDay = present[worst].Label
	s.Max = present[best].Value
	s.Min = present[worst].Value
	s.Mean = s.Total / float64(len(vals))
	s.Std = stddev(vals, s.Mean)

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	s.Median = median(sorted)

	s.First = vals[0]
	s.Last = vals[len(vals)-1]
	s.Change = s.Last - s.First
	if s.First != 0 {
		s.ChangePct = s.Change / math.Abs(s.First) * 100
	}

	if len(present) >= 2 {
		tr, err := fit(present, method)
		if err != nil {
			return s, err
		}
		s.Trend = &tr
	}
	return s, nil
}

// ─── Trend ────────────────────────────────────────────────────────────────────

type xy struct{ x, y float64 }

// fit regresses value on days since the first point. Labels that do not
// parse as dates fall back to their position.
func fit(points []chart.Point, method string) (model.Trend, error) {
	tr := model.Trend{Method: method}
	if tr.Method == "" {
		tr.Method = MethodOLS
	}

	pts := make([]xy, len(points))
	t0, dated := time.Time{}, true
	for i, p := range points {
		d, err := time.Parse(time.DateOnly, p.Label)
		if err != nil {
			dated = false
			break
		}
		if i == 0 {
			t0 = d
		}
		pts[i] = xy{d.Sub(t0).Hours() / 24, p.Value}
	}
	if !dated {
		for i, p := range points {
			pts[i] = xy{float64(i), p.Value}
		}
	}

	switch tr.Method {
	case MethodOLS:
		tr.SlopePerDay, tr.Intercept = ols(pts)
	case MethodTheilSen:
		tr.SlopePerDay = theilSen(pts)
		var xm, ym float64
		for _, p := range pts {
			xm += p.x
			ym += p.y
		}
		n := float64(len(pts))
		tr.Intercept = ym/n - tr.SlopePerDay*xm/n
	default:
		return tr, fmt.Errorf("unknown trend method %q (want %s|%s)", method, MethodOLS, MethodTheilSen)
	}
	tr.R2 = r2(pts, tr.SlopePerDay, tr.Intercept)
	tr.Direction = direction(pts, tr.SlopePerDay)
	return tr, nil
}

func direction(pts []xy, slope float64) string {
	lo, hi := pts[0].y, pts[0].y
	for _, p := range pts {
		lo = math.Min(lo, p.y)
		hi = math.Max(hi, p.y)
	}
	span := pts[len(pts)-1].x - pts[0].x
	if hi == lo || math.Abs(slope*span) < flatShare*(hi-lo) {
		return "flat"
	}
	if slope > 0 {
		return "up"
	}
	return "down"
}

func ols(pts []xy) (slope, intercept float64) {
	n := float64(len(pts))
	var sx, sy, sxy, sxx float64
	for _, p := range pts {
		sx += p.x
		sy += p.y
		sxy += p.x * p.y
		sxx += p.x * p.x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	return slope, (sy - slope*sx) / n
}

// theilSen is the median of pairwise slopes.
func theilSen(pts []xy) float64 {
	var slopes []float64
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			if dx := pts[j].x - pts[i].x; dx != 0 {
				slopes = append(slopes, (pts[j].y-pts[i].y)/dx)
			}
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return median(slopes)
}

func r2(pts []xy, slope, intercept float64) float64 {
	var mean float64
	for _, p := range pts {
		mean += p.y
	}
	mean /= float64(len(pts))

	var tot, res float64
	for _, p := range pts {
		d, e := p.y-mean, p.y-(slope*p.x+intercept)
		tot += d * d
		res += e * e
	}
	if tot == 0 {
		return 1
	}
	return 1 - res/tot
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func stddev(vals []float64, mean float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
