// Package chart draws ASCII terminal charts of report metrics.
//
//   - Bar: one horizontal bar per point; negative values (a losing day or
//     ad set) extend left of a zero line
//   - Line: multi-row line chart with a labeled Y axis, for daily series
//
// Points whose value is NaN are treated as gaps, never as zero.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
)

// Metrics that can be charted from grouped rows.
const (
	MetricProfit  = "profit"
	MetricSpend   = "spend"
	MetricRevenue = "revenue"
	MetricROAS    = "roas"
)

// Point is one labeled value.
type Point struct {
	Label string
	Value float64
}

// FromGrouped extracts metric from each grouped row, labeled by name. A row
// without the metric (no currency rate, no spend) becomes a NaN gap.
func FromGrouped(rows []model.GroupedRow, metric string) ([]Point, error) {
	pick, err := metricFunc(metric)
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		out = append(out, Point{Label: r.Name, Value: pick(r)})
	}
	return out, nil
}

func metricFunc(metric string) (func(model.GroupedRow) float64, error) {
	switch metric {
	case MetricProfit, "":
		return func(r model.GroupedRow) float64 { return opt(r.ProfitBRL) }, nil
	case MetricSpend:
		return func(r model.GroupedRow) float64 { return r.Spend }, nil
	case MetricRevenue:
		return func(r model.GroupedRow) float64 { return r.Revenue }, nil
	case MetricROAS:
		return func(r model.GroupedRow) float64 { return opt(r.ROAS) }, nil
	}
	return nil, fmt.Errorf("unknown chart metric %q (want profit|spend|revenue|roas)", metric)
}

func opt(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width available for the chart.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// MaxBars keeps only the first MaxBars points. If 0, no limit is applied.
	MaxBars int
	// LabelWidth caps the label column; longer labels are cut. Default 24.
	LabelWidth int
}

// Bar renders a horizontal bar chart of points to w, one bar per point.
//
// Output example:
//
//	profit (BRL)
//	Set A     120.5  │██████████
//	Set B     -40.0 ███│
func Bar(w io.Writer, title string, points []Point, opts BarOptions) error {
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = termWidth()
	}
	labelCap := opts.LabelWidth
	if labelCap <= 0 {
		labelCap = 24
	}

	var valid []Point
	for _, p := range points {
		if !math.IsNaN(p.Value) {
			valid = append(valid, p)
		}
	}
	if len(valid) < 1 {
		return fmt.Errorf("chart bar: no values to render")
	}
	if opts.MaxBars > 0 && len(valid) > opts.MaxBars {
		valid = valid[:opts.MaxBars]
	}

	// The zero baseline is always inside the range so bar length reads as
	// magnitude, not distance from the smallest value.
	minVal, maxVal := 0.0, 0.0
	for _, p := range valid {
		minVal = math.Min(minVal, p.Value)
		maxVal = math.Max(maxVal, p.Value)
	}

	labelWidth, valWidth := 0, 0
	for _, p := range valid {
		labelWidth = max(labelWidth, len([]rune(cut(p.Label, labelCap))))
		valWidth = max(valWidth, len(formatFloat(p.Value)))
	}

	barAreaWidth := max(totalWidth-labelWidth-valWidth-4, 4)
	valRange := maxVal - minVal
	if valRange == 0 {
		valRange = 1
	}
	hasNeg := minVal < 0
	zeroPos := 0
	if hasNeg {
		zeroPos = int(math.Round((-minVal / valRange) * float64(barAreaWidth-1)))
	}

	fmt.Fprintln(w, title)
	for _, p := range valid {
		var bar string
		if hasNeg {
			bar = buildBiBar(p.Value, valRange, barAreaWidth, zeroPos)
		} else {
			n := int(math.Round(p.Value / valRange * float64(barAreaWidth)))
			n = min(max(n, 1), barAreaWidth)
			bar = strings.Repeat("█", n)
		}
		label := cut(p.Label, labelCap)
		fmt.Fprintf(w, "%s%s  %*s  %s\n",
			label, strings.Repeat(" ", labelWidth-len([]rune(label))),
			valWidth, formatFloat(p.Value),
			bar,
		)
	}
	return nil
}

// buildBiBar renders a bar that extends left (negative) or right (positive)
// from a zero line at zeroPos.
func buildBiBar(val, valRange float64, width, zeroPos int) string {
	buf := []rune(strings.Repeat(" ", width))
	if zeroPos >= 0 && zeroPos < width {
		buf[zeroPos] = '│'
	}
	span := int(math.Round(math.Abs(val) / valRange * float64(width-1)))
	if val >= 0 {
		for i := zeroPos + 1; i <= zeroPos+span && i < width; i++ {
			buf[i] = '█'
		}
	} else {
		for i := max(zeroPos-span, 0); i < zeroPos; i++ {
			buf[i] = '█'
		}
	}
	return string(buf)
}

// ─── Line ────────────────────────────────────────────────────────────────────

// LineOptions controls multi-row line chart rendering.
type LineOptions struct {
	// Width is the total character width including the Y-axis labels.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// Height is the number of rows in the chart body. Default 10.
	Height int
}

// Line renders points as a line chart, first point on the left.
func Line(w io.Writer, title string, points []Point, opts LineOptions) error {
	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 10
	}

	var vals []float64
	for _, p := range points {
		if !math.IsNaN(p.Value) {
			vals = append(vals, p.Value)
		}
	}
	if len(vals) < 2 {
		return fmt.Errorf("chart line: need at least 2 values (got %d)", len(vals))
	}
	minVal, maxVal := vals[0], vals[0]
	for _, v := range vals[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}

	ticks := yTicks(minVal, maxVal, height)
	yLabelWidth := 0
	for _, t := range ticks {
		yLabelWidth = max(yLabelWidth, len(formatFloat(t)))
	}
	plotWidth := max(width-yLabelWidth-2, 10)
	if plotWidth > len(points) {
		plotWidth = len(points)
	}

	cols := sampleCols(points, plotWidth)
	grid := buildGrid(cols, minVal, maxVal, height)

	fmt.Fprintf(w, "%s  (%s to %s)\n", title, points[0].Label, points[len(points)-1].Label)
	for row := 0; row < height; row++ {
		label := ""
		for _, t := range ticks {
			if math.Abs(rowForValue(t, minVal, maxVal, height)-float64(row)) < 0.5 {
				label = formatFloat(t)
				break
			}
		}
		axis := "┤"
		if label == "" {
			axis = " "
		}
		fmt.Fprintf(w, "%*s%s%s\n", yLabelWidth, label, axis, string(grid[row]))
	}
	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", yLabelWidth), strings.Repeat("─", plotWidth))
	return nil
}

// sampleCols reduces points to n columns, each the mean of its bucket or
// NaN when the whole bucket is a gap.
func sampleCols(points []Point, n int) []float64 {
	total := len(points)
	cols := make([]float64, n)
	for col := 0; col < n; col++ {
		lo := col * total / n
		hi := min((col+1)*total/n, total)
		sum, count := 0.0, 0
		for i := lo; i < hi; i++ {
			if !math.IsNaN(points[i].Value) {
				sum += points[i].Value
				count++
			}
		}
		cols[col] = math.NaN()
		if count > 0 {
			cols[col] = sum / float64(count)
		}
	}
	return cols
}

// rowForValue returns the row (0 = top = max) for v.
func rowForValue(v, minVal, maxVal float64, height int) float64 {
	if maxVal == minVal {
		return float64(height) / 2
	}
	return (maxVal - v) / (maxVal - minVal) * float64(height-1)
}

// buildGrid marks each column's row with a point and joins consecutive
// columns with vertical strokes.
func buildGrid(cols []float64, minVal, maxVal float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", len(cols)))
	}
	prev := -1
	for col, v := range cols {
		if math.IsNaN(v) {
			prev = -1
			continue
		}
		r := int(math.Round(rowForValue(v, minVal, maxVal, height)))
		r = min(max(r, 0), height-1)
		grid[r][col] = '•'
		if prev >= 0 && prev != r {
			lo, hi := min(prev, r), max(prev, r)
			for fill := lo + 1; fill < hi; fill++ {
				grid[fill][col] = '│'
			}
		}
		prev = r
	}
	return grid
}

// yTicks returns evenly spaced tick values for the Y axis.
func yTicks(minVal, maxVal float64, height int) []float64 {
	if maxVal == minVal {
		return []float64{minVal}
	}
	n := 4
	if height <= 6 {
		n = 3
	}
	ticks := make([]float64, n)
	for i := range ticks {
		ticks[i] = minVal + float64(i)*(maxVal-minVal)/float64(n-1)
	}
	return ticks
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// formatFloat formats money-scale values: two decimals, compact K/M above a
// thousand.
func formatFloat(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs == 0:
		return "0"
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e4:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	default:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}

func cut(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
