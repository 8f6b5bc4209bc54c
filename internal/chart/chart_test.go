package chart_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/chart"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
)

func fp(v float64) *float64 { return &v }

func pts(pairs ...any) []chart.Point {
	var out []chart.Point
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, chart.Point{Label: pairs[i].(string), Value: pairs[i+1].(float64)})
	}
	return out
}

// ─── FromGrouped ──────────────────────────────────────────────────────────────

func TestFromGroupedProfitGaps(t *testing.T) {
	rows := []model.GroupedRow{
		{Name: "A", ProfitBRL: fp(10)},
		{Name: "B"},
	}
	got, err := chart.FromGrouped(rows, chart.MetricProfit)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Value != 10 || got[0].Label != "A" {
		t.Errorf("first point = %+v", got[0])
	}
	if !math.IsNaN(got[1].Value) {
		t.Errorf("row without profit should be NaN, got %v", got[1].Value)
	}
}

func TestFromGroupedUnknownMetric(t *testing.T) {
	if _, err := chart.FromGrouped(nil, "clicks"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

// ─── Bar ─────────────────────────────────────────────────────────────────────

func TestBarPositive(t *testing.T) {
	var buf bytes.Buffer
	err := chart.Bar(&buf, "spend", pts("Set A", 10.0, "Set B", 20.0), chart.BarOptions{Width: 40})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("want title + 2 bars, got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "spend" {
		t.Errorf("title = %q", lines[0])
	}
	a := strings.Count(lines[1], "█")
	b := strings.Count(lines[2], "█")
	if a == 0 || b <= a {
		t.Errorf("bar lengths: a=%d b=%d, want 0 < a < b", a, b)
	}
}

func TestBarNegativeUsesZeroLine(t *testing.T) {
	var buf bytes.Buffer
	err := chart.Bar(&buf, "profit", pts("win", 50.0, "loss", -50.0), chart.BarOptions{Width: 50})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "│") {
		t.Errorf("expected zero line in:\n%s", out)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	loss := lines[2]
	zero := strings.Index(loss, "│")
	block := strings.Index(loss, "█")
	if block < 0 || block > zero {
		t.Errorf("negative bar should sit left of the zero line: %q", loss)
	}
}

func TestBarSkipsNaNAndCaps(t *testing.T) {
	var buf bytes.Buffer
	points := pts("a", 1.0, "b", math.NaN(), "c", 2.0, "d", 3.0)
	if err := chart.Bar(&buf, "t", points, chart.BarOptions{Width: 40, MaxBars: 2}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "b ") || strings.Contains(out, "d ") {
		t.Errorf("NaN point or capped point rendered:\n%s", out)
	}
}

func TestBarAllNaN(t *testing.T) {
	var buf bytes.Buffer
	if err := chart.Bar(&buf, "t", pts("a", math.NaN()), chart.BarOptions{}); err == nil {
		t.Error("expected error when nothing can be drawn")
	}
}

func TestBarCutsLongLabels(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("x", 40)
	if err := chart.Bar(&buf, "t", pts(long, 1.0), chart.BarOptions{Width: 60, LabelWidth: 10}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), long) {
		t.Error("label was not cut")
	}
}

// ─── Line ────────────────────────────────────────────────────────────────────

func TestLineRendersAxisAndRange(t *testing.T) {
	var buf bytes.Buffer
	points := pts("2024-05-01", 1.0, "2024-05-02", 5.0, "2024-05-03", -2.0, "2024-05-04", 3.0)
	if err := chart.Line(&buf, "profit", points, chart.LineOptions{Width: 40, Height: 6}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "(2024-05-01 to 2024-05-04)") {
		t.Errorf("missing date range header:\n%s", out)
	}
	if strings.Count(out, "•") != 4 {
		t.Errorf("want one marker per point:\n%s", out)
	}
	if !strings.Contains(out, "└") {
		t.Errorf("missing bottom axis:\n%s", out)
	}
}

func TestLineNeedsTwoValues(t *testing.T) {
	var buf bytes.Buffer
	if err := chart.Line(&buf, "t", pts("a", 1.0), chart.LineOptions{}); err == nil {
		t.Error("expected error for a single point")
	}
}
