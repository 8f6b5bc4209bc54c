package util_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

func TestCoerce(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
	}{
		{"nil", nil, 0},
		{"float", 12.5, 12.5},
		{"int", 3, 3},
		{"dot string", "1.5", 1.5},
		{"comma string", "1,5", 1.5},
		{"padded string", "  42 ", 42},
		{"garbage", "abc", 0},
		{"empty string", "", 0},
		{"array first", []any{3.0, 4.0}, 3},
		{"nested array", []any{[]any{"2,25"}}, 2.25},
		{"empty array", []any{}, 0},
		{"value wrapper", map[string]any{"value": 7.0}, 7},
		{"values wrapper", map[string]any{"values": []any{map[string]any{"value": 9.0}}}, 9},
		{"values empty", map[string]any{"values": []any{}}, 0},
		{"unrelated object", map[string]any{"x": 1.0}, 0},
		{"json number", json.Number("8.5"), 8.5},
		{"bool", true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := util.Coerce(tc.in); got != tc.want {
				t.Errorf("Coerce(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestCoerceOptPresence(t *testing.T) {
	if _, ok := util.CoerceOpt(nil); ok {
		t.Error("nil should be absent")
	}
	v, ok := util.CoerceOpt(0.0)
	if !ok || v != 0 {
		t.Errorf("zero should be present, got %v %v", v, ok)
	}
	if p := util.CoercePtr(nil); p != nil {
		t.Errorf("CoercePtr(nil) = %v, want nil", *p)
	}
	if p := util.CoercePtr("3,5"); p == nil || *p != 3.5 {
		t.Errorf("CoercePtr(\"3,5\") wrong: %v", p)
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := util.NormalizeKey("  Promo X \n"); got != "promo x" {
		t.Errorf("NormalizeKey = %q", got)
	}
	if got := util.NormalizeKey("   "); got != "" {
		t.Errorf("blank key should collapse to empty, got %q", got)
	}
}

func TestDedupeAndChunk(t *testing.T) {
	ids := util.DedupeIDs([]string{" 1", "2", "", "1", "3"})
	if len(ids) != 3 || ids[0] != "1" || ids[2] != "3" {
		t.Fatalf("DedupeIDs = %v", ids)
	}
	many := make([]string, 120)
	for i := range many {
		many[i] = "x"
	}
	chunks := util.Chunk(many, 50)
	if len(chunks) != 3 || len(chunks[2]) != 20 {
		t.Errorf("Chunk sizes wrong: %d chunks", len(chunks))
	}
	if util.Chunk(nil, 50) != nil {
		t.Error("Chunk(nil) should be nil")
	}
}

func TestResolveRange(t *testing.T) {
	s, u, err := util.ResolveRange("", "")
	if err != nil || s != util.Today() || u != util.Today() {
		t.Fatalf("default range = %s..%s, %v", s, u, err)
	}
	_, _, err = util.ResolveRange("2026-02-10", "2026-02-01")
	var ve *util.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, _, err := util.ResolveRange("10/02/2026", ""); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestLastDays(t *testing.T) {
	s, u := util.LastDays(7)
	if u != util.Today() {
		t.Errorf("until = %s, want today", u)
	}
	since, _ := util.ParseDate(s)
	until, _ := util.ParseDate(u)
	if d := until.Sub(since).Hours() / 24; d != 6 {
		t.Errorf("window spans %v days, want 6 between ends", d)
	}
	if s, u := util.LastDays(0); s != u {
		t.Errorf("LastDays(0) = %s..%s, want a single day", s, u)
	}
}

func TestMoney(t *testing.T) {
	d, err := util.ParseMoney("12,345")
	if err != nil {
		t.Fatalf("ParseMoney: %v", err)
	}
	cents, err := util.ToMinorUnits(d)
	if err != nil || cents != 1235 {
		t.Errorf("ToMinorUnits = %d, %v; want 1235", cents, err)
	}
	zero, _ := util.ParseMoney("0")
	if _, err := util.ToMinorUnits(zero); err == nil {
		t.Error("zero budget should be rejected")
	}
	if _, err := util.ParseMoney("abc"); err == nil {
		t.Error("expected parse error")
	}
	if got := util.FromMinorUnits("2550"); got != 25.5 {
		t.Errorf("FromMinorUnits = %v", got)
	}
}

func TestMissing(t *testing.T) {
	err := util.Missing("start_date", "2026-01-01", "domain", "", "custom_key", " ")
	var ve *util.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Fields) != 2 || ve.Fields[0] != "domain" || ve.Fields[1] != "custom_key" {
		t.Errorf("fields = %v", ve.Fields)
	}
	if util.Missing("a", "1") != nil {
		t.Error("expected nil when nothing is missing")
	}
}
