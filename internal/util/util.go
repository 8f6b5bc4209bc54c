// Package util provides shared utilities: numeric coercion of loosely typed
// upstream payloads, join-key normalization, date handling, id chunking,
// money conversion and the validation error type.
package util

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Numeric Coercion ─────────────────────────────────────────────────────────

// Coerce converts a foreign-sourced JSON value into a float64.
//
// Accepted shapes:
//
//	12.5                       → 12.5
//	"12.5", "12,5"             → 12.5
//	[3, 4]                     → 3   (first element, recursively)
//	{"value": 7}               → 7
//	{"values": [{"value": 9}]} → 9
//
// Anything absent or unparsable becomes 0.
func Coerce(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case json.Number:
		return parseNumber(string(t))
	case string:
		return parseNumber(t)
	case bool:
		return 0
	case []any:
		if len(t) == 0 {
			return 0
		}
		return Coerce(t[0])
	case map[string]any:
		if inner, ok := t["value"]; ok {
			return Coerce(inner)
		}
		if vals, ok := t["values"].([]any); ok && len(vals) > 0 {
			if first, ok := vals[0].(map[string]any); ok {
				return Coerce(first["value"])
			}
		}
		return 0
	default:
		return 0
	}
}

// CoerceOpt is Coerce with presence tracking: ok is false only when v is
// absent (nil). A present zero, or a present unparsable string, is ok=true.
func CoerceOpt(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return Coerce(v), true
}

// CoercePtr returns a pointer to the coerced value, or nil when v is absent.
func CoercePtr(v any) *float64 {
	f, ok := CoerceOpt(v)
	if !ok {
		return nil
	}
	return &f
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ─── Join Keys ────────────────────────────────────────────────────────────────

// NormalizeKey trims and lower-cases a join key. The empty result never
// matches anything.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DedupeIDs trims ids and removes empties and duplicates while preserving
// first-seen order.
func DedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// SplitList splits a comma-separated flag value into trimmed, non-empty items.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return DedupeIDs(strings.Split(s, ","))
}

// ─── Date Parsing ─────────────────────────────────────────────────────────────

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a time.Time (UTC midnight).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate formats a time.Time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// Today returns the current UTC date as YYYY-MM-DD.
func Today() string {
	return FormatDate(time.Now().UTC())
}

// LastDays returns the range covering the n days that end today (UTC).
func LastDays(n int) (since, until string) {
	now := time.Now().UTC()
	if n < 1 {
		n = 1
	}
	return FormatDate(now.AddDate(0, 0, -(n - 1))), FormatDate(now)
}

// ResolveRange fills empty since/until with today (UTC) and validates both.
func ResolveRange(since, until string) (string, string, error) {
	today := Today()
	if since == "" {
		since = today
	}
	if until == "" {
		until = today
	}
	s, err := ParseDate(since)
	if err != nil {
		return "", "", &ValidationError{Fields: []string{"since"}, Reason: err.Error()}
	}
	u, err := ParseDate(until)
	if err != nil {
		return "", "", &ValidationError{Fields: []string{"until"}, Reason: err.Error()}
	}
	if u.Before(s) {
		return "", "", &ValidationError{Fields: []string{"since", "until"}, Reason: "until is before since"}
	}
	return since, until, nil
}

// ─── Money ────────────────────────────────────────────────────────────────────

// ParseMoney parses a user-entered amount, accepting "," as decimal separator.
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

// ToMinorUnits converts a positive amount to integer cents, rounding half
// away from zero.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, &ValidationError{Fields: []string{"amount"}, Reason: "must be greater than zero"}
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// FromMinorUnits converts upstream cents (string or number) to a float amount.
func FromMinorUnits(v any) float64 {
	f := Coerce(v)
	return decimal.NewFromFloat(f).Div(decimal.NewFromInt(100)).InexactFloat64()
}

// Round2 rounds to two decimal places.
func Round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// ValidationError reports missing or malformed caller input. It is never
// retried.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", strings.Join(e.Fields, ", "), e.Reason)
}

// Missing returns a ValidationError naming every empty required parameter,
// or nil when all are present. Pairs are name, value.
func Missing(pairs ...string) error {
	var names []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			names = append(names, pairs[i])
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &ValidationError{Fields: names, Reason: "required"}
}
