// Package pipeline reads and writes report rows as JSONL, one JSON object
// per line. It lets a join run offline: export performance and analytics
// rows once, then re-join them with `arbdash import` without touching either
// platform.
//
// Readers accept both the shapes this tool writes and the raw upstream
// shapes (Graph API insights with date_start, key-value records with string
// numbers), so numeric fields go through util coercion.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/joinads"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// maxLine bounds a single JSONL record.
const maxLine = 1024 * 1024

// readRecords calls fn for every non-blank, non-comment line of r.
func readRecords(r io.Reader, fn func(line int, rec model.Record) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLine), maxLine)

	n, lineNum := 0, 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return n, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if err := fn(lineNum, rec); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNum, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("reading input: %w", err)
	}
	return n, nil
}

// ReadPerformance reads performance rows. A date, when present, must be
// YYYY-MM-DD; "date_start" is accepted in place of "date".
func ReadPerformance(r io.Reader) ([]model.PerformanceRow, error) {
	var rows []model.PerformanceRow
	_, err := readRecords(r, func(_ int, rec model.Record) error {
		p := performanceRow(rec)
		if p.Date != "" {
			if _, err := util.ParseDate(p.Date); err != nil {
				return fmt.Errorf("invalid date %q", p.Date)
			}
		}
		if p.AdID == "" && p.AdName == "" && p.AdsetID == "" && p.AdsetName == "" {
			return fmt.Errorf("row has no ad or ad set identifier")
		}
		rows = append(rows, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no performance rows read from input")
	}
	return rows, nil
}

func performanceRow(rec model.Record) model.PerformanceRow {
	date := str(rec["date"])
	if date == "" {
		date = str(rec["date_start"])
	}
	return model.PerformanceRow{
		Date:                 date,
		CampaignName:         str(rec["campaign_name"]),
		AdsetID:              str(rec["adset_id"]),
		AdsetName:            str(rec["adset_name"]),
		AdID:                 str(rec["ad_id"]),
		AdName:               str(rec["ad_name"]),
		Objective:            str(rec["objective"]),
		Spend:                util.Coerce(rec["spend"]),
		CostPerResult:        util.Coerce(rec["cost_per_result"]),
		Results:              util.CoercePtr(rec["results"]),
		CPM:                  util.Coerce(rec["cpm"]),
		Status:               str(rec["status"]),
		EffectiveStatus:      str(rec["effective_status"]),
		AdsetStatus:          str(rec["adset_status"]),
		AdsetEffectiveStatus: str(rec["adset_effective_status"]),
		DailyBudget:          util.CoercePtr(rec["daily_budget"]),
		LifetimeBudget:       util.CoercePtr(rec["lifetime_budget"]),
	}
}

// ReadAnalytics reads analytics rows. Rows without a custom_value are kept;
// the join drops them because their key is empty.
func ReadAnalytics(r io.Reader) ([]model.AnalyticsRow, error) {
	var rows []model.AnalyticsRow
	_, err := readRecords(r, func(_ int, rec model.Record) error {
		rows = append(rows, joinads.RowFromRecord(rec))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no analytics rows read from input")
	}
	return rows, nil
}

// ReadFile opens path and decodes it with read. "-" reads stdin, which must
// be a pipe or a file rather than a terminal.
func ReadFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	if path == "-" {
		if IsTTY(os.Stdin) {
			return nil, fmt.Errorf("stdin is a terminal; pipe JSONL rows in or pass a file path")
		}
		return read(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// WriteJSONL writes one JSON object per row.
func WriteJSONL[T any](w io.Writer, rows []T) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// IsTTY reports whether f is a terminal (not a pipe or regular file).
func IsTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// str renders ids that arrive as JSON numbers without an exponent.
func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}
