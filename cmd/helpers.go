package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/app"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/render"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns the --out file when set, otherwise def. The returned
// close function is always safe to call.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// emit renders result with the resolved format and prints the footer.
func emit(w io.Writer, deps *app.Deps, result *model.Result) error {
	if err := render.RenderTo(globalFlags.Out, result, resolveFormat(deps.Config.Format)); err != nil {
		return err
	}
	if !deps.Config.Quiet {
		render.PrintFooter(w, result, deps.Config.Verbose)
	}
	return nil
}

// newResult wraps data in a Result envelope.
func newResult(kind, command string, data any, items int, start time.Time) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now().UTC(),
		Command:     command,
		Data:        data,
		Stats: model.ResultStats{
			Items:      items,
			DurationMs: time.Since(start).Milliseconds(),
		},
	}
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// parseThreshold parses an optional money limit. An empty string or "none"
// clears the limit.
func parseThreshold(s, label string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	d, err := util.ParseMoney(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", label, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid %s %q: must not be negative", label, s)
	}
	v := d.InexactFloat64()
	return &v, nil
}

// splitIDs splits repeated or comma-separated id flags into one list.
func splitIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		ids = append(ids, util.SplitList(v)...)
	}
	return util.DedupeIDs(ids)
}
