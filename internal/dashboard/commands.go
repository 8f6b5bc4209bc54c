package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/joinads"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
)

// PerformanceSource reads ad-level performance rows.
type PerformanceSource interface {
	GetAdInsights(ctx context.Context, accountID, since, until string) ([]model.PerformanceRow, error)
}

// AnalyticsSource reads custom-value analytics rows.
type AnalyticsSource interface {
	KeyValue(ctx context.Context, q joinads.KeyValueQuery) ([]model.AnalyticsRow, error)
}

// Command performs one fetch and describes its outcome as a Patch. A
// Command never returns an error: failures become a Failed patch.
type Command struct {
	Source string
	Run    func(ctx context.Context) Patch
}

// Fetcher wraps a fetch so callers can add caching. hit reports whether the
// rows came from a cache.
type Fetcher[T any] func(ctx context.Context) (rows T, hit bool, err error)

// FetchPerformance loads the ads-platform rows for the filters.
func FetchPerformance(fetch Fetcher[[]model.PerformanceRow]) Command {
	return Command{
		Source: SourcePerformance,
		Run: func(ctx context.Context) Patch {
			rows, hit, err := fetch(ctx)
			if err != nil {
				return Failed{Source: SourcePerformance, Err: err}
			}
			return PerformanceLoaded{Rows: rows, CacheHit: hit}
		},
	}
}

// FetchAnalytics loads one level of analytics rows. source is
// SourceAdAnalytics or SourceAdsetAnalytics.
func FetchAnalytics(source string, fetch Fetcher[[]model.AnalyticsRow]) Command {
	return Command{
		Source: source,
		Run: func(ctx context.Context) Patch {
			rows, hit, err := fetch(ctx)
			if err != nil {
				return Failed{Source: source, Err: err}
			}
			return AnalyticsLoaded{Source: source, Rows: rows, CacheHit: hit}
		},
	}
}

// PerformanceFrom adapts a PerformanceSource to a Fetcher for f.
func PerformanceFrom(src PerformanceSource, f Filters) Fetcher[[]model.PerformanceRow] {
	return func(ctx context.Context) ([]model.PerformanceRow, bool, error) {
		rows, err := src.GetAdInsights(ctx, f.AccountID, f.Since, f.Until)
		return rows, false, err
	}
}

// AnalyticsFrom adapts an AnalyticsSource to a Fetcher for q.
func AnalyticsFrom(src AnalyticsSource, q joinads.KeyValueQuery) Fetcher[[]model.AnalyticsRow] {
	return func(ctx context.Context) ([]model.AnalyticsRow, bool, error) {
		rows, err := src.KeyValue(ctx, q)
		return rows, false, err
	}
}

// Refresh runs every command concurrently and applies their patches to s in
// command order once all have finished, so completion order never changes
// the result. The returned state is stamped with the refresh time.
func Refresh(ctx context.Context, s State, cmds ...Command) State {
	sources := make([]string, len(cmds))
	for i, c := range cmds {
		sources[i] = c.Source
	}
	s = Apply(s, Started{Sources: sources})

	patches := make([]Patch, len(cmds)+1)
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range cmds {
		g.Go(func() error {
			patches[i] = c.Run(gctx)
			return nil
		})
	}
	_ = g.Wait()
	patches[len(cmds)] = Refreshed{At: time.Now().UTC()}

	return Apply(s, patches...)
}
