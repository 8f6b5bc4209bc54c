package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/metrics"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// DefaultInterval is the time between scheduled ticks.
const DefaultInterval = 2 * time.Minute

// ErrTickInProgress is returned when a tick is requested while another one
// for the same watcher is still running.
var ErrTickInProgress = errors.New("watch tick already in progress")

// RuleLoader reads the stored rule document for an account.
type RuleLoader interface {
	Load(ctx context.Context, accountID string) (model.RuleDocument, error)
}

// AdsPlatform is the subset of the ads-platform client the watcher needs.
type AdsPlatform interface {
	GetStatuses(ctx context.Context, ids []string) (map[string]model.ObjectStatus, error)
	GetAdsetMetrics(ctx context.Context, accountID string, adsetIDs []string, since, until string) (map[string]model.AdsetMetrics, error)
	SetStatus(ctx context.Context, id, status string) error
}

// Config holds watcher settings.
type Config struct {
	Interval   time.Duration
	AccountIDs []string
	DryRun     bool
}

// TickOptions selects the account and date range for one tick. Empty dates
// default to today (UTC).
type TickOptions struct {
	AccountID string
	Since     string
	Until     string
	DryRun    bool
}

// Watcher evaluates watch rules on a fixed interval and pauses ad sets that
// violate them.
type Watcher struct {
	c       Config
	rules   RuleLoader
	ads     AdsPlatform
	metrics *metrics.WatchMetrics

	mu sync.Mutex // held for the duration of a tick

	life sync.Mutex // guards stop and done
	stop context.CancelFunc
	done chan struct{}
}

// New creates a watcher. m may be nil.
func New(c Config, rules RuleLoader, ads AdsPlatform, m *metrics.WatchMetrics) *Watcher {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return &Watcher{c: c, rules: rules, ads: ads, metrics: m}
}

// ─── Scheduling ───────────────────────────────────────────────────────────────

// Start runs one tick per configured account immediately and then on every
// interval until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.life.Lock()
	defer w.life.Unlock()
	if w.stop != nil {
		return fmt.Errorf("watcher already started")
	}
	if len(w.c.AccountIDs) == 0 {
		return &util.ValidationError{Fields: []string{"account_id"}, Reason: "at least one account is required"}
	}
	ctx, w.stop = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.worker(ctx, w.done)
	return nil
}

// Stop cancels the schedule and waits for an in-flight tick to finish.
func (w *Watcher) Stop() error {
	w.life.Lock()
	defer w.life.Unlock()
	if w.stop == nil {
		return fmt.Errorf("watcher already stopped or not started")
	}
	w.stop()
	<-w.done
	w.stop, w.done = nil, nil
	return nil
}

func (w *Watcher) worker(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.c.Interval)
	defer ticker.Stop()

	w.tickAll(ctx)
	for {
		select {
		case <-ticker.C:
			w.tickAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tickAll runs one tick per account. A failed tick is logged and dropped;
// the next scheduled tick starts from scratch.
func (w *Watcher) tickAll(ctx context.Context) {
	for _, account := range w.c.AccountIDs {
		if ctx.Err() != nil {
			return
		}
		_, err := w.Tick(ctx, TickOptions{AccountID: account, DryRun: w.c.DryRun})
		if err != nil {
			slog.Default().ErrorContext(ctx, "watch tick skipped",
				slog.String("account_id", account),
				slog.String("err", err.Error()),
			)
		}
	}
}

// ─── Tick ─────────────────────────────────────────────────────────────────────

// Tick loads the account's rules, fetches fresh statuses and metrics, and
// pauses every ad set in a violating group. Ticks never overlap: a tick
// requested while another is running returns ErrTickInProgress.
//
// A fetch failure aborts the tick before any pause is sent. Pause failures
// are recorded per id in the report and do not stop the batch.
func (w *Watcher) Tick(ctx context.Context, opts TickOptions) (*model.WatchReport, error) {
	if !w.mu.TryLock() {
		w.metrics.ObserveTick(opts.AccountID, metrics.TickOverlap, 0)
		return nil, ErrTickInProgress
	}
	defer w.mu.Unlock()

	start := time.Now()
	report, err := w.tick(ctx, opts)
	outcome := metrics.TickOK
	switch {
	case err != nil:
		outcome = metrics.TickFailed
	case report.Rules == 0:
		outcome = metrics.TickEmpty
	}
	w.metrics.ObserveTick(opts.AccountID, outcome, time.Since(start))
	if report != nil {
		report.DurationMs = time.Since(start).Milliseconds()
	}
	return report, err
}

func (w *Watcher) tick(ctx context.Context, opts TickOptions) (*model.WatchReport, error) {
	if opts.AccountID == "" {
		return nil, &util.ValidationError{Fields: []string{"account_id"}, Reason: "required"}
	}
	since, until, err := util.ResolveRange(opts.Since, opts.Until)
	if err != nil {
		return nil, err
	}

	report := &model.WatchReport{
		RunID:     uuid.NewString(),
		AccountID: opts.AccountID,
		Since:     since,
		Until:     until,
		Paused:    []string{},
		Skipped:   []model.SkippedAdset{},
		StartedAt: time.Now().UTC(),
	}
	log := slog.Default().With(
		slog.String("run_id", report.RunID),
		slog.String("account_id", opts.AccountID),
	)

	doc, err := w.rules.Load(ctx, opts.AccountID)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	rules := doc.Rules.Sorted()
	report.Rules = len(rules)
	ids := doc.Rules.AdsetIDs()
	if len(ids) == 0 {
		log.DebugContext(ctx, "no watched ad sets")
		return report, nil
	}

	var (
		statuses map[string]model.ObjectStatus
		adsets   map[string]model.AdsetMetrics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		statuses, err = w.ads.GetStatuses(gctx, ids)
		if err != nil {
			return fmt.Errorf("fetching ad-set statuses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		adsets, err = w.ads.GetAdsetMetrics(gctx, opts.AccountID, ids, since, until)
		if err != nil {
			return fmt.Errorf("fetching ad-set metrics: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groups := MetricsFromAdsets(rules, adsets, statuses)
	report.Decisions = Decide(rules, groups)
	queue := Evaluate(rules, groups)
	owners := Owners(rules, groups)
	w.metrics.SetQueued(opts.AccountID, len(queue))
	log.InfoContext(ctx, "watch rules evaluated",
		slog.Int("rules", len(rules)),
		slog.Int("queued", len(queue)),
	)

	if opts.DryRun {
		for _, id := range queue {
			report.Skipped = append(report.Skipped, model.SkippedAdset{ID: id, Status: "DRY_RUN"})
			w.metrics.IncPause(opts.AccountID, metrics.PauseDryRun)
		}
		return report, nil
	}

	paused, skipped, err := w.PauseAll(ctx, opts.AccountID, queue, owners, log)
	report.Paused = append(report.Paused, paused...)
	report.Skipped = append(report.Skipped, skipped...)
	if err != nil {
		log.WarnContext(ctx, "pause dispatch incomplete",
			slog.Int("failed", len(multierr.Errors(err))),
			slog.String("err", err.Error()),
		)
	}
	return report, nil
}

// PauseAll sends one pause per id, in order. A failed id is logged and
// recorded, and the remaining ids are still attempted. The returned error
// combines every per-id failure. owners maps an id to the rule key logged
// with it and may be nil.
func (w *Watcher) PauseAll(ctx context.Context, accountID string, ids []string, owners map[string]string, log *slog.Logger) ([]string, []model.SkippedAdset, error) {
	if log == nil {
		log = slog.Default()
	}
	paused := []string{}
	skipped := []model.SkippedAdset{}
	var errs error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			skipped = append(skipped, model.SkippedAdset{ID: id, Error: err.Error()})
			errs = multierr.Append(errs, err)
			continue
		}
		if err := w.ads.SetStatus(ctx, id, "PAUSED"); err != nil {
			log.ErrorContext(ctx, "pause failed",
				slog.String("rule", owners[id]),
				slog.String("adset_id", id),
				slog.String("err", err.Error()),
			)
			w.metrics.IncPause(accountID, metrics.PauseFailed)
			skipped = append(skipped, model.SkippedAdset{ID: id, Error: err.Error()})
			errs = multierr.Append(errs, fmt.Errorf("pause %s: %w", id, err))
			continue
		}
		log.InfoContext(ctx, "paused adset",
			slog.String("rule", owners[id]),
			slog.String("adset_id", id),
		)
		w.metrics.IncPause(accountID, metrics.PauseOK)
		paused = append(paused, id)
	}
	return paused, skipped, errs
}
