package watch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/watch"
)

type fakeRules struct {
	doc model.RuleDocument
	err error
}

func (f *fakeRules) Load(context.Context, string) (model.RuleDocument, error) {
	return f.doc, f.err
}

type fakeAds struct {
	mu         sync.Mutex
	statuses   map[string]model.ObjectStatus
	metrics    map[string]model.AdsetMetrics
	metricsErr error
	failPause  map[string]bool
	paused     []string
	block      chan struct{}
	entered    chan struct{}
	fetchCalls int
}

func (f *fakeAds) GetStatuses(ctx context.Context, ids []string) (map[string]model.ObjectStatus, error) {
	return f.statuses, nil
}

func (f *fakeAds) GetAdsetMetrics(ctx context.Context, account string, ids []string, since, until string) (map[string]model.AdsetMetrics, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.metrics, f.metricsErr
}

func (f *fakeAds) SetStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status != "PAUSED" {
		return errors.New("unexpected status " + status)
	}
	if f.failPause[id] {
		return errors.New("upstream refused")
	}
	f.paused = append(f.paused, id)
	return nil
}

func violatingSetup() (*fakeRules, *fakeAds) {
	rules := &fakeRules{doc: model.RuleDocument{Rules: model.RuleSet{
		"g": {GroupName: "G", AdsetIDs: []string{"S1", "S2", "S3"}, MaxSpend: f(10)},
	}}}
	ads := &fakeAds{
		statuses: active("S1", "S2", "S3"),
		metrics: map[string]model.AdsetMetrics{
			"S1": {AdsetID: "S1", Spend: 20},
		},
	}
	return rules, ads
}

func TestTickPausesViolatingGroup(t *testing.T) {
	rules, ads := violatingSetup()
	w := watch.New(watch.Config{}, rules, ads, nil)

	report, err := w.Tick(context.Background(), watch.TickOptions{AccountID: "act_1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2", "S3"}, report.Paused)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, util.Today(), report.Since)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, model.VerdictPause, report.Decisions[0].Verdict)
}

func TestTickContinuesAfterPauseFailure(t *testing.T) {
	rules, ads := violatingSetup()
	ads.failPause = map[string]bool{"S2": true}
	w := watch.New(watch.Config{}, rules, ads, nil)

	report, err := w.Tick(context.Background(), watch.TickOptions{AccountID: "act_1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S3"}, report.Paused)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "S2", report.Skipped[0].ID)
	assert.Contains(t, report.Skipped[0].Error, "upstream refused")
}

func TestTickFetchFailureSkipsTick(t *testing.T) {
	rules, ads := violatingSetup()
	ads.metricsErr = errors.New("graph down")
	w := watch.New(watch.Config{}, rules, ads, nil)

	report, err := w.Tick(context.Background(), watch.TickOptions{AccountID: "act_1"})
	assert.Error(t, err)
	assert.Nil(t, report)
	assert.Empty(t, ads.paused)
}

func TestTickDryRun(t *testing.T) {
	rules, ads := violatingSetup()
	w := watch.New(watch.Config{}, rules, ads, nil)

	report, err := w.Tick(context.Background(), watch.TickOptions{AccountID: "act_1", DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, report.Paused)
	assert.Len(t, report.Skipped, 3)
	assert.Empty(t, ads.paused)
}

func TestTickWithoutRules(t *testing.T) {
	w := watch.New(watch.Config{}, &fakeRules{}, &fakeAds{}, nil)
	report, err := w.Tick(context.Background(), watch.TickOptions{AccountID: "act_1"})
	require.NoError(t, err)
	assert.Zero(t, report.Rules)
	assert.Empty(t, report.Paused)
}

func TestTickRequiresAccount(t *testing.T) {
	rules, ads := violatingSetup()
	w := watch.New(watch.Config{}, rules, ads, nil)
	_, err := w.Tick(context.Background(), watch.TickOptions{})
	var ve *util.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTicksDoNotOverlap(t *testing.T) {
	rules, ads := violatingSetup()
	ads.block = make(chan struct{})
	ads.entered = make(chan struct{}, 1)
	w := watch.New(watch.Config{}, rules, ads, nil)

	done := make(chan error, 1)
	go func() {
		_, err := w.Tick(context.Background(), watch.TickOptions{AccountID: "act_1"})
		done <- err
	}()
	<-ads.entered

	_, err := w.Tick(context.Background(), watch.TickOptions{AccountID: "act_1"})
	assert.ErrorIs(t, err, watch.ErrTickInProgress)

	close(ads.block)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"S1", "S2", "S3"}, ads.paused, "each id paused exactly once")
}

func TestStartStop(t *testing.T) {
	rules, ads := violatingSetup()
	ads.statuses = map[string]model.ObjectStatus{}
	w := watch.New(watch.Config{Interval: 10 * time.Millisecond, AccountIDs: []string{"act_1"}}, rules, ads, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start must fail")
	assert.Eventually(t, func() bool {
		ads.mu.Lock()
		defer ads.mu.Unlock()
		return ads.fetchCalls >= 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())
	assert.Error(t, w.Stop())
	assert.Empty(t, ads.paused, "groups with unknown status are never paused")
}

func TestStartRequiresAccounts(t *testing.T) {
	w := watch.New(watch.Config{}, &fakeRules{}, &fakeAds{}, nil)
	assert.Error(t, w.Start(context.Background()))
}

func TestPauseAllLogsRuleKey(t *testing.T) {
	_, ads := violatingSetup()
	ads.failPause = map[string]bool{"S2": true}
	w := watch.New(watch.Config{}, &fakeRules{}, ads, nil)

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	owners := map[string]string{"S1": "g", "S2": "g"}
	paused, skipped, err := w.PauseAll(context.Background(), "act_1", []string{"S1", "S2"}, owners, log)
	assert.Error(t, err)
	assert.Equal(t, []string{"S1"}, paused)
	require.Len(t, skipped, 1)

	var lines []map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "paused adset", lines[0]["msg"])
	assert.Equal(t, "g", lines[0]["rule"])
	assert.Equal(t, "S1", lines[0]["adset_id"])
	assert.Equal(t, "pause failed", lines[1]["msg"])
	assert.Equal(t, "g", lines[1]["rule"])
	assert.Equal(t, "S2", lines[1]["adset_id"])
}

func TestStartStopConcurrent(t *testing.T) {
	rules, ads := violatingSetup()
	ads.statuses = map[string]model.ObjectStatus{}
	w := watch.New(watch.Config{Interval: time.Millisecond, AccountIDs: []string{"act_1"}}, rules, ads, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = w.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = w.Stop()
		}()
	}
	wg.Wait()

	_ = w.Stop()
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
}
