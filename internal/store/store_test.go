package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/store"
)

// testDB opens a fresh bbolt database in a temp dir and closes it on cleanup.
func testDB(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(v float64) *float64 { return &v }

func sampleRules() model.RuleSet {
	return model.RuleSet{
		"promo|outcome_sales": {
			GroupName: "Promo",
			AdsetIDs:  []string{"111", "222"},
			MaxCPA:    ptr(3.5),
		},
		"brand|outcome_traffic": {
			GroupName: "Brand",
			AdsetIDs:  []string{"333"},
			MaxSpend:  ptr(50),
		},
	}
}

// ─── Open / Path ──────────────────────────────────────────────────────────────

func TestOpenCreatesDB(t *testing.T) {
	s := testDB(t)
	if s.Path() == "" {
		t.Error("Path() should return the db path after open")
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open with nested path: %v", err)
	}
	defer s.Close()
	if s.Path() != path {
		t.Errorf("Path: expected %q, got %q", path, s.Path())
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Rules().Save(context.Background(), "act_1", sampleRules()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.Close()

	s, err = store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	doc, err := s.Rules().Load(context.Background(), "act_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Rules) != 2 {
		t.Errorf("expected 2 rules after reopen, got %d", len(doc.Rules))
	}
}

// ─── Rules ────────────────────────────────────────────────────────────────────

func TestRulesKey(t *testing.T) {
	cases := map[string]string{
		"act_1":   "rules:act_1",
		" act_2 ": "rules:act_2",
		"":        "rules:default",
	}
	for in, want := range cases {
		if got := store.RulesKey(in); got != want {
			t.Errorf("RulesKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadMissingReturnsEmptyDocument(t *testing.T) {
	s := testDB(t)
	doc, err := s.Rules().Load(context.Background(), "act_404")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Rules == nil {
		t.Fatal("Rules should be an empty set, not nil")
	}
	if len(doc.Rules) != 0 {
		t.Errorf("expected no rules, got %d", len(doc.Rules))
	}
	if !doc.UpdatedAt.IsZero() {
		t.Errorf("UpdatedAt should be zero for a missing document, got %v", doc.UpdatedAt)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()

	saved, err := s.Rules().Save(ctx, "act_1", sampleRules())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.UpdatedAt.IsZero() {
		t.Error("Save should stamp UpdatedAt")
	}

	doc, err := s.Rules().Load(ctx, "act_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	promo, ok := doc.Rules["promo|outcome_sales"]
	if !ok {
		t.Fatal("promo rule missing after round trip")
	}
	if promo.GroupName != "Promo" {
		t.Errorf("GroupName: expected Promo, got %q", promo.GroupName)
	}
	if promo.MaxCPA == nil || *promo.MaxCPA != 3.5 {
		t.Errorf("MaxCPA: expected 3.5, got %v", promo.MaxCPA)
	}
	if promo.MaxSpend != nil {
		t.Errorf("MaxSpend should stay unset, got %v", *promo.MaxSpend)
	}
	if len(promo.AdsetIDs) != 2 {
		t.Errorf("AdsetIDs: expected 2, got %v", promo.AdsetIDs)
	}
	if !doc.UpdatedAt.Equal(saved.UpdatedAt) {
		t.Errorf("UpdatedAt: saved %v, loaded %v", saved.UpdatedAt, doc.UpdatedAt)
	}
}

func TestSaveReplacesWholeSet(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	_, _ = s.Rules().Save(ctx, "act_1", sampleRules())
	_, err := s.Rules().Save(ctx, "act_1", model.RuleSet{
		"only|one": {GroupName: "Only", AdsetIDs: []string{"9"}},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	doc, _ := s.Rules().Load(ctx, "act_1")
	if len(doc.Rules) != 1 {
		t.Errorf("expected 1 rule after replace, got %d", len(doc.Rules))
	}
}

func TestEmptyAccountUsesDefault(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	doc, err := s.Rules().Save(ctx, "", sampleRules())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if doc.AccountID != store.DefaultAccount {
		t.Errorf("AccountID: expected %q, got %q", store.DefaultAccount, doc.AccountID)
	}
	got, _ := s.Rules().Load(ctx, store.DefaultAccount)
	if len(got.Rules) != 2 {
		t.Errorf("expected rules under the default account, got %d", len(got.Rules))
	}
}

func TestAccountsAreIsolated(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	_, _ = s.Rules().Save(ctx, "act_1", sampleRules())

	doc, _ := s.Rules().Load(ctx, "act_2")
	if len(doc.Rules) != 0 {
		t.Errorf("act_2 should not see act_1 rules, got %d", len(doc.Rules))
	}
}

func TestDeleteRules(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	_, _ = s.Rules().Save(ctx, "act_1", sampleRules())

	if err := s.Rules().Delete(ctx, "act_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	doc, _ := s.Rules().Load(ctx, "act_1")
	if len(doc.Rules) != 0 {
		t.Errorf("expected no rules after Delete, got %d", len(doc.Rules))
	}
	if err := s.Rules().Delete(ctx, "act_1"); err != nil {
		t.Errorf("Delete of a missing document should succeed, got %v", err)
	}
}

func TestAccounts(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	_, _ = s.Rules().Save(ctx, "act_2", sampleRules())
	_, _ = s.Rules().Save(ctx, "act_1", sampleRules())

	accounts, err := s.Rules().Accounts()
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	sort.Strings(accounts)
	if len(accounts) != 2 || accounts[0] != "act_1" || accounts[1] != "act_2" {
		t.Errorf("Accounts: expected [act_1 act_2], got %v", accounts)
	}
}

// ─── Cache ────────────────────────────────────────────────────────────────────

func TestCachePutGetFresh(t *testing.T) {
	s := testDB(t)
	key := store.CacheKey("meta", "act_1", "2024-05-01", "2024-05-01")
	if err := s.Put(key, []byte(`{"rows":3}`), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, fresh, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !fresh {
		t.Error("entry should be fresh within its ttl")
	}
	if string(v) != `{"rows":3}` {
		t.Errorf("value: got %s", v)
	}
}

func TestCacheMiss(t *testing.T) {
	s := testDB(t)
	v, fresh, err := s.Get("nothing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != nil || fresh {
		t.Errorf("miss should return nil, false; got %s, %v", v, fresh)
	}
}

func TestCacheRejectsInvalidJSON(t *testing.T) {
	s := testDB(t)
	if err := s.Put("k", []byte("not json"), time.Hour); err == nil {
		t.Error("expected error for invalid JSON value")
	}
}

func TestCacheJSONHelpers(t *testing.T) {
	s := testDB(t)
	rows := []model.AnalyticsRow{{CustomValue: "ad-1", Clicks: 4}}
	if err := s.PutJSON("joinads|kv", rows, time.Minute); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	var got []model.AnalyticsRow
	found, fresh, err := s.GetJSON("joinads|kv", &got)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !found || !fresh {
		t.Errorf("found=%v fresh=%v, want both true", found, fresh)
	}
	if len(got) != 1 || got[0].CustomValue != "ad-1" || got[0].Clicks != 4 {
		t.Errorf("decoded rows: %+v", got)
	}

	found, _, err = s.GetJSON("absent", &got)
	if err != nil || found {
		t.Errorf("GetJSON miss: found=%v err=%v", found, err)
	}
}

func TestCacheKeyKeepsEmptyParts(t *testing.T) {
	if got := store.CacheKey("a", "", "c"); got != "a||c" {
		t.Errorf("CacheKey: got %q", got)
	}
}

// ─── Stats ────────────────────────────────────────────────────────────────────

func TestStatsEmpty(t *testing.T) {
	s := testDB(t)
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != len(store.AllBuckets) {
		t.Errorf("expected %d buckets, got %d", len(store.AllBuckets), len(stats))
	}
	for _, bs := range stats {
		if bs.Count != 0 {
			t.Errorf("bucket %q: expected 0 rows on fresh db, got %d", bs.Name, bs.Count)
		}
	}
}

func TestStatsCountsRows(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	_, _ = s.Rules().Save(ctx, "act_1", sampleRules())
	_, _ = s.Rules().Save(ctx, "act_2", sampleRules())
	_ = s.PutJSON("k1", map[string]int{"a": 1}, time.Hour)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	byName := make(map[string]int)
	for _, bs := range stats {
		byName[bs.Name] = bs.Count
		if bs.Count > 0 && bs.Bytes == 0 {
			t.Errorf("bucket %q: rows without bytes", bs.Name)
		}
	}
	if byName["rules"] != 2 {
		t.Errorf("rules: expected 2, got %d", byName["rules"])
	}
	if byName["cache"] != 1 {
		t.Errorf("cache: expected 1, got %d", byName["cache"])
	}
}

// ─── ClearBucket / ClearAll ───────────────────────────────────────────────────

func TestClearBucketLeavesOthersIntact(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	_, _ = s.Rules().Save(ctx, "act_1", sampleRules())
	_ = s.PutJSON("k1", 1, time.Hour)

	if err := s.ClearBucket("cache"); err != nil {
		t.Fatalf("ClearBucket: %v", err)
	}
	if v, _, _ := s.Get("k1"); v != nil {
		t.Error("cache entry should be gone after ClearBucket(cache)")
	}
	doc, _ := s.Rules().Load(ctx, "act_1")
	if len(doc.Rules) != 2 {
		t.Error("rules bucket should be intact after clearing cache")
	}
}

func TestClearBucketUnknown(t *testing.T) {
	s := testDB(t)
	if err := s.ClearBucket("_meta"); err == nil {
		t.Error("expected error clearing an internal bucket")
	}
	if err := s.ClearBucket("nope"); err == nil {
		t.Error("expected error for unknown bucket")
	}
}

func TestClearAll(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	_, _ = s.Rules().Save(ctx, "act_1", sampleRules())
	_ = s.PutJSON("k1", 1, time.Hour)

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	stats, _ := s.Stats()
	for _, bs := range stats {
		if bs.Count != 0 {
			t.Errorf("bucket %q: expected 0 rows after ClearAll, got %d", bs.Name, bs.Count)
		}
	}
}

// ─── Compact ──────────────────────────────────────────────────────────────────

func TestCompactKeepsData(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		b, _ := json.Marshal(map[string]int{"i": i})
		_ = s.Put(store.CacheKey("bulk", string(rune('a'+i%26)), string(rune('A'+i/26))), b, time.Hour)
	}
	_, _ = s.Rules().Save(ctx, "act_1", sampleRules())
	_ = s.ClearBucket("cache")

	before, after, err := s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if before <= 0 || after <= 0 {
		t.Errorf("sizes should be positive: before=%d after=%d", before, after)
	}

	doc, err := s.Rules().Load(ctx, "act_1")
	if err != nil {
		t.Fatalf("Load after Compact: %v", err)
	}
	if len(doc.Rules) != 2 {
		t.Errorf("expected 2 rules after Compact, got %d", len(doc.Rules))
	}
}

// ─── Isolation ────────────────────────────────────────────────────────────────

func TestEachTestGetsIsolatedDB(t *testing.T) {
	s1 := testDB(t)
	_, _ = s1.Rules().Save(context.Background(), "act_1", sampleRules())

	s2 := testDB(t)
	doc, err := s2.Rules().Load(context.Background(), "act_1")
	if err != nil {
		t.Fatalf("Load on s2: %v", err)
	}
	if len(doc.Rules) != 0 {
		t.Error("s2 should not see data written to s1")
	}
}
