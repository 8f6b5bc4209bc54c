// Package store provides a thin bbolt wrapper for arbdash's local data.
//
// Buckets:
//
//	rules: watch rule documents keyed by rules:<account_id>
//	cache: upstream payloads with a stored_at / expires_at envelope
//	views: saved report filters keyed by view:<name>
//	_meta: internal: schema version, created_at
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// DefaultAccount is used when a caller does not name an account.
const DefaultAccount = "default"

// Bucket name constants.
var (
	bucketRules    = []byte("rules")
	bucketCache    = []byte("cache")
	bucketViews    = []byte("views")
	bucketInternal = []byte("_meta")
)

// AllBuckets lists every top-level bucket for stats and clear operations.
var AllBuckets = []string{"rules", "cache", "views"}

// Store wraps a bbolt database.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRules, bucketCache, bucketViews, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Rules ────────────────────────────────────────────────────────────────────

// RuleStore persists one rule document per account.
type RuleStore interface {
	Load(ctx context.Context, accountID string) (model.RuleDocument, error)
	Save(ctx context.Context, accountID string, rules model.RuleSet) (model.RuleDocument, error)
	Delete(ctx context.Context, accountID string) error
}

// RulesKey builds the key a rule document is stored under.
func RulesKey(accountID string) string {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		accountID = DefaultAccount
	}
	return "rules:" + accountID
}

// BoltRules is the bbolt-backed RuleStore.
type BoltRules struct {
	s *Store
}

// Rules returns the rule store view of s.
func (s *Store) Rules() *BoltRules {
	return &BoltRules{s: s}
}

// Load returns the stored document, or an empty one if none exists.
func (r *BoltRules) Load(_ context.Context, accountID string) (model.RuleDocument, error) {
	doc := model.RuleDocument{AccountID: accountID, Rules: model.RuleSet{}}
	err := r.s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRules).Get([]byte(RulesKey(accountID)))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &doc)
	})
	if err != nil {
		return doc, fmt.Errorf("loading rules for %s: %w", accountID, err)
	}
	if doc.Rules == nil {
		doc.Rules = model.RuleSet{}
	}
	return doc, nil
}

// Save replaces the account's rule set, stamping updated_at.
func (r *BoltRules) Save(_ context.Context, accountID string, rules model.RuleSet) (model.RuleDocument, error) {
	doc := newDocument(accountID, rules, r.s.now())
	b, err := json.Marshal(doc)
	if err != nil {
		return doc, fmt.Errorf("encoding rules: %w", err)
	}
	err = r.s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRules).Put([]byte(RulesKey(accountID)), b)
	})
	return doc, err
}

// Delete removes every rule for the account.
func (r *BoltRules) Delete(_ context.Context, accountID string) error {
	return r.s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRules).Delete([]byte(RulesKey(accountID)))
	})
}

// Accounts lists every account with a stored rule document.
func (r *BoltRules) Accounts() ([]string, error) {
	var accounts []string
	err := r.s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRules).ForEach(func(k, _ []byte) error {
			accounts = append(accounts, strings.TrimPrefix(string(k), "rules:"))
			return nil
		})
	})
	return accounts, err
}

func newDocument(accountID string, rules model.RuleSet, now time.Time) model.RuleDocument {
	if rules == nil {
		rules = model.RuleSet{}
	}
	if strings.TrimSpace(accountID) == "" {
		accountID = DefaultAccount
	}
	return model.RuleDocument{
		AccountID: accountID,
		Rules:     rules,
		UpdatedAt: now.UTC().Truncate(time.Second),
	}
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			})
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	known := false
	for _, b := range AllBuckets {
		if b == name {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown bucket %q (buckets: %s)", name, strings.Join(AllBuckets, ", "))
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file, replaces the original
// with it and reopens the handle. It returns the file size before and after.
func (s *Store) Compact() (int64, int64, error) {
	path := s.db.Path()
	before, err := fileSize(path)
	if err != nil {
		return 0, 0, err
	}

	tmp := path + ".compact"
	dst, err := bolt.Open(tmp, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return 0, 0, fmt.Errorf("opening compaction target: %w", err)
	}
	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmp)
		return 0, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		return 0, 0, err
	}
	if err := s.db.Close(); err != nil {
		return 0, 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, 0, fmt.Errorf("replacing database: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return 0, 0, fmt.Errorf("reopening db: %w", err)
	}
	s.db = db

	after, err := fileSize(path)
	return before, after, err
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return fi.Size(), nil
}
