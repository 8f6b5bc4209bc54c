package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ─── TTL Cache ────────────────────────────────────────────────────────────────
//
// The cache bucket holds upstream payloads. Every entry carries its own
// expiry, so callers never compute staleness themselves: Get reports whether
// the value is still fresh, and a stale value is still returned so a caller
// can fall back to it when the upstream is unavailable.

// cacheEntry is the on-disk envelope for a cached value.
type cacheEntry struct {
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Value     json.RawMessage `json:"value"`
}

// CacheKey joins key parts with "|". Empty parts are kept so positions stay
// stable.
func CacheKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// Get returns the cached JSON value for key. value is nil on a miss. fresh is
// true while the entry has not expired.
func (s *Store) Get(key string) (value []byte, fresh bool, err error) {
	var entry cacheEntry
	found := false
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCache).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &entry)
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading cache %s: %w", key, err)
	}
	if !found {
		return nil, false, nil
	}
	return []byte(entry.Value), s.now().Before(entry.ExpiresAt), nil
}

// Put stores a JSON value under key for ttl.
func (s *Store) Put(key string, value []byte, ttl time.Duration) error {
	if !json.Valid(value) {
		return fmt.Errorf("cache %s: value is not valid JSON", key)
	}
	now := s.now().UTC()
	entry := cacheEntry{
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
		Value:     json.RawMessage(value),
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(key), b)
	})
}

// GetJSON decodes a cached value into out. found is false on a miss.
func (s *Store) GetJSON(key string, out any) (found, fresh bool, err error) {
	raw, fresh, err := s.Get(key)
	if err != nil || raw == nil {
		return false, false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, false, fmt.Errorf("decoding cache %s: %w", key, err)
	}
	return true, fresh, nil
}

// PutJSON encodes v and stores it under key for ttl.
func (s *Store) PutJSON(key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}
	return s.Put(key, b, ttl)
}

// PurgeExpired removes every expired cache entry and returns how many were
// removed.
func (s *Store) PurgeExpired() (int, error) {
	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCache)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var entry cacheEntry
			if err := json.Unmarshal(v, &entry); err != nil || !now.Before(entry.ExpiresAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
