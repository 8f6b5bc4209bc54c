package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// RedisRules is a RuleStore backed by Redis, for deployments where several
// processes share one rule set.
type RedisRules struct {
	store  cmdable
	raw    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRules connects to url (redis://...) and verifies connectivity.
// prefix namespaces every key; it may be empty.
func NewRedisRules(ctx context.Context, url, prefix string) (*RedisRules, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisRules{store: raw, raw: raw, prefix: prefix, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (r *RedisRules) Close() error {
	if r.raw == nil {
		return nil
	}
	return r.raw.Close()
}

func (r *RedisRules) key(accountID string) string {
	if r.prefix == "" {
		return RulesKey(accountID)
	}
	return r.prefix + ":" + RulesKey(accountID)
}

// Load returns the stored document, or an empty one if the key is absent.
func (r *RedisRules) Load(ctx context.Context, accountID string) (model.RuleDocument, error) {
	doc := model.RuleDocument{AccountID: accountID, Rules: model.RuleSet{}}
	raw, err := r.store.Get(ctx, r.key(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("loading rules for %s: %w", accountID, err)
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return doc, fmt.Errorf("decoding rules for %s: %w", accountID, err)
	}
	if doc.Rules == nil {
		doc.Rules = model.RuleSet{}
	}
	return doc, nil
}

// Save replaces the account's rule set without expiry.
func (r *RedisRules) Save(ctx context.Context, accountID string, rules model.RuleSet) (model.RuleDocument, error) {
	doc := newDocument(accountID, rules, r.now())
	b, err := json.Marshal(doc)
	if err != nil {
		return doc, fmt.Errorf("encoding rules: %w", err)
	}
	if err := r.store.Set(ctx, r.key(accountID), string(b), 0).Err(); err != nil {
		return doc, fmt.Errorf("saving rules for %s: %w", accountID, err)
	}
	return doc, nil
}

// Delete removes every rule for the account.
func (r *RedisRules) Delete(ctx context.Context, accountID string) error {
	if err := r.store.Del(ctx, r.key(accountID)).Err(); err != nil {
		return fmt.Errorf("deleting rules for %s: %w", accountID, err)
	}
	return nil
}
