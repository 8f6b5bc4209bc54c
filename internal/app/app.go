// Package app wires together configuration, the two platform clients, and
// the local store into a single Deps struct that commands receive at runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/multierr"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/config"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/joinads"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/meta"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/store"
)

// RedisPrefix namespaces rule keys in a shared Redis.
const RedisPrefix = "arbdash"

// Deps holds all runtime dependencies injected into command Run functions.
// Store and Rules are opened lazily by RequireStore and RequireRules so that
// commands that never touch the database do not lock it.
type Deps struct {
	Config    *config.Config
	Meta      *meta.Client
	Analytics *joinads.Client
	Store     *store.Store
	Rules     store.RuleStore

	mu    sync.Mutex
	redis *store.RedisRules
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) *Deps {
	return &Deps{
		Config: cfg,
		Meta: meta.NewClient(meta.Config{
			Token:       cfg.MetaToken,
			BaseURL:     cfg.MetaBaseURL,
			Timeout:     cfg.Timeout,
			Rate:        cfg.Rate,
			Concurrency: cfg.Concurrency,
			Debug:       cfg.Debug,
		}),
		Analytics: joinads.NewClient(
			cfg.JoinadsToken,
			cfg.JoinadsURL,
			cfg.Timeout,
			cfg.Rate,
			cfg.Debug,
		),
	}
}

// RequireStore opens the bbolt database if it is not already open. It is
// safe for concurrent use.
func (d *Deps) RequireStore() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Store != nil {
		return nil
	}
	if d.Config.DBPath == "" {
		return errors.New("no database path: set db_path in config.json or ARBDASH_DB_PATH")
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return err
	}
	d.Store = s
	return nil
}

// RequireRules opens the configured rule backend.
func (d *Deps) RequireRules(ctx context.Context) error {
	if d.Rules != nil {
		return nil
	}
	switch d.Config.RuleBackend {
	case config.BackendRedis:
		r, err := store.NewRedisRules(ctx, d.Config.RedisURL, RedisPrefix)
		if err != nil {
			return fmt.Errorf("opening redis rule store: %w", err)
		}
		d.redis = r
		d.Rules = r
	default:
		if err := d.RequireStore(); err != nil {
			return err
		}
		d.Rules = d.Store.Rules()
	}
	return nil
}

// Close releases the store and any Redis connection. It is safe to call
// on a Deps that never opened either.
func (d *Deps) Close() error {
	var err error
	if d.redis != nil {
		err = multierr.Append(err, d.redis.Close())
		d.redis = nil
	}
	if d.Store != nil {
		err = multierr.Append(err, d.Store.Close())
		d.Store = nil
	}
	d.Rules = nil
	return err
}

// Cached returns the value stored under key when it is fresh, otherwise calls
// fetch and stores its result for the configured cache TTL. --no-cache skips
// the read and --refresh forces a re-fetch; both still write. hit reports
// whether the value came from the cache. A cache that cannot be opened or
// written only costs a debug log line.
func Cached[T any](d *Deps, key string, fetch func() (T, error)) (val T, hit bool, err error) {
	useCache := d.Config.CacheTTL > 0 && d.RequireStore() == nil
	if useCache && !d.Config.NoCache && !d.Config.Refresh {
		found, fresh, gerr := d.Store.GetJSON(key, &val)
		switch {
		case gerr != nil:
			slog.Debug("cache read failed", "key", key, "err", gerr)
		case found && fresh:
			return val, true, nil
		}
	}

	val, err = fetch()
	if err != nil {
		return val, false, err
	}
	if useCache {
		if perr := d.Store.PutJSON(key, val, d.Config.CacheTTL); perr != nil {
			slog.Debug("cache write failed", "key", key, "err", perr)
		}
	}
	return val, false, nil
}
