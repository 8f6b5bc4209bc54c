package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local store of rules, report payloads and saved views",
	Long: `The local bbolt file (store_path) has three buckets:

  rules   watch rules per account, used when rule_backend is "bolt"
  cache   ads-platform and analytics responses, reused until cache_ttl passes
  views   saved report views created with "arbdash view save"

Only "cache" is safe to drop at any time: the next report refetches it.
Clearing "rules" disables watching for every account, and clearing "views"
forgets every saved view.`,
}

// ─── cache stats ──────────────────────────────────────────────────────────────

var cacheStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Count entries per bucket (rules, cache, views)",
	Example: `  arbdash cache stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}
		sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

		fmt.Fprintf(cmd.OutOrStdout(), "Store: %s\n\n", deps.Store.Path())
		printSimpleTable(cmd.OutOrStdout(), []string{"BUCKET", "ENTRIES", "SIZE"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, fmt.Sprintf("%d", s.Count), humanBytes(s.Bytes))
			}
		})
		return nil
	},
}

// ─── cache clear ──────────────────────────────────────────────────────────────

var (
	cacheClearAll    bool
	cacheClearBucket string
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every entry in the rules, cache or views bucket",
	Long: `Clear empties one bucket (--bucket) or all three (--all).

  --bucket cache   forces the next report to refetch from both platforms
  --bucket rules   removes every account's watch rules; the watcher goes idle
  --bucket views   removes every saved report view

The file keeps its size until "arbdash cache compact" rewrites it.`,
	Example: `  arbdash cache clear --bucket cache
  arbdash cache clear --bucket views
  arbdash cache clear --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheClearAll && cacheClearBucket == "" {
			return fmt.Errorf("pass --all or --bucket (%s)", strings.Join(store.AllBuckets, ", "))
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if cacheClearAll {
			if err := deps.Store.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %s\n", strings.Join(store.AllBuckets, ", "))
			return nil
		}

		if err := deps.Store.ClearBucket(cacheClearBucket); err != nil {
			return fmt.Errorf("clearing bucket %q: %w", cacheClearBucket, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %s\n", cacheClearBucket)
		return nil
	},
}

// ─── cache purge ──────────────────────────────────────────────────────────────

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete report payloads older than cache_ttl",
	Long: `Purge deletes entries in the cache bucket whose TTL has passed. Reports
already treat those entries as misses, so this only frees space. The rules
and views buckets are not touched.`,
	Example: `  arbdash cache purge`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		n, err := deps.Store.PurgeExpired()
		if err != nil {
			return fmt.Errorf("purging cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Purged %d stale payload%s\n", n, plural(n, "", "s"))
		return nil
	},
}

// ─── cache compact ────────────────────────────────────────────────────────────

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Shrink the store file after clear or purge",
	Long: `Compact copies rules, cached payloads and views into a fresh file and swaps
it in place of store_path. Run it after a large clear or purge; nothing is
lost and the store stays usable.`,
	Example: `  arbdash cache compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		before, after, err := deps.Store.Compact()
		if err != nil {
			return fmt.Errorf("compacting %s: %w", deps.Store.Path(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %s -> %s\n", deps.Store.Path(), humanBytes(before), humanBytes(after))
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	cacheCmd.AddCommand(cacheCompactCmd)

	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear rules, cache and views")
	cacheClearCmd.Flags().StringVar(&cacheClearBucket, "bucket", "", "bucket to clear: "+strings.Join(store.AllBuckets, "|"))
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
