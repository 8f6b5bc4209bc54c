package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/app"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/meta"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/render"
)

var metaFlags struct {
	Set            string
	Adset          string
	StatusOption   string
	RenameStrategy string
	RenameOptions  string
	Campaigns      []string
	Adsets         []string
	Ads            []string
	Yes            bool
}

var metaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Read and change Meta ads objects (status, budget, copies)",
	Long: `Direct operations against the Meta Graph API. Every write prints one
action row per object; reads print object statuses.`,
}

var metaStatusCmd = &cobra.Command{
	Use:   "status <id>...",
	Short: "Show, or with --set change, the status of ads, ad sets or campaigns",
	Example: `  arbdash meta status 120210001 120210002
  arbdash meta status 120210001 --set PAUSED`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMeta(cmd, func(deps *app.Deps, start time.Time) (*model.Result, error) {
			ids := splitIDs(args)
			if metaFlags.Set == "" {
				statuses, err := deps.Meta.GetStatuses(cmd.Context(), ids)
				if err != nil {
					return nil, err
				}
				return newResult(model.KindStatuses, "meta status", statuses, len(statuses), start), nil
			}

			status := strings.ToUpper(strings.TrimSpace(metaFlags.Set))
			if status != "ACTIVE" && status != "PAUSED" {
				return nil, fmt.Errorf("invalid --set %q (want ACTIVE or PAUSED)", metaFlags.Set)
			}
			var (
				results  []model.ActionResult
				warnings []string
			)
			for _, id := range ids {
				err := deps.Meta.SetStatus(cmd.Context(), id, status)
				results = append(results, actionResult("set_status", id, "", err, map[string]any{"status": status}))
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("%s: %v", id, err))
				}
			}
			r := newResult(model.KindAction, "meta status", results, len(results), start)
			r.Warnings = warnings
			return r, nil
		})
	},
}

var metaBudgetCmd = &cobra.Command{
	Use:   "budget <adset-id> <amount>",
	Short: "Set an ad set's daily budget (currency units, \",\" accepted)",
	Example: `  arbdash meta budget 120210001 150
  arbdash meta budget 120210001 89,90`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMeta(cmd, func(deps *app.Deps, start time.Time) (*model.Result, error) {
			budget, err := deps.Meta.SetDailyBudget(cmd.Context(), args[0], args[1])
			if err != nil {
				return nil, err
			}
			detail := map[string]any{"requested": args[1]}
			r := newResult(model.KindAction, "meta budget", nil, 1, start)
			if budget == nil {
				r.Warnings = append(r.Warnings, "budget updated but could not be read back")
			} else {
				detail["daily_budget"] = budget.DailyBudget
				detail["lifetime_budget"] = budget.LifetimeBudget
				detail["budget_remaining"] = budget.BudgetRemaining
			}
			r.Data = []model.ActionResult{actionResult("set_budget", args[0], "", nil, detail)}
			return r, nil
		})
	},
}

var metaRenameCmd = &cobra.Command{
	Use:     "rename <id> <name>",
	Short:   "Rename an ad, ad set or campaign",
	Example: `  arbdash meta rename 120210001 "Promo X - v2"`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMeta(cmd, func(deps *app.Deps, start time.Time) (*model.Result, error) {
			if err := deps.Meta.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return nil, err
			}
			res := actionResult("rename", args[0], "", nil, map[string]any{"name": args[1]})
			return newResult(model.KindAction, "meta rename", []model.ActionResult{res}, 1, start), nil
		})
	},
}

var metaCopyAdCmd = &cobra.Command{
	Use:   "copy-ad <ad-id>",
	Short: "Copy an ad into an ad set",
	Long: `Copy an ad into --adset. Copies that hit Meta's propagation delay for
freshly created objects are retried with backoff.`,
	Example: `  arbdash meta copy-ad 120210009 --adset 120210001 --status-option PAUSED
  arbdash meta copy-ad 120210009 --adset 120210001 --rename-strategy DEEP_RENAME --rename-options '{"rename_suffix":" - copy"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMeta(cmd, func(deps *app.Deps, start time.Time) (*model.Result, error) {
			opts := meta.CopyOptions{
				StatusOption:   strings.ToUpper(metaFlags.StatusOption),
				RenameStrategy: strings.ToUpper(metaFlags.RenameStrategy),
			}
			if metaFlags.RenameOptions != "" {
				if err := json.Unmarshal([]byte(metaFlags.RenameOptions), &opts.RenameOptions); err != nil {
					return nil, fmt.Errorf("--rename-options: %w", err)
				}
			}
			newID, err := deps.Meta.CopyAd(cmd.Context(), args[0], metaFlags.Adset, opts)
			if err != nil {
				return nil, err
			}
			res := actionResult("copy_ad", args[0], newID, nil, map[string]any{"adset_id": metaFlags.Adset})
			return newResult(model.KindAction, "meta copy-ad", []model.ActionResult{res}, 1, start), nil
		})
	},
}

var metaCopyAdsetCmd = &cobra.Command{
	Use:     "copy-adset <adset-id>",
	Short:   "Deep-copy an ad set together with its ads",
	Example: `  arbdash meta copy-adset 120210001 --status-option PAUSED`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMeta(cmd, func(deps *app.Deps, start time.Time) (*model.Result, error) {
			newID, err := deps.Meta.CopyAdset(cmd.Context(), args[0], strings.ToUpper(metaFlags.StatusOption))
			if err != nil {
				return nil, err
			}
			res := actionResult("copy_adset", args[0], newID, nil, nil)
			return newResult(model.KindAction, "meta copy-adset", []model.ActionResult{res}, 1, start), nil
		})
	},
}

var metaDeleteAdCmd = &cobra.Command{
	Use:     "delete-ad <ad-id>",
	Short:   "Delete an ad",
	Example: `  arbdash meta delete-ad 120210009 --yes`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !metaFlags.Yes {
			return fmt.Errorf("refusing to delete ad %s without --yes", args[0])
		}
		return withMeta(cmd, func(deps *app.Deps, start time.Time) (*model.Result, error) {
			if err := deps.Meta.DeleteAd(cmd.Context(), args[0]); err != nil {
				return nil, err
			}
			res := actionResult("delete_ad", args[0], "", nil, nil)
			return newResult(model.KindAction, "meta delete-ad", []model.ActionResult{res}, 1, start), nil
		})
	},
}

var metaAdsetAdsCmd = &cobra.Command{
	Use:     "adset-ads <adset-id>",
	Short:   "List every ad in an ad set with its status",
	Example: `  arbdash meta adset-ads 120210001`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMeta(cmd, func(deps *app.Deps, start time.Time) (*model.Result, error) {
			ads, err := deps.Meta.ListAdsetAds(cmd.Context(), args[0])
			if err != nil {
				return nil, err
			}
			return newResult(model.KindStatuses, "meta adset-ads", ads, len(ads), start), nil
		})
	},
}

var metaStatusesCmd = &cobra.Command{
	Use:   "statuses",
	Short: "Look up campaigns, ad sets and ads in one call",
	Example: `  arbdash meta statuses --campaigns 1201 --adsets 1202,1203 --ads 1204
  arbdash meta statuses --adsets 1202 --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		campaigns, adsets, ads := splitIDs(metaFlags.Campaigns), splitIDs(metaFlags.Adsets), splitIDs(metaFlags.Ads)
		if len(campaigns)+len(adsets)+len(ads) == 0 {
			return fmt.Errorf("pass at least one of --campaigns, --adsets or --ads")
		}
		return withMeta(cmd, func(deps *app.Deps, start time.Time) (*model.Result, error) {
			bulk, err := deps.Meta.StatusBulk(cmd.Context(), campaigns, adsets, ads)
			if err != nil {
				return nil, err
			}
			if resolveFormat(deps.Config.Format) == render.FormatJSON {
				n := len(bulk.Campaigns) + len(bulk.Adsets) + len(bulk.Ads)
				return newResult(model.KindStatuses, "meta statuses", bulk, n, start), nil
			}
			all := make(map[string]model.ObjectStatus)
			maps.Copy(all, bulk.Campaigns)
			maps.Copy(all, bulk.Adsets)
			maps.Copy(all, bulk.Ads)
			return newResult(model.KindStatuses, "meta statuses", all, len(all), start), nil
		})
	},
}

// withMeta resolves deps, checks the Meta token and renders what fn returns.
func withMeta(cmd *cobra.Command, fn func(*app.Deps, time.Time) (*model.Result, error)) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()
	if err := deps.Config.RequireMeta(); err != nil {
		return err
	}
	result, err := fn(deps, time.Now())
	if err != nil {
		return err
	}
	return emit(cmd.OutOrStdout(), deps, result)
}

func actionResult(action, id, newID string, err error, detail map[string]any) model.ActionResult {
	r := model.ActionResult{Action: action, ID: id, OK: err == nil, NewID: newID, Detail: detail}
	if err != nil {
		if r.Detail == nil {
			r.Detail = map[string]any{}
		}
		r.Detail["error"] = err.Error()
	}
	return r
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	metaStatusCmd.Flags().StringVar(&metaFlags.Set, "set", "", "change status to ACTIVE or PAUSED")

	metaCopyAdCmd.Flags().StringVar(&metaFlags.Adset, "adset", "", "destination ad set id (required)")
	metaCopyAdCmd.Flags().StringVar(&metaFlags.RenameStrategy, "rename-strategy", "", "DEEP_RENAME|ONLY_TOP_LEVEL_RENAME|NO_RENAME")
	metaCopyAdCmd.Flags().StringVar(&metaFlags.RenameOptions, "rename-options", "", "rename options as a JSON object")
	_ = metaCopyAdCmd.MarkFlagRequired("adset")
	for _, c := range []*cobra.Command{metaCopyAdCmd, metaCopyAdsetCmd} {
		c.Flags().StringVar(&metaFlags.StatusOption, "status-option", "", "ACTIVE|PAUSED|INHERITED_FROM_SOURCE")
	}

	metaDeleteAdCmd.Flags().BoolVar(&metaFlags.Yes, "yes", false, "confirm deletion")

	metaStatusesCmd.Flags().StringSliceVar(&metaFlags.Campaigns, "campaigns", nil, "campaign ids")
	metaStatusesCmd.Flags().StringSliceVar(&metaFlags.Adsets, "adsets", nil, "ad set ids")
	metaStatusesCmd.Flags().StringSliceVar(&metaFlags.Ads, "ads", nil, "ad ids")

	metaCmd.AddCommand(
		metaStatusCmd,
		metaBudgetCmd,
		metaRenameCmd,
		metaCopyAdCmd,
		metaCopyAdsetCmd,
		metaDeleteAdCmd,
		metaAdsetAdsCmd,
		metaStatusesCmd,
	)
	rootCmd.AddCommand(metaCmd)
}
