package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/app"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/store"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/watch"
)

var rulesFlags struct {
	Account  string
	Name     string
	AdsetIDs []string
	CPA      string
	Spend    string
	Yes      bool
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage CPA and spend watch rules per ad-set group",
	Long: `A watch rule binds a named group of ad sets to an optional maximum CPA and
an optional maximum spend. The watcher pauses every ad set in a group once
the group breaks either limit.

Rules are stored per ad account in the local database, or in Redis when
rule_backend is "redis".`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the watch rules of an account",
	Example: `  arbdash rules list --account act_123
  arbdash rules list --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(cmd, func(deps *app.Deps, doc model.RuleDocument) (*model.RuleDocument, error) {
			return &doc, nil
		})
	},
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <group-key>",
	Short: "Start watching an ad-set group (replaces an existing rule)",
	Example: `  arbdash rules enable promo-x --name "Promo X" --adsets 120210001,120210002 --cpa 12.5
  arbdash rules enable promo-y --adsets 120210003 --spend 300`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cpa, spend, err := ruleThresholds()
		if err != nil {
			return err
		}
		return withRules(cmd, func(deps *app.Deps, doc model.RuleDocument) (*model.RuleDocument, error) {
			next, err := watch.Enable(doc.Rules, model.WatchRule{
				GroupKey:  args[0],
				GroupName: rulesFlags.Name,
				AdsetIDs:  splitIDs(rulesFlags.AdsetIDs),
				MaxCPA:    cpa,
				MaxSpend:  spend,
			})
			if err != nil {
				return nil, err
			}
			return saveRules(cmd, deps, next)
		})
	},
}

var rulesDisableCmd = &cobra.Command{
	Use:     "disable <group-key>",
	Short:   "Stop watching an ad-set group",
	Example: `  arbdash rules disable promo-x`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(cmd, func(deps *app.Deps, doc model.RuleDocument) (*model.RuleDocument, error) {
			return saveRules(cmd, deps, watch.Disable(doc.Rules, args[0]))
		})
	},
}

var rulesSetCmd = &cobra.Command{
	Use:   "set <group-key>",
	Short: "Change the limits of a watched group",
	Long: `Set replaces both limits of a watched group. Pass "none" (or omit the
flag) to clear a limit.`,
	Example: `  arbdash rules set promo-x --cpa 10
  arbdash rules set promo-x --cpa none --spend 250,00`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cpa, spend, err := ruleThresholds()
		if err != nil {
			return err
		}
		return withRules(cmd, func(deps *app.Deps, doc model.RuleDocument) (*model.RuleDocument, error) {
			next, err := watch.SetThresholds(doc.Rules, args[0], cpa, spend)
			if err != nil {
				return nil, err
			}
			return saveRules(cmd, deps, next)
		})
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:     "delete",
	Short:   "Delete every rule of an account",
	Example: `  arbdash rules delete --account act_123 --yes`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !rulesFlags.Yes {
			return fmt.Errorf("refusing to delete all rules of %s without --yes", rulesAccount(nil))
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireRules(cmd.Context()); err != nil {
			return err
		}
		account := rulesAccount(deps)
		if err := deps.Rules.Delete(cmd.Context(), account); err != nil {
			return fmt.Errorf("deleting rules: %w", err)
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted all rules of %s\n", account)
		}
		return nil
	},
}

// withRules loads the account's rule document, hands it to fn and renders
// the document fn returns.
func withRules(cmd *cobra.Command, fn func(*app.Deps, model.RuleDocument) (*model.RuleDocument, error)) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()
	if err := deps.RequireRules(cmd.Context()); err != nil {
		return err
	}

	start := time.Now()
	doc, err := deps.Rules.Load(cmd.Context(), rulesAccount(deps))
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	if doc.Rules == nil {
		doc.Rules = model.RuleSet{}
	}
	out, err := fn(deps, doc)
	if err != nil {
		return err
	}
	return emit(cmd.OutOrStdout(), deps, newResult(model.KindRules, cmd.CommandPath(), out, len(out.Rules), start))
}

func saveRules(cmd *cobra.Command, deps *app.Deps, rules model.RuleSet) (*model.RuleDocument, error) {
	doc, err := deps.Rules.Save(cmd.Context(), rulesAccount(deps), rules)
	if err != nil {
		return nil, fmt.Errorf("saving rules: %w", err)
	}
	return &doc, nil
}

// rulesAccount picks --account, then the first configured account, then
// the shared default document.
func rulesAccount(deps *app.Deps) string {
	var configured string
	if deps != nil {
		configured = firstAccount(deps.Config.AccountIDs)
	}
	if a := firstNonEmpty(rulesFlags.Account, configured); a != "" {
		return a
	}
	return store.DefaultAccount
}

func ruleThresholds() (cpa, spend *float64, err error) {
	if cpa, err = parseThreshold(rulesFlags.CPA, "--cpa"); err != nil {
		return nil, nil, err
	}
	if spend, err = parseThreshold(rulesFlags.Spend, "--spend"); err != nil {
		return nil, nil, err
	}
	return cpa, spend, nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rulesCmd.PersistentFlags().StringVar(&rulesFlags.Account, "account", "",
		"ad account id (default: first configured account, else \"default\")")

	rulesEnableCmd.Flags().StringVar(&rulesFlags.Name, "name", "", "display name (default: the group key)")
	rulesEnableCmd.Flags().StringSliceVar(&rulesFlags.AdsetIDs, "adsets", nil, "ad set ids in the group (repeatable or comma-separated)")
	for _, c := range []*cobra.Command{rulesEnableCmd, rulesSetCmd} {
		c.Flags().StringVar(&rulesFlags.CPA, "cpa", "", "maximum cost per result, e.g. 12,50 (\"none\" clears)")
		c.Flags().StringVar(&rulesFlags.Spend, "spend", "", "maximum spend, e.g. 300 (\"none\" clears)")
	}
	rulesDeleteCmd.Flags().BoolVar(&rulesFlags.Yes, "yes", false, "confirm deletion")

	rulesCmd.AddCommand(rulesListCmd, rulesEnableCmd, rulesDisableCmd, rulesSetCmd, rulesDeleteCmd)
	rootCmd.AddCommand(rulesCmd)
}
