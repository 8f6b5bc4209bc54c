package cmd

import (
	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/analyze"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/chart"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/dashboard"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/render"
)

// completionCmd wraps Cobra's built-in shell completion generator.
// Running `arbdash completion bash` prints a script the user can source.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for arbdash.

To load completions in the current shell session:

  # bash
  source <(arbdash completion bash)

  # zsh
  source <(arbdash completion zsh)

  # fish
  arbdash completion fish | source

Persist across sessions by adding the source line to your shell profile
(~/.bashrc, ~/.zshrc, ~/.config/fish/completions/arbdash.fish, etc.).`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(cmd.OutOrStdout(), true)
		case "zsh":
			return root.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return root.GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		default:
			return cmd.Help()
		}
	},
}

// fixedValues completes a flag from a closed set of values.
func fixedValues(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// registerCompletions attaches value completion to enum-like flags. It runs
// from Execute, after every init has defined its flags.
func registerCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("format", fixedValues(
		render.FormatTable, render.FormatJSON, render.FormatJSONL,
		render.FormatCSV, render.FormatTSV, render.FormatMD,
	))
	groups := fixedValues(dashboard.GroupAdset, dashboard.GroupAd, dashboard.GroupNone, groupDate)
	_ = reportCmd.RegisterFlagCompletionFunc("group", groups)
	_ = importCmd.RegisterFlagCompletionFunc("group", groups)
	_ = viewSaveCmd.RegisterFlagCompletionFunc("group", groups)
	_ = reportCmd.RegisterFlagCompletionFunc("chart", fixedValues("bar", "line"))
	_ = reportCmd.RegisterFlagCompletionFunc("metric", fixedValues(
		chart.MetricProfit, chart.MetricSpend, chart.MetricRevenue, chart.MetricROAS,
	))
	_ = reportCmd.RegisterFlagCompletionFunc("trend-method", fixedValues(analyze.MethodOLS, analyze.MethodTheilSen))
	_ = metaStatusCmd.RegisterFlagCompletionFunc("set", fixedValues("ACTIVE", "PAUSED"))
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
