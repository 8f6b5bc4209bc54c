package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/config"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/render"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage arbdash configuration",
	Long: `Read and write arbdash configuration stored in config.json.

Values resolve in order: config.json, then .env, then environment variables,
then command-line flags.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		tmpl := config.Template()
		if err := config.WriteFile(path, tmpl); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created %s\n", path)
		fmt.Fprintln(out, "  Set meta_access_token and joinads_access_token to get started,")
		fmt.Fprintf(out, "  or export %s and %s.\n", config.EnvMetaToken, config.EnvJoinadsToken)
		return nil
	},
}

var configGetShowSecrets bool

// configView is the printable form of a resolved Config.
type configView struct {
	MetaToken     string   `json:"meta_access_token"`
	JoinadsToken  string   `json:"joinads_access_token"`
	MetaBaseURL   string   `json:"meta_base_url"`
	JoinadsURL    string   `json:"joinads_base_url"`
	Format        string   `json:"default_format"`
	Timeout       string   `json:"timeout"`
	Concurrency   int      `json:"concurrency"`
	Rate          float64  `json:"rate"`
	DBPath        string   `json:"db_path"`
	RuleBackend   string   `json:"rule_backend"`
	RedisURL      string   `json:"redis_url"`
	CronSecret    string   `json:"cron_secret"`
	AccountIDs    []string `json:"account_ids"`
	WatchInterval string   `json:"watch_interval"`
	CurrencyRate  float64  `json:"currency_rate"`
	CacheTTL      string   `json:"cache_ttl"`
	ListenAddr    string   `json:"listen_addr"`
	ConfigFile    string   `json:"config_file"`
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	Example: `  arbdash config get
  arbdash config get --format json --show-secrets`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Flags{
			MetaToken:    globalFlags.MetaToken,
			JoinadsToken: globalFlags.JoinadsToken,
			DBPath:       globalFlags.DBPath,
		})
		if err != nil {
			return err
		}

		secret := func(s string) string {
			if !configGetShowSecrets {
				s = config.Redact(s)
			}
			if s == "" {
				return "(not set)"
			}
			return s
		}
		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}
		v := configView{
			MetaToken:     secret(cfg.MetaToken),
			JoinadsToken:  secret(cfg.JoinadsToken),
			MetaBaseURL:   cfg.MetaBaseURL,
			JoinadsURL:    cfg.JoinadsURL,
			Format:        cfg.Format,
			Timeout:       cfg.Timeout.String(),
			Concurrency:   cfg.Concurrency,
			Rate:          cfg.Rate,
			DBPath:        cfg.DBPath,
			RuleBackend:   cfg.RuleBackend,
			RedisURL:      secret(cfg.RedisURL),
			CronSecret:    secret(cfg.CronSecret),
			AccountIDs:    cfg.AccountIDs,
			WatchInterval: cfg.WatchInterval.String(),
			CurrencyRate:  cfg.CurrencyRate,
			CacheTTL:      cfg.CacheTTL.String(),
			ListenAddr:    cfg.ListenAddr,
			ConfigFile:    src,
		}

		if resolveFormat(cfg.Format) == render.FormatJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		rate := "(not set)"
		if v.CurrencyRate > 0 {
			rate = strconv.FormatFloat(v.CurrencyRate, 'f', -1, 64)
		}
		printKVTable(cmd.OutOrStdout(), [][]string{
			{"meta_access_token", v.MetaToken},
			{"joinads_access_token", v.JoinadsToken},
			{"meta_base_url", v.MetaBaseURL},
			{"joinads_base_url", v.JoinadsURL},
			{"default_format", v.Format},
			{"timeout", v.Timeout},
			{"concurrency", fmt.Sprintf("%d", v.Concurrency)},
			{"rate", fmt.Sprintf("%.1f req/s", v.Rate)},
			{"db_path", v.DBPath},
			{"rule_backend", v.RuleBackend},
			{"redis_url", v.RedisURL},
			{"cron_secret", v.CronSecret},
			{"account_ids", strings.Join(v.AccountIDs, ", ")},
			{"watch_interval", v.WatchInterval},
			{"currency_rate", rate},
			{"cache_ttl", v.CacheTTL},
			{"listen_addr", v.ListenAddr},
			{"config_file", v.ConfigFile},
		})
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Example: `  arbdash config set currency_rate 5,12
  arbdash config set account_ids act_123,act_456
  arbdash config set rule_backend redis`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])

		// Load existing file or start from template
		var f config.File
		existing, path, err := loadConfigFile()
		if err != nil {
			path = config.DefaultConfigFile
			f = config.Template()
		} else {
			f = *existing
		}

		if err := setConfigValue(&f, key, args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

// setConfigValue assigns one config.json key from its string form.
func setConfigValue(f *config.File, key, val string) error {
	duration := func(dst *string) error {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s must be a duration like 30s or 2m", key)
		}
		*dst = val
		return nil
	}

	switch key {
	case "meta_access_token":
		f.MetaAccessToken = val
	case "joinads_access_token":
		f.JoinadsAccessToken = val
	case "meta_base_url":
		f.MetaBaseURL = val
	case "joinads_base_url":
		f.JoinadsBaseURL = val
	case "default_format", "format":
		f.DefaultFormat = val
	case "timeout":
		return duration(&f.Timeout)
	case "watch_interval":
		return duration(&f.WatchInterval)
	case "cache_ttl":
		return duration(&f.CacheTTL)
	case "concurrency":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("concurrency must be an integer")
		}
		f.Concurrency = n
	case "rate":
		r, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("rate must be a number")
		}
		f.Rate = r
	case "currency_rate":
		d, err := util.ParseMoney(val)
		if err != nil || !d.IsPositive() {
			return fmt.Errorf("currency_rate must be a positive number")
		}
		f.CurrencyRate = d.InexactFloat64()
	case "db_path":
		f.DBPath = val
	case "rule_backend":
		val = strings.ToLower(val)
		if val != config.BackendBolt && val != config.BackendRedis {
			return fmt.Errorf("rule_backend must be %q or %q", config.BackendBolt, config.BackendRedis)
		}
		f.RuleBackend = val
	case "redis_url":
		f.RedisURL = val
	case "cron_secret":
		f.CronSecret = val
	case "account_ids":
		f.AccountIDs = util.SplitList(val)
	case "listen_addr":
		f.ListenAddr = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, strings.Join(configKeys, ", "))
	}
	return nil
}

var configKeys = []string{
	"meta_access_token", "joinads_access_token", "meta_base_url", "joinads_base_url",
	"default_format", "timeout", "concurrency", "rate", "db_path", "rule_backend",
	"redis_url", "cron_secret", "account_ids", "watch_interval", "currency_rate",
	"cache_ttl", "listen_addr",
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show tokens and secrets in plain text")
}

// loadConfigFile reads config.json from cwd; used by configSetCmd.
func loadConfigFile() (*config.File, string, error) {
	path := config.DefaultConfigFile
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var f config.File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", err
	}
	return &f, path, nil
}

// printKVTable renders a two-column key/value table using aligned columns.
func printKVTable(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}
