// Package config handles loading and resolving arbdash configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flags (--meta-token, --joinads-token, ...)
//  2. Environment variables (META_ACCESS_TOKEN, JOINADS_ACCESS_TOKEN, ...)
//  3. A .env file in the current working directory
//  4. config.json in the current working directory
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile    = "config.json"
	DefaultEnvFile       = ".env"
	DefaultFormat        = "table"
	DefaultTimeout       = 30 * time.Second
	DefaultConcurrency   = 4
	DefaultRate          = 5.0
	DefaultWatchInterval = 2 * time.Minute
	DefaultCacheTTL      = 10 * time.Minute
	DefaultListenAddr    = ":8080"
	DefaultMetaBaseURL   = "https://graph.facebook.com/v24.0"
	DefaultJoinadsURL    = "https://office.joinads.me/api/clients-endpoints"

	BackendBolt  = "bolt"
	BackendRedis = "redis"

	EnvMetaToken    = "META_ACCESS_TOKEN"
	EnvMetaTokenAlt = "META_TOKEN"
	EnvJoinadsToken = "JOINADS_ACCESS_TOKEN"
	EnvDBPath       = "ARBDASH_DB_PATH"
	EnvRedisURL     = "ARBDASH_REDIS_URL"
	EnvCronSecret   = "CPA_CRON_SECRET"
	EnvCurrencyRate = "ARBDASH_USD_BRL"
	EnvAccountID    = "ARBDASH_ACCOUNT_ID"
	EnvListenAddr   = "ARBDASH_LISTEN_ADDR"
)

// File is the on-disk representation of config.json.
type File struct {
	MetaAccessToken    string   `json:"meta_access_token"`
	JoinadsAccessToken string   `json:"joinads_access_token"`
	MetaBaseURL        string   `json:"meta_base_url,omitempty"`
	JoinadsBaseURL     string   `json:"joinads_base_url,omitempty"`
	DefaultFormat      string   `json:"default_format"`
	Timeout            string   `json:"timeout"`
	Concurrency        int      `json:"concurrency"`
	Rate               float64  `json:"rate"`
	DBPath             string   `json:"db_path,omitempty"`
	RuleBackend        string   `json:"rule_backend"`
	RedisURL           string   `json:"redis_url,omitempty"`
	CronSecret         string   `json:"cron_secret,omitempty"`
	AccountIDs         []string `json:"account_ids,omitempty"`
	WatchInterval      string   `json:"watch_interval"`
	CurrencyRate       float64  `json:"currency_rate"`
	CacheTTL           string   `json:"cache_ttl"`
	ListenAddr         string   `json:"listen_addr"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	MetaToken     string
	JoinadsToken  string
	MetaBaseURL   string        `validate:"required,url"`
	JoinadsURL    string        `validate:"required,url"`
	Format        string        `validate:"oneof=table json jsonl csv tsv md"`
	Timeout       time.Duration `validate:"gt=0"`
	Concurrency   int           `validate:"gte=1,lte=64"`
	Rate          float64       `validate:"gt=0"`
	DBPath        string
	RuleBackend   string `validate:"oneof=bolt redis"`
	RedisURL      string `validate:"required_if=RuleBackend redis"`
	CronSecret    string
	AccountIDs    []string
	WatchInterval time.Duration `validate:"gte=1s"`
	CurrencyRate  float64       `validate:"gte=0"`
	CacheTTL      time.Duration `validate:"gte=0"`
	ListenAddr    string
	ConfigPath    string // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	NoCache bool
	Refresh bool
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Flags carries the CLI values that take part in resolution.
type Flags struct {
	MetaToken    string
	JoinadsToken string
	DBPath       string
}

// Load resolves configuration from all sources.
func Load(flags Flags) (*Config, error) {
	cfg := &Config{
		MetaBaseURL:   DefaultMetaBaseURL,
		JoinadsURL:    DefaultJoinadsURL,
		Format:        DefaultFormat,
		Timeout:       DefaultTimeout,
		Concurrency:   DefaultConcurrency,
		Rate:          DefaultRate,
		RuleBackend:   BackendBolt,
		WatchInterval: DefaultWatchInterval,
		CacheTTL:      DefaultCacheTTL,
		ListenAddr:    DefaultListenAddr,
	}

	// Layer 1: config.json (lowest priority)
	f, path, err := loadFile()
	switch {
	case err == nil:
		applyFile(cfg, f, path)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	// Layer 2: .env never overrides variables already set in the environment
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", DefaultEnvFile, err)
	}

	// Layer 3: environment
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Layer 4: CLI flags (highest priority)
	if flags.MetaToken != "" {
		cfg.MetaToken = flags.MetaToken
	}
	if flags.JoinadsToken != "" {
		cfg.JoinadsToken = flags.JoinadsToken
	}
	if flags.DBPath != "" {
		cfg.DBPath = flags.DBPath
	}

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".arbdash", "arbdash.db")
		}
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvMetaToken); v != "" {
		cfg.MetaToken = v
	} else if v := os.Getenv(EnvMetaTokenAlt); v != "" {
		cfg.MetaToken = v
	}
	if v := os.Getenv(EnvJoinadsToken); v != "" {
		cfg.JoinadsToken = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv(EnvCronSecret); v != "" {
		cfg.CronSecret = v
	}
	if v := os.Getenv(EnvAccountID); v != "" {
		cfg.AccountIDs = splitAccounts(v)
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvCurrencyRate); v != "" {
		rate, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", "."), 64)
		if err != nil {
			return fmt.Errorf("%s: invalid rate %q", EnvCurrencyRate, v)
		}
		cfg.CurrencyRate = rate
	}
	return nil
}

func splitAccounts(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges and enumerations. Credentials are checked by
// RequireMeta and RequireJoinads since only some commands need them.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireMeta returns an error if the ads-platform token is missing.
func (c *Config) RequireMeta() error {
	if c.MetaToken == "" {
		return errors.New(
			"ads platform access token not found.\n\n" +
				"Set it one of these ways:\n" +
				"  1. CLI flag:        arbdash --meta-token TOKEN ...\n" +
				"  2. Environment:     export META_ACCESS_TOKEN=TOKEN\n" +
				"  3. config.json:     {\"meta_access_token\": \"TOKEN\"}",
		)
	}
	return nil
}

// RequireJoinads returns an error if the analytics token is missing.
func (c *Config) RequireJoinads() error {
	if c.JoinadsToken == "" {
		return errors.New(
			"analytics access token not found.\n\n" +
				"Set it one of these ways:\n" +
				"  1. CLI flag:        arbdash --joinads-token TOKEN ...\n" +
				"  2. Environment:     export JOINADS_ACCESS_TOKEN=TOKEN\n" +
				"  3. config.json:     {\"joinads_access_token\": \"TOKEN\"}",
		)
	}
	return nil
}

// Redact returns s with most characters replaced by asterisks.
// Safe for logging and display.
func Redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// loadFile attempts to read config.json from the current working directory.
// A missing file returns an error wrapping os.ErrNotExist.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config.json not found at %s: %w", path, os.ErrNotExist)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	if f.MetaAccessToken != "" {
		cfg.MetaToken = f.MetaAccessToken
	}
	if f.JoinadsAccessToken != "" {
		cfg.JoinadsToken = f.JoinadsAccessToken
	}
	if f.MetaBaseURL != "" {
		cfg.MetaBaseURL = f.MetaBaseURL
	}
	if f.JoinadsBaseURL != "" {
		cfg.JoinadsURL = f.JoinadsBaseURL
	}
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	setDuration(&cfg.Timeout, f.Timeout)
	setDuration(&cfg.WatchInterval, f.WatchInterval)
	setDuration(&cfg.CacheTTL, f.CacheTTL)
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.RuleBackend != "" {
		cfg.RuleBackend = strings.ToLower(f.RuleBackend)
	}
	if f.RedisURL != "" {
		cfg.RedisURL = f.RedisURL
	}
	if f.CronSecret != "" {
		cfg.CronSecret = f.CronSecret
	}
	if len(f.AccountIDs) > 0 {
		cfg.AccountIDs = f.AccountIDs
	}
	if f.CurrencyRate > 0 {
		cfg.CurrencyRate = f.CurrencyRate
	}
	if f.ListenAddr != "" {
		cfg.ListenAddr = f.ListenAddr
	}
}

func setDuration(dst *time.Duration, s string) {
	if s == "" {
		return
	}
	if d, err := time.ParseDuration(s); err == nil {
		*dst = d
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `arbdash config init`.
func Template() File {
	return File{
		DefaultFormat: DefaultFormat,
		Timeout:       DefaultTimeout.String(),
		Concurrency:   DefaultConcurrency,
		Rate:          DefaultRate,
		RuleBackend:   BackendBolt,
		WatchInterval: DefaultWatchInterval.String(),
		CacheTTL:      DefaultCacheTTL.String(),
		ListenAddr:    DefaultListenAddr,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
