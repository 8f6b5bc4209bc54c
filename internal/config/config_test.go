package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/config"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// chdir changes the working directory to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

// writeConfig writes a config.json into dir and changes into dir.
func writeConfig(t *testing.T, dir string, f config.File) {
	t.Helper()
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), append(data, '\n'), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, dir)
}

// clearEnv unsets every variable Load reads for the duration of the test.
// The variables are truly unset so a .env file can still fill them.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvMetaToken, config.EnvMetaTokenAlt, config.EnvJoinadsToken,
		config.EnvDBPath, config.EnvRedisURL, config.EnvCronSecret,
		config.EnvCurrencyRate, config.EnvAccountID, config.EnvListenAddr,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// ─── Defaults ─────────────────────────────────────────────────────────────────

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != config.DefaultFormat {
		t.Errorf("Format: expected %q, got %q", config.DefaultFormat, cfg.Format)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("Timeout: expected %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
	if cfg.WatchInterval != 2*time.Minute {
		t.Errorf("WatchInterval: expected 2m, got %v", cfg.WatchInterval)
	}
	if cfg.RuleBackend != config.BackendBolt {
		t.Errorf("RuleBackend: expected bolt, got %q", cfg.RuleBackend)
	}
	if cfg.CurrencyRate != 0 {
		t.Errorf("CurrencyRate should default to unknown (0), got %v", cfg.CurrencyRate)
	}
	if cfg.MetaBaseURL != config.DefaultMetaBaseURL {
		t.Errorf("MetaBaseURL: got %q", cfg.MetaBaseURL)
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath should be empty without config.json, got %q", cfg.ConfigPath)
	}
	if !strings.HasSuffix(cfg.DBPath, filepath.Join(".arbdash", "arbdash.db")) {
		t.Errorf("DBPath: unexpected default %q", cfg.DBPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

// ─── File Layer ───────────────────────────────────────────────────────────────

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, config.File{
		MetaAccessToken:    "filemeta",
		JoinadsAccessToken: "filejoin",
		DefaultFormat:      "json",
		Timeout:            "10s",
		Concurrency:        2,
		Rate:               1.5,
		RuleBackend:        "REDIS",
		RedisURL:           "redis://localhost:6379/0",
		AccountIDs:         []string{"act_1", "act_2"},
		WatchInterval:      "5m",
		CurrencyRate:       5.1,
		CacheTTL:           "1m",
	})

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetaToken != "filemeta" || cfg.JoinadsToken != "filejoin" {
		t.Errorf("tokens: got %q / %q", cfg.MetaToken, cfg.JoinadsToken)
	}
	if cfg.Format != "json" {
		t.Errorf("Format: got %q", cfg.Format)
	}
	if cfg.Timeout != 10*time.Second || cfg.WatchInterval != 5*time.Minute || cfg.CacheTTL != time.Minute {
		t.Errorf("durations: timeout=%v interval=%v ttl=%v", cfg.Timeout, cfg.WatchInterval, cfg.CacheTTL)
	}
	if cfg.RuleBackend != config.BackendRedis {
		t.Errorf("RuleBackend should be lower-cased, got %q", cfg.RuleBackend)
	}
	if len(cfg.AccountIDs) != 2 {
		t.Errorf("AccountIDs: got %v", cfg.AccountIDs)
	}
	if cfg.CurrencyRate != 5.1 {
		t.Errorf("CurrencyRate: got %v", cfg.CurrencyRate)
	}
	if cfg.ConfigPath != filepath.Join(dir, "config.json") {
		// TempDir may be a symlinked path on some systems.
		if !strings.HasSuffix(cfg.ConfigPath, "config.json") {
			t.Errorf("ConfigPath: got %q", cfg.ConfigPath)
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadInvalidTimeoutIgnored(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{Timeout: "soon"})
	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("invalid timeout should keep default, got %v", cfg.Timeout)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	if _, err := config.Load(config.Flags{}); err == nil {
		t.Error("expected error for malformed config.json")
	}
}

// ─── Env / .env / Flags ───────────────────────────────────────────────────────

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{MetaAccessToken: "filemeta", CurrencyRate: 4})
	t.Setenv(config.EnvMetaToken, "envmeta")
	t.Setenv(config.EnvCurrencyRate, "5,25")
	t.Setenv(config.EnvAccountID, "act_1, act_2,")

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetaToken != "envmeta" {
		t.Errorf("MetaToken: expected envmeta, got %q", cfg.MetaToken)
	}
	if cfg.CurrencyRate != 5.25 {
		t.Errorf("CurrencyRate: expected 5.25, got %v", cfg.CurrencyRate)
	}
	if len(cfg.AccountIDs) != 2 || cfg.AccountIDs[1] != "act_2" {
		t.Errorf("AccountIDs: got %v", cfg.AccountIDs)
	}
}

func TestLegacyMetaTokenVariable(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv(config.EnvMetaTokenAlt, "legacy")
	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetaToken != "legacy" {
		t.Errorf("MetaToken: expected legacy, got %q", cfg.MetaToken)
	}
}

func TestInvalidCurrencyRateEnv(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv(config.EnvCurrencyRate, "five")
	if _, err := config.Load(config.Flags{}); err == nil {
		t.Error("expected error for non-numeric currency rate")
	}
}

func TestDotEnvFillsUnsetVariables(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	dotenv := "JOINADS_ACCESS_TOKEN=fromdotenv\nCPA_CRON_SECRET=s3cret\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	t.Setenv(config.EnvCronSecret, "fromenv")

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JoinadsToken != "fromdotenv" {
		t.Errorf("JoinadsToken: expected fromdotenv, got %q", cfg.JoinadsToken)
	}
	if cfg.CronSecret != "fromenv" {
		t.Errorf(".env must not override the environment, got %q", cfg.CronSecret)
	}
}

func TestFlagsOverrideEverything(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{MetaAccessToken: "filemeta"})
	t.Setenv(config.EnvMetaToken, "envmeta")
	t.Setenv(config.EnvDBPath, "/env/arbdash.db")

	cfg, err := config.Load(config.Flags{MetaToken: "flagmeta", DBPath: "/flag/arbdash.db"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetaToken != "flagmeta" {
		t.Errorf("MetaToken: expected flagmeta, got %q", cfg.MetaToken)
	}
	if cfg.DBPath != "/flag/arbdash.db" {
		t.Errorf("DBPath: expected flag value, got %q", cfg.DBPath)
	}
}

// ─── Validate / Require ───────────────────────────────────────────────────────

func validConfig() *config.Config {
	return &config.Config{
		MetaBaseURL:   config.DefaultMetaBaseURL,
		JoinadsURL:    config.DefaultJoinadsURL,
		Format:        "table",
		Timeout:       time.Second,
		Concurrency:   1,
		Rate:          1,
		RuleBackend:   config.BackendBolt,
		WatchInterval: time.Minute,
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *config.Config){
		"format":       func(c *config.Config) { c.Format = "xml" },
		"backend":      func(c *config.Config) { c.RuleBackend = "etcd" },
		"redis url":    func(c *config.Config) { c.RuleBackend = config.BackendRedis },
		"concurrency":  func(c *config.Config) { c.Concurrency = 0 },
		"interval":     func(c *config.Config) { c.WatchInterval = time.Millisecond },
		"negative fx":  func(c *config.Config) { c.CurrencyRate = -1 },
		"base url":     func(c *config.Config) { c.MetaBaseURL = "not a url" },
		"zero timeout": func(c *config.Config) { c.Timeout = 0 },
	}
	for name, mutate := range cases {
		c := validConfig()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestRequireTokens(t *testing.T) {
	c := validConfig()
	if err := c.RequireMeta(); err == nil || !strings.Contains(err.Error(), "META_ACCESS_TOKEN") {
		t.Errorf("RequireMeta should name the env var, got %v", err)
	}
	if err := c.RequireJoinads(); err == nil || !strings.Contains(err.Error(), "JOINADS_ACCESS_TOKEN") {
		t.Errorf("RequireJoinads should name the env var, got %v", err)
	}
	c.MetaToken, c.JoinadsToken = "a", "b"
	if c.RequireMeta() != nil || c.RequireJoinads() != nil {
		t.Error("tokens present: Require* should pass")
	}
}

func TestRedact(t *testing.T) {
	if got := config.Redact("EAABsecretvalue42"); got != "EA****42" {
		t.Errorf("Redact: got %q", got)
	}
	if got := config.Redact("abc"); got != "****" {
		t.Errorf("Redact short: got %q", got)
	}
	if got := config.Redact(""); got != "" {
		t.Errorf("Redact empty: got %q", got)
	}
}

// ─── WriteFile / Template ─────────────────────────────────────────────────────

func TestWriteFileRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)
	tmpl := config.Template()
	tmpl.MetaAccessToken = "roundtrip"
	if err := config.WriteFile(filepath.Join(dir, "config.json"), tmpl); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions: expected 0600, got %v", info.Mode().Perm())
	}

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetaToken != "roundtrip" {
		t.Errorf("MetaToken: got %q", cfg.MetaToken)
	}
	if cfg.WatchInterval != config.DefaultWatchInterval {
		t.Errorf("WatchInterval: got %v", cfg.WatchInterval)
	}
}
