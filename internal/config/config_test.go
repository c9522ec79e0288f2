package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, loaded, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded {
		t.Fatal("expected loaded=false for missing file")
	}
	if cfg.Workflow.BatchLimit <= 0 {
		t.Fatalf("expected default batch limit, got %d", cfg.Workflow.BatchLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = " /tmp/alokickflow-data "
log_dir = "/tmp/alokickflow-logs"

[workflow]
batch_limit = 5

[creative]
api_key = "key"
model = "scorer-v2"
base_url = "https://api.example.com/"
timeout_seconds = 30
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded {
		t.Fatal("expected loaded=true")
	}
	if cfg.Paths.DataDir != "/tmp/alokickflow-data" {
		t.Fatalf("expected trimmed data dir, got %q", cfg.Paths.DataDir)
	}
	if cfg.Workflow.BatchLimit != 5 {
		t.Fatalf("expected batch limit 5, got %d", cfg.Workflow.BatchLimit)
	}
	if cfg.Creative.BaseURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash stripped, got %q", cfg.Creative.BaseURL)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("paths = [broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := config.Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		detail string
	}{
		{"missing data dir", func(c *config.Config) { c.Paths.DataDir = "" }, "data_dir"},
		{"zero batch limit", func(c *config.Config) { c.Workflow.BatchLimit = 0 }, "batch_limit"},
		{"timeout below interval", func(c *config.Config) { c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval }, "heartbeat_timeout"},
		{"zero job timeout", func(c *config.Config) { c.Workflow.JobTimeoutSeconds = 0 }, "job_timeout"},
		{"negative retries", func(c *config.Config) { c.DLQ.MaxRetries = -1 }, "max_retries"},
		{"cap below base", func(c *config.Config) { c.DLQ.BackoffCapSeconds = c.DLQ.BackoffBaseSeconds - 1 }, "backoff_cap"},
		{"creative key without model", func(c *config.Config) {
			c.Creative.APIKey = "key"
			c.Creative.Model = ""
		}, "creative.model"},
		{"transcription enabled without limits", func(c *config.Config) {
			c.Transcription.Enabled = true
			c.Transcription.MaxMediaBytes = 0
		}, "max_media_bytes"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.detail) {
				t.Fatalf("expected error mentioning %q, got %v", tc.detail, err)
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatalf("sample config missing paths section: %s", data)
	}

	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when file already exists")
	}
}

func TestCreativeQCEnabledHonorsWildcardAndDisableList(t *testing.T) {
	cfg := config.Default()
	cfg.Entitlements.CreativeQCOrgs = []string{"org-a", "org-b"}
	cfg.Entitlements.CreativeQCDisabled = []string{"org-b"}

	if !cfg.CreativeQCEnabled("org-a") {
		t.Fatal("expected org-a enabled")
	}
	if !cfg.CreativeQCEnabled("ORG-A") {
		t.Fatal("expected case-insensitive match")
	}
	if cfg.CreativeQCEnabled("org-b") {
		t.Fatal("expected disable list to win over allow list")
	}
	if cfg.CreativeQCEnabled("org-c") {
		t.Fatal("expected unlisted org disabled")
	}
	if cfg.CreativeQCEnabled("") {
		t.Fatal("expected empty org disabled")
	}

	cfg.Entitlements.CreativeQCOrgs = []string{"*"}
	if !cfg.CreativeQCEnabled("org-c") {
		t.Fatal("expected wildcard to enable any org")
	}
	if cfg.CreativeQCEnabled("org-b") {
		t.Fatal("expected disable list to win over wildcard")
	}
}
