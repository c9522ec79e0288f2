package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Transcription.APIKey = "test"
	cfg.Creative.APIKey = "test"
	cfg.Entitlements.CreativeQCOrgs = []string{"*"}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithCreativeOrgs restricts creative QC entitlement to the given org ids.
func WithCreativeOrgs(orgs ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Entitlements.CreativeQCOrgs = orgs
	}
}

// WithDLQPolicy overrides the dead-letter retry budget and backoff base.
func WithDLQPolicy(maxRetries, backoffBaseSeconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.DLQ.MaxRetries = maxRetries
		cfg.DLQ.BackoffBaseSeconds = backoffBaseSeconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
