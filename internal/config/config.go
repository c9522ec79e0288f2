package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Log contains structured logging configuration.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Workflow contains batch processor timing and sizing.
type Workflow struct {
	BatchLimit         int    `toml:"batch_limit"`
	QueueTickSchedule  string `toml:"queue_tick_schedule"`
	HeartbeatInterval  int    `toml:"heartbeat_interval"`
	HeartbeatTimeout   int    `toml:"heartbeat_timeout"`
	JobTimeoutSeconds  int    `toml:"job_timeout_seconds"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
}

// DLQ contains dead-letter retry and purge policy.
type DLQ struct {
	MaxRetries          int `toml:"max_retries"`
	BackoffBaseSeconds  int `toml:"backoff_base_seconds"`
	BackoffCapSeconds   int `toml:"backoff_cap_seconds"`
	PurgeDefaultAgeDays int `toml:"purge_default_age_days"`
}

// Transcription contains configuration for the transcription provider.
type Transcription struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxMediaBytes  int64  `toml:"max_media_bytes"`
}

// Creative contains configuration for the creative-scoring providers.
// The secondary model is a reduced-fidelity fallback used when the primary
// provider is unavailable.
type Creative struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	SecondaryModel string `toml:"secondary_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Entitlements is a static stand-in for the subscription service: it answers
// whether creative QC is licensed and toggled on for an organization.
type Entitlements struct {
	CreativeQCOrgs     []string `toml:"creative_qc_orgs"`
	CreativeQCDisabled []string `toml:"creative_qc_disabled"`
}

// Config is the root configuration object, constructed once at process start
// and passed by reference. No component reads ambient environment state.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Log           Log           `toml:"log"`
	Workflow      Workflow      `toml:"workflow"`
	DLQ           DLQ           `toml:"dlq"`
	Transcription Transcription `toml:"transcription"`
	Creative      Creative      `toml:"creative"`
	Entitlements  Entitlements  `toml:"entitlements"`
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	return expandPath("~/.config/alokickflow/config.toml")
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. The returned bool reports whether a file was loaded.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultConfigPath()
	}
	resolved = expandPath(resolved)

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.normalize()
			return &cfg, false, nil
		}
		return nil, false, fmt.Errorf("read config %s: %w", resolved, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("parse config %s: %w", resolved, err)
	}
	cfg.normalize()
	return &cfg, true, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	resolved := expandPath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(resolved); err == nil {
		return fmt.Errorf("config file already exists at %s", resolved)
	}
	if err := os.WriteFile(resolved, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(expandPath(dir), 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(expandPath(c.Paths.DataDir), "qc.db")
}

// CreativeQCEnabled reports whether creative QC is licensed and toggled on
// for the organization.
func (c *Config) CreativeQCEnabled(orgID string) bool {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return false
	}
	for _, disabled := range c.Entitlements.CreativeQCDisabled {
		if strings.EqualFold(strings.TrimSpace(disabled), orgID) {
			return false
		}
	}
	for _, allowed := range c.Entitlements.CreativeQCOrgs {
		trimmed := strings.TrimSpace(allowed)
		if trimmed == "*" || strings.EqualFold(trimmed, orgID) {
			return true
		}
	}
	return false
}

func (c *Config) normalize() {
	c.Paths.DataDir = expandPath(strings.TrimSpace(c.Paths.DataDir))
	c.Paths.LogDir = expandPath(strings.TrimSpace(c.Paths.LogDir))
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	c.Creative.BaseURL = strings.TrimRight(strings.TrimSpace(c.Creative.BaseURL), "/")
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
