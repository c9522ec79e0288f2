package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateDLQ(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateCreative(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.BatchLimit <= 0 {
		return errors.New("workflow.batch_limit must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.JobTimeoutSeconds <= 0 {
		return errors.New("workflow.job_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDLQ() error {
	if c.DLQ.MaxRetries < 0 {
		return errors.New("dlq.max_retries must not be negative")
	}
	if c.DLQ.BackoffBaseSeconds <= 0 {
		return errors.New("dlq.backoff_base_seconds must be positive")
	}
	if c.DLQ.BackoffCapSeconds < c.DLQ.BackoffBaseSeconds {
		return fmt.Errorf("dlq.backoff_cap_seconds must be at least dlq.backoff_base_seconds (%d)", c.DLQ.BackoffBaseSeconds)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if !c.Transcription.Enabled {
		return nil
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		return errors.New("transcription.timeout_seconds must be positive when transcription is enabled")
	}
	if c.Transcription.MaxMediaBytes <= 0 {
		return errors.New("transcription.max_media_bytes must be positive when transcription is enabled")
	}
	return nil
}

func (c *Config) validateCreative() error {
	if strings.TrimSpace(c.Creative.APIKey) == "" {
		// Creative QC degrades to disabled without a key; nothing to check.
		return nil
	}
	if strings.TrimSpace(c.Creative.Model) == "" {
		return errors.New("creative.model must be set when creative.api_key is configured")
	}
	if c.Creative.TimeoutSeconds <= 0 {
		return errors.New("creative.timeout_seconds must be positive")
	}
	return nil
}
