// Package config loads cortexd's JSON configuration file and applies
// environment-variable overrides, per spec §6.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// ArchiveConfig mirrors the conversationArchive config block.
type ArchiveConfig struct {
	Enabled           bool `json:"enabled"`
	LinesToKeep       int  `json:"linesToKeep"`
	SizeThreshold     int  `json:"sizeThreshold"`
	TimeThresholdDays int  `json:"timeThresholdDays"`
}

// EmailConfig mirrors the email config block consumed by pkg/schedulers.
type EmailConfig struct {
	Enabled    bool     `json:"enabled"`
	Recipients []string `json:"recipients"`
	Cron       string   `json:"cron" env:"EMAIL_CRON"`
}

// Config is the fully defaulted runtime configuration, per spec §6's
// documented key list, supplemented with the gateway/scheduler extensions
// from SPEC_FULL.md §4.11/4.12/4.13.
type Config struct {
	SubstratePath    string `json:"substratePath" env:"SUBSTRATE_PATH"`
	WorkingDirectory string `json:"workingDirectory"`
	SourceCodePath   string `json:"sourceCodePath"`
	BackupPath       string `json:"backupPath"`
	Port             int    `json:"port" env:"PORT"`

	Model          string `json:"model"`
	StrategicModel string `json:"strategicModel"`
	TacticalModel  string `json:"tacticalModel"`

	Mode                  string `json:"mode"`
	AutoStartOnFirstRun   bool   `json:"autoStartOnFirstRun"`
	AutoStartAfterRestart bool   `json:"autoStartAfterRestart"`

	BackupRetentionCount int    `json:"backupRetentionCount"`
	BackupCron           string `json:"backupCron" env:"BACKUP_CRON"`
	HealthCron           string `json:"healthCron" env:"HEALTH_CRON"`

	SuperegoAuditInterval    int64 `json:"superegoAuditInterval" env:"SUPEREGO_AUDIT_INTERVAL"`
	AutonomyReminderInterval int64 `json:"autonomyReminderInterval" env:"AUTONOMY_REMINDER_INTERVAL"`

	ConversationArchive ArchiveConfig `json:"conversationArchive"`
	Email               EmailConfig   `json:"email"`

	BearerToken          string `json:"-" env:"API_BEARER_TOKEN"`
	GatewaySlackToken    string `json:"-" env:"GATEWAY_SLACK_TOKEN"`
	GatewaySlackAppToken string `json:"-" env:"GATEWAY_SLACK_APP_TOKEN"`
}

// Default returns a Config with every spec §6 documented default applied.
func Default() *Config {
	return &Config{
		SubstratePath:            "substrate",
		Port:                     3000,
		Mode:                     "cycle",
		AutoStartOnFirstRun:      false,
		AutoStartAfterRestart:    true,
		BackupRetentionCount:     14,
		BackupCron:               "0 3 * * *",
		HealthCron:               "*/5 * * * *",
		SuperegoAuditInterval:    20,
		AutonomyReminderInterval: 10,
		ConversationArchive: ArchiveConfig{
			Enabled:       false,
			LinesToKeep:   200,
			SizeThreshold: 2000,
		},
		Email: EmailConfig{
			Enabled: false,
			Cron:    "0 8 * * *",
		},
	}
}

// Load reads the JSON config file at path (every key optional; missing keys
// keep their Default() value), then applies env.Parse overrides for the
// tagged fields. A missing file is not an error — Load simply returns the
// defaults with environment overrides applied, so a fresh deployment can
// run entirely off environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}

	return cfg, nil
}
