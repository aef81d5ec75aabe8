// Package config holds the typed configuration record the core pipeline
// is driven by, loaded from a JSON file with sensible defaults — the same
// shape and Load/Save contract as the teacher's own config package.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Config holds all extractor configuration.
type Config struct {
	Backup        BackupConfig        `json:"backup"`
	Output        OutputConfig        `json:"output"`
	Transcoder    TranscoderConfig    `json:"transcoder"`
	History       HistoryConfig       `json:"history"`
	Logging       LoggingConfig       `json:"logging"`
	Notifications NotificationsConfig `json:"notifications"`
	CronSchedule  string              `json:"cron_schedule,omitempty"`
}

// BackupConfig controls backup discovery and selection.
type BackupConfig struct {
	SearchRoot     string `json:"search_root"`
	DeviceFilter   string `json:"device_filter,omitempty"`
	IncludeTrashed bool   `json:"include_trashed"`
}

// OutputConfig controls where and how converted files are written.
type OutputConfig struct {
	Root              string `json:"root"`
	PreserveOriginals bool   `json:"preserve_originals"`
	EmitSidecars      bool   `json:"emit_sidecars"`
}

// TranscoderConfig locates the external ffmpeg/ffprobe binaries.
type TranscoderConfig struct {
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
	FFprobePath string `json:"ffprobe_path,omitempty"`
}

// HistoryConfig controls the local run-history ledger.
type HistoryConfig struct {
	DBPath string `json:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"` // "json" or "text"
	OutputPath string `json:"output_path"`
}

// NotificationsConfig holds notification configuration.
type NotificationsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Email    EmailConfig    `json:"email"`
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// EmailConfig holds SMTP email configuration.
type EmailConfig struct {
	Enabled    bool   `json:"enabled"`
	SMTPHost   string `json:"smtp_host"`
	SMTPPort   int    `json:"smtp_port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	FromEmail  string `json:"from_email"`
	FromName   string `json:"from_name"`
	ToEmails   string `json:"to_emails"` // Comma-separated list
	UseTLS     bool   `json:"use_tls"`
	SkipVerify bool   `json:"skip_verify"`
}

// DefaultConfig returns a configuration with sensible defaults, using the
// platform-appropriate backup search root from SPEC_FULL.md section 6.
func DefaultConfig() *Config {
	return &Config{
		Backup: BackupConfig{
			SearchRoot:     DefaultBackupRoot(),
			IncludeTrashed: true,
		},
		Output: OutputConfig{
			Root:              "./voicemails",
			PreserveOriginals: false,
			EmitSidecars:      true,
		},
		Transcoder: TranscoderConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		History: HistoryConfig{
			DBPath: "./vmxtract-history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Notifications: NotificationsConfig{
			Telegram: TelegramConfig{Enabled: false},
			Email: EmailConfig{
				Enabled:  false,
				SMTPPort: 587,
				FromName: "vmxtract",
				UseTLS:   true,
			},
		},
	}
}

// Load loads configuration from a JSON file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate performs the fail-fast checks that map to exit code 2. It does
// not check backup-specific things (those are Discovery/Validator's job);
// it only checks that the configuration itself is internally consistent
// and actionable.
func (c *Config) Validate() error {
	if c.Backup.SearchRoot == "" {
		return fmt.Errorf("backup search root must not be empty")
	}
	if c.Output.Root == "" {
		return fmt.Errorf("output root must not be empty")
	}
	if err := os.MkdirAll(c.Output.Root, 0755); err != nil {
		return fmt.Errorf("output root %q is not creatable: %w", c.Output.Root, err)
	}

	ffmpeg := c.Transcoder.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpeg); err != nil {
		if !filepath.IsAbs(ffmpeg) {
			return fmt.Errorf("ffmpeg not found on PATH and no absolute path configured: %w", err)
		}
		if _, statErr := os.Stat(ffmpeg); statErr != nil {
			return fmt.Errorf("configured ffmpeg path %q does not exist: %w", ffmpeg, statErr)
		}
	}

	return nil
}
