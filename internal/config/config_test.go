package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Output.Root != "./voicemails" {
		t.Errorf("expected output root ./voicemails, got %s", cfg.Output.Root)
	}

	if !cfg.Backup.IncludeTrashed {
		t.Error("expected IncludeTrashed to default to true")
	}

	if cfg.Transcoder.FFmpegPath != "ffmpeg" {
		t.Errorf("expected ffmpeg path 'ffmpeg', got %s", cfg.Transcoder.FFmpegPath)
	}

	if cfg.Backup.SearchRoot == "" {
		t.Error("expected a non-empty default backup search root")
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/non/existent/path.json")
	if err != nil {
		t.Fatalf("expected no error for non-existent file, got %v", err)
	}

	if cfg.Output.Root != "./voicemails" {
		t.Errorf("expected default output root, got %s", cfg.Output.Root)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.Backup.DeviceFilter = "abc123"
	cfg.Output.PreserveOriginals = true

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if loaded.Backup.DeviceFilter != "abc123" {
		t.Errorf("expected device filter 'abc123', got %s", loaded.Backup.DeviceFilter)
	}

	if !loaded.Output.PreserveOriginals {
		t.Error("expected PreserveOriginals to be true after load")
	}
}

func TestValidateRejectsEmptySearchRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backup.SearchRoot = ""

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty search root")
	}
}

func TestValidateRejectsEmptyOutputRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Root = ""

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty output root")
	}
}

func TestValidateCreatesOutputRoot(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output.Root = filepath.Join(tmpDir, "nested", "voicemails")
	cfg.Transcoder.FFmpegPath = "/bin/sh" // guaranteed to exist, stands in for ffmpeg in this test

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	if _, err := os.Stat(cfg.Output.Root); err != nil {
		t.Errorf("expected output root to be created: %v", err)
	}
}
