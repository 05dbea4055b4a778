package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./yotoup.db" {
			t.Errorf("expected database path ./yotoup.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Yoto.BaseURL != "https://api.yotoplay.com" {
			t.Errorf("expected yoto base URL https://api.yotoplay.com, got %s", config.Yoto.BaseURL)
		}

		if config.Uploads.Workers != 4 {
			t.Errorf("expected 4 upload workers, got %d", config.Uploads.Workers)
		}

		if config.Uploads.TargetLUFS != -23.0 {
			t.Errorf("expected target LUFS -23.0, got %f", config.Uploads.TargetLUFS)
		}

		if config.Tools.FFmpegPath != "ffmpeg" {
			t.Errorf("expected ffmpeg path ffmpeg, got %s", config.Tools.FFmpegPath)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		content := `[yoto]
client_id = "abc123"
max_retries = 5

[uploads]
workers = 2
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Yoto.ClientID != "abc123" {
			t.Errorf("expected client_id abc123, got %s", config.Yoto.ClientID)
		}
		if config.Yoto.MaxRetries != 5 {
			t.Errorf("expected max_retries 5, got %d", config.Yoto.MaxRetries)
		}
		if config.Uploads.Workers != 2 {
			t.Errorf("expected 2 workers, got %d", config.Uploads.Workers)
		}

		if _, err := LoadConfig(filepath.Join(tmpDir, "missing.toml")); err == nil {
			t.Error("loading missing config should fail")
		}
	})
}
