package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Yoto     YotoConfig     `toml:"yoto"`
	Uploads  UploadsConfig  `toml:"uploads"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Tools    ToolsConfig    `toml:"tools"`
}

// YotoConfig contains Yoto API credentials and client tuning.
type YotoConfig struct {
	ClientID     string  `toml:"client_id"`
	BaseURL      string  `toml:"base_url"`
	AuthBaseURL  string  `toml:"auth_base_url"`
	MaxRetries   int     `toml:"max_retries"`
	RetryDelay   float64 `toml:"retry_delay_seconds"`
	RetryBackoff float64 `toml:"retry_backoff"`
	RateLimit    float64 `toml:"rate_limit_per_second"`
	PollInterval float64 `toml:"transcode_poll_seconds"`
	PollAttempts int     `toml:"transcode_poll_attempts"`
}

// UploadsConfig contains upload pipeline settings.
type UploadsConfig struct {
	Workers             int     `toml:"workers"`
	TempDir             string  `toml:"temp_dir"`
	SessionExpiryHours  float64 `toml:"session_expiry_hours"`
	TargetLUFS          float64 `toml:"target_lufs"`
	SegmentSeconds      float64 `toml:"segment_seconds"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ToolsConfig contains paths to external binaries the pipeline shells out to.
type ToolsConfig struct {
	FFmpegPath string `toml:"ffmpeg_path"`
	YTDLPath   string `toml:"ytdlp_path"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
