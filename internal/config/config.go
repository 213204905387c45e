package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Endpoints of the content store, cluster and pinning service
	API APIConfig `json:"api" mapstructure:"api"`

	// Pin visibility polling
	Visibility VisibilityConfig `json:"visibility" mapstructure:"visibility"`

	// Local file enumeration limits
	Upload UploadConfig `json:"upload" mapstructure:"upload"`

	// Durable local cache
	State StateConfig `json:"state" mapstructure:"state"`

	// Account provider
	Wallet WalletConfig `json:"wallet" mapstructure:"wallet"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`

	// Prometheus exposition
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// APIConfig for server communication.
type APIConfig struct {
	IPFSURL            string        `json:"ipfs_url" mapstructure:"ipfs_url"`
	ClusterURL         string        `json:"cluster_url" mapstructure:"cluster_url"`
	PinningURL         string        `json:"pinning_url" mapstructure:"pinning_url"`
	Timeout            time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries         int           `json:"max_retries" mapstructure:"max_retries"`
	UserAgent          string        `json:"user_agent" mapstructure:"user_agent"`
	Username           string        `json:"username,omitempty" mapstructure:"username"`
	Password           string        `json:"password,omitempty" mapstructure:"password"`
	Token              string        `json:"token,omitempty" mapstructure:"token"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// VisibilityConfig controls how long a new pin is polled for.
type VisibilityConfig struct {
	Attempts  int           `json:"attempts" mapstructure:"attempts"`
	BaseDelay time.Duration `json:"base_delay" mapstructure:"base_delay"`
	Step      time.Duration `json:"step" mapstructure:"step"`
}

// UploadConfig for local folder enumeration.
type UploadConfig struct {
	MaxFileSize    int64 `json:"max_file_size" mapstructure:"max_file_size"`
	FollowSymlinks bool  `json:"follow_symlinks" mapstructure:"follow_symlinks"`
	IncludeHidden  bool  `json:"include_hidden" mapstructure:"include_hidden"`
}

// StateConfig selects the durable key-value backend.
type StateConfig struct {
	Backend  string `json:"backend" mapstructure:"backend"` // json, sqlite, bolt, s3, memory
	DataDir  string `json:"data_dir" mapstructure:"data_dir"`
	Path     string `json:"path,omitempty" mapstructure:"path"` // backend file; derived from data_dir when empty
	S3Bucket string `json:"s3_bucket,omitempty" mapstructure:"s3_bucket"`
	S3Prefix string `json:"s3_prefix,omitempty" mapstructure:"s3_prefix"`
}

// WalletConfig for the account provider.
type WalletConfig struct {
	Provider string        `json:"provider" mapstructure:"provider"` // static, ws
	URL      string        `json:"url,omitempty" mapstructure:"url"`
	Account  string        `json:"account,omitempty" mapstructure:"account"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
	Color  bool   `json:"color" mapstructure:"color"`
}

// MetricsConfig for the Prometheus endpoint.
type MetricsConfig struct {
	Addr      string `json:"addr,omitempty" mapstructure:"addr"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".pinsync"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".pinsync")
	}

	return &Config{
		API: APIConfig{
			IPFSURL:    "http://127.0.0.1:9095",
			ClusterURL: "http://127.0.0.1:9094",
			PinningURL: "http://127.0.0.1:9097",
			Timeout:    2 * time.Minute,
			MaxRetries: 3,
			UserAgent:  "pinsync/1.0",
		},
		Visibility: VisibilityConfig{
			Attempts:  12,
			BaseDelay: 500 * time.Millisecond,
			Step:      300 * time.Millisecond,
		},
		Upload: UploadConfig{
			MaxFileSize: 1024 * 1024 * 1024, // 1GB
		},
		State: StateConfig{
			Backend: "json",
			DataDir: dataDir,
		},
		Wallet: WalletConfig{
			Provider: "static",
			Timeout:  2 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
		Metrics: MetricsConfig{
			Namespace: "pinsync",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.IPFSURL == "" {
		return errors.New("api.ipfs_url is required")
	}

	if c.API.ClusterURL == "" {
		return errors.New("api.cluster_url is required")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must not be negative")
	}

	if c.Visibility.Attempts <= 0 {
		return errors.New("visibility.attempts must be positive")
	}

	if c.Visibility.BaseDelay < 0 || c.Visibility.Step < 0 {
		return errors.New("visibility delays must not be negative")
	}

	if c.Upload.MaxFileSize <= 0 {
		return errors.New("upload.max_file_size must be positive")
	}

	switch c.State.Backend {
	case "json", "sqlite", "bolt":
		if c.State.DataDir == "" && c.State.Path == "" {
			return errors.New("state.data_dir is required")
		}
	case "memory":
	case "s3":
		if c.State.S3Bucket == "" {
			return errors.New("state.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid state backend: %s", c.State.Backend)
	}

	switch c.Wallet.Provider {
	case "static":
	case "ws":
		if c.Wallet.URL == "" {
			return errors.New("wallet.url is required for the ws provider")
		}
	default:
		return fmt.Errorf("invalid wallet provider: %s", c.Wallet.Provider)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// StatePath returns the backend file path, derived from the data directory
// when not set explicitly.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	switch c.State.Backend {
	case "sqlite":
		return filepath.Join(c.State.DataDir, "cache.db")
	case "bolt":
		return filepath.Join(c.State.DataDir, "cache.bolt")
	default:
		return filepath.Join(c.State.DataDir, "cache")
	}
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	var dirs []string

	if c.State.Backend != "s3" {
		if c.State.DataDir != "" {
			dirs = append(dirs, c.State.DataDir)
		}
		if c.State.Path != "" && c.State.Backend != "json" {
			dirs = append(dirs, filepath.Dir(c.State.Path))
		}
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
