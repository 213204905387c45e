package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envFile    string
	envPrefix  string
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    ".env",
		envPrefix:  "PINSYNC",
	}
}

// WithEnvFile overrides the dotenv file read before the environment.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load reads configuration from defaults, file, dotenv and environment, in
// that order of increasing precedence.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDotenv(); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := l.newViper()

	if err := l.readFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFile returns the file that was read, if any.
func (l *Loader) ConfigFile() string {
	return l.configPath
}

func (l *Loader) newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func (l *Loader) readFile(v *viper.Viper) error {
	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		return nil
	}

	v.SetConfigName("pinsync")
	for _, dir := range l.defaultDirs() {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("load config file %s: %w", v.ConfigFileUsed(), err)
	}
	l.configPath = v.ConfigFileUsed()
	return nil
}

func (l *Loader) loadDotenv() error {
	if l.envFile == "" {
		return nil
	}
	if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// defaultDirs returns default config file locations.
func (l *Loader) defaultDirs() []string {
	dirs := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".config", "pinsync"),
			filepath.Join(homeDir, ".pinsync"),
		)
	}

	return dirs
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.ipfs_url", d.API.IPFSURL)
	v.SetDefault("api.cluster_url", d.API.ClusterURL)
	v.SetDefault("api.pinning_url", d.API.PinningURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.max_retries", d.API.MaxRetries)
	v.SetDefault("api.user_agent", d.API.UserAgent)
	v.SetDefault("api.username", d.API.Username)
	v.SetDefault("api.password", d.API.Password)
	v.SetDefault("api.token", d.API.Token)
	v.SetDefault("api.insecure_skip_verify", d.API.InsecureSkipVerify)

	v.SetDefault("visibility.attempts", d.Visibility.Attempts)
	v.SetDefault("visibility.base_delay", d.Visibility.BaseDelay)
	v.SetDefault("visibility.step", d.Visibility.Step)

	v.SetDefault("upload.max_file_size", d.Upload.MaxFileSize)
	v.SetDefault("upload.follow_symlinks", d.Upload.FollowSymlinks)
	v.SetDefault("upload.include_hidden", d.Upload.IncludeHidden)

	v.SetDefault("state.backend", d.State.Backend)
	v.SetDefault("state.data_dir", d.State.DataDir)
	v.SetDefault("state.path", d.State.Path)
	v.SetDefault("state.s3_bucket", d.State.S3Bucket)
	v.SetDefault("state.s3_prefix", d.State.S3Prefix)

	v.SetDefault("wallet.provider", d.Wallet.Provider)
	v.SetDefault("wallet.url", d.Wallet.URL)
	v.SetDefault("wallet.account", d.Wallet.Account)
	v.SetDefault("wallet.timeout", d.Wallet.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.color", d.Log.Color)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}

// SaveExample writes an example config file. The format follows the file
// extension (json, yaml, toml).
func SaveExample(path string) error {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return os.Chmod(path, 0600)
}
