// Package config loads MovieHound settings from defaults, an optional YAML
// file, an optional .env file and MOVIEHOUND_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MOVIEHOUND_SERVER_PORT.
const EnvPrefix = "MOVIEHOUND"

// ErrConfigExists is returned by WriteDefault when the target already exists.
var ErrConfigExists = errors.New("config file already exists")

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Storage      StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Security     SecurityConfig     `mapstructure:"security" yaml:"security"`
	Resolver     ResolverConfig     `mapstructure:"resolver" yaml:"resolver"`
	Rename       RenameConfig       `mapstructure:"rename" yaml:"rename"`
	Jobs         JobsConfig         `mapstructure:"jobs" yaml:"jobs"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping" yaml:"housekeeping"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch" yaml:"dispatch"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration. An empty Path logs to stdout
// only.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// StorageConfig locates the result and pending lists.
type StorageConfig struct {
	ListsDir string `mapstructure:"lists_dir" yaml:"lists_dir"`
}

// SecurityConfig keys the sealing of stored client credentials.
type SecurityConfig struct {
	SecretPassphrase string `mapstructure:"secret_passphrase" yaml:"secret_passphrase"`
	SecretSalt       string `mapstructure:"secret_salt" yaml:"secret_salt"`
}

// ResolverConfig holds source endpoints and per-source pacing.
type ResolverConfig struct {
	DefaultQuality      string        `mapstructure:"default_quality" yaml:"default_quality"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	YTSAPIURL           string        `mapstructure:"yts_api_url" yaml:"yts_api_url"`
	YTSSiteURL          string        `mapstructure:"yts_site_url" yaml:"yts_site_url"`
	IMDbURL             string        `mapstructure:"imdb_url" yaml:"imdb_url"`
	TorrentDownloadsURL string        `mapstructure:"torrentdownloads_url" yaml:"torrentdownloads_url"`
	TorrentDownloadURL  string        `mapstructure:"torrentdownload_url" yaml:"torrentdownload_url"`
	TorrentAPIURL       string        `mapstructure:"torrent_api_url" yaml:"torrent_api_url"`
	TorrentAPISites     []string      `mapstructure:"torrent_api_sites" yaml:"torrent_api_sites"`

	YTSDelay              time.Duration `mapstructure:"yts_delay" yaml:"yts_delay"`
	TorrentDownloadsDelay time.Duration `mapstructure:"torrentdownloads_delay" yaml:"torrentdownloads_delay"`
	TorrentAPIDelay       time.Duration `mapstructure:"torrent_api_delay" yaml:"torrent_api_delay"`
}

// RenameConfig holds the metadata poll period.
type RenameConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// JobsConfig holds refresh job settings.
type JobsConfig struct {
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

// HousekeepingConfig schedules the duplicate sweep.
type HousekeepingConfig struct {
	CleanupCron string `mapstructure:"cleanup_cron" yaml:"cleanup_cron"`
	RunOnStart  bool   `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// DispatchConfig paces adds to a download client.
type DispatchConfig struct {
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3001,
		},
		Database: DatabaseConfig{
			Path: "./data/moviehound.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Storage: StorageConfig{
			ListsDir: "./lists",
		},
		Resolver: ResolverConfig{
			DefaultQuality:      "1080p",
			HTTPTimeout:         10 * time.Second,
			YTSAPIURL:           "https://yts.lt/api/v2",
			YTSSiteURL:          "https://yts.lt",
			IMDbURL:             "https://www.imdb.com",
			TorrentDownloadsURL: "https://www.torrentdownloads.pro",
			TorrentDownloadURL:  "https://www.torrentdownload.info",
			TorrentAPIURL:       "http://localhost:8009",
			TorrentAPISites:     []string{"torrentproject", "kickass", "piratebay", "glodls", "bitsearch", "torlock"},

			YTSDelay:              300 * time.Millisecond,
			TorrentDownloadsDelay: 400 * time.Millisecond,
			TorrentAPIDelay:       500 * time.Millisecond,
		},
		Rename: RenameConfig{
			PollInterval: 5 * time.Second,
		},
		Jobs: JobsConfig{
			Retention: 5 * time.Minute,
		},
		Housekeeping: HousekeepingConfig{
			CleanupCron: "0 * * * *",
			RunOnStart:  true,
		},
		Dispatch: DispatchConfig{
			Delay: 100 * time.Millisecond,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	// A missing .env is the common case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.moviehound")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every default with viper so that environment
// variables can override keys absent from the config file.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("storage.lists_dir", d.Storage.ListsDir)

	v.SetDefault("security.secret_passphrase", "")
	v.SetDefault("security.secret_salt", "")

	v.SetDefault("resolver.default_quality", d.Resolver.DefaultQuality)
	v.SetDefault("resolver.http_timeout", d.Resolver.HTTPTimeout)
	v.SetDefault("resolver.yts_api_url", d.Resolver.YTSAPIURL)
	v.SetDefault("resolver.yts_site_url", d.Resolver.YTSSiteURL)
	v.SetDefault("resolver.imdb_url", d.Resolver.IMDbURL)
	v.SetDefault("resolver.torrentdownloads_url", d.Resolver.TorrentDownloadsURL)
	v.SetDefault("resolver.torrentdownload_url", d.Resolver.TorrentDownloadURL)
	v.SetDefault("resolver.torrent_api_url", d.Resolver.TorrentAPIURL)
	v.SetDefault("resolver.torrent_api_sites", d.Resolver.TorrentAPISites)
	v.SetDefault("resolver.yts_delay", d.Resolver.YTSDelay)
	v.SetDefault("resolver.torrentdownloads_delay", d.Resolver.TorrentDownloadsDelay)
	v.SetDefault("resolver.torrent_api_delay", d.Resolver.TorrentAPIDelay)

	v.SetDefault("rename.poll_interval", d.Rename.PollInterval)
	v.SetDefault("jobs.retention", d.Jobs.Retention)

	v.SetDefault("housekeeping.cleanup_cron", d.Housekeeping.CleanupCron)
	v.SetDefault("housekeeping.run_on_start", d.Housekeeping.RunOnStart)

	v.SetDefault("dispatch.delay", d.Dispatch.Delay)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Storage.ListsDir == "" {
		return errors.New("storage.lists_dir is required")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WriteDefault writes the default configuration as YAML to path. An
// existing file is left alone unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
