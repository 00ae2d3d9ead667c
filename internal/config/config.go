package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// EnvPrefix prefixes every environment override (PERFWATCH_API_BASE_URL, ...)
	EnvPrefix = "PERFWATCH"
)

var (
	// ConfigDir is the global configuration directory (~/.perfwatch)
	ConfigDir string

	// ConfigFile is the YAML configuration file
	ConfigFile string

	// DatabasePath is the SQLite database file for watch history
	DatabasePath string

	// LogFile receives logs while the dashboard owns the terminal
	LogFile string
)

const defaultConfigFile = `# perfwatch configuration
api:
  base_url: ""
  token: ""
  timeout: 30s
  page_size: 500
  cache_ttl: 5m
  cache_max_entries: 256
poll:
  min_interval: 3s
log:
  level: info
  format: console
server:
  listen: ":8089"
`

// Initialize sets up the configuration directory and files
// It creates ~/.perfwatch/ if it doesn't exist
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return initializeIn(filepath.Join(homeDir, ".perfwatch"))
}

func initializeIn(dir string) error {
	ConfigDir = dir
	ConfigFile = filepath.Join(ConfigDir, "config.yaml")
	DatabasePath = filepath.Join(ConfigDir, "perfwatch.db")
	LogFile = filepath.Join(ConfigDir, "perfwatch.log")

	if err := os.MkdirAll(ConfigDir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", ConfigDir, err)
	}

	if _, err := os.Stat(ConfigFile); os.IsNotExist(err) {
		if err := os.WriteFile(ConfigFile, []byte(defaultConfigFile), FilePermissions); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	return nil
}

// Config is the resolved runtime configuration
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Poll   PollConfig   `mapstructure:"poll"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
}

// APIConfig points at the test-management REST API
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Token           string        `mapstructure:"token"`
	Timeout         time.Duration `mapstructure:"timeout"`
	PageSize        int           `mapstructure:"page_size"`
	Insecure        bool          `mapstructure:"insecure"`
	CAFile          string        `mapstructure:"ca_file"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheMaxEntries int           `mapstructure:"cache_max_entries"`
}

type PollConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// SetDefaults registers every known key so env overrides reach Unmarshal
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.page_size", 500)
	v.SetDefault("api.insecure", false)
	v.SetDefault("api.ca_file", "")
	v.SetDefault("api.cache_ttl", 5*time.Minute)
	v.SetDefault("api.cache_max_entries", 256)
	v.SetDefault("poll.min_interval", 3*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("server.listen", ":8089")
}

// Load resolves the configuration from defaults, the YAML file at path
// (skipped when missing), PERFWATCH_* environment variables and any flags
// already bound on v
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values every command depends on
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("api.page_size must be positive, got %d", c.API.PageSize))
	}
	if c.Poll.MinInterval < time.Second {
		errs = append(errs, fmt.Errorf("poll.min_interval must be at least 1s, got %s", c.Poll.MinInterval))
	}
	return errors.Join(errs...)
}
