// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Notifier backends
const (
	MemoryNotifier = "memory"
	RedisNotifier  = "redis"
)

// MaxRangeDays is the largest trailing window a dashboard may select.
const MaxRangeDays = 365

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Dashboard settings
	FetchWorkers        int `mapstructure:"fetchworkers"`
	FetchTimeoutSeconds int `mapstructure:"fetchtimeoutseconds"`
	DefaultRangeDays    int `mapstructure:"defaultrangedays"`

	// Change notification settings
	NotifierBackend      string `mapstructure:"notifier"`
	WatchIntervalSeconds int    `mapstructure:"watchintervalseconds"`
	RedisAddr            string `mapstructure:"redisaddr"`
	RedisPassword        string `mapstructure:"redispassword"`
	RedisDB              int    `mapstructure:"redisdb"`
	RedisChannelPrefix   string `mapstructure:"redischannelprefix"`

	// Data retention settings
	RetentionDays int `mapstructure:"retentiondays"`

	// Development helpers
	SeedDemoData bool `mapstructure:"seeddemodata"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "docpulse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("storagepath", "storage")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("fetchworkers", 5)
		v.SetDefault("fetchtimeoutseconds", 30)
		v.SetDefault("defaultrangedays", 30)
		v.SetDefault("notifier", MemoryNotifier)
		v.SetDefault("watchintervalseconds", 5)
		v.SetDefault("redisaddr", "localhost:6379")
		v.SetDefault("redisdb", 0)
		v.SetDefault("redischannelprefix", "docpulse")
		v.SetDefault("retentiondays", 365)
		v.SetDefault("seeddemodata", false)

		v.BindEnv("appname", "DOCPULSE_APP_NAME")
		v.BindEnv("appport", "DOCPULSE_APP_PORT")
		v.BindEnv("environment", "DOCPULSE_ENV")
		v.BindEnv("loglevel", "DOCPULSE_LOG_LEVEL")
		v.BindEnv("storagepath", "DOCPULSE_STORAGE_PATH")
		v.BindEnv("logsdir", "DOCPULSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "DOCPULSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "DOCPULSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "DOCPULSE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "DOCPULSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "DOCPULSE_DB_MAX_IDLE_CONNS")
		v.BindEnv("fetchworkers", "DOCPULSE_FETCH_WORKERS")
		v.BindEnv("fetchtimeoutseconds", "DOCPULSE_FETCH_TIMEOUT_SECONDS")
		v.BindEnv("defaultrangedays", "DOCPULSE_DEFAULT_RANGE_DAYS")
		v.BindEnv("notifier", "DOCPULSE_NOTIFIER")
		v.BindEnv("watchintervalseconds", "DOCPULSE_WATCH_INTERVAL_SECONDS")
		v.BindEnv("redisaddr", "DOCPULSE_REDIS_ADDR")
		v.BindEnv("redispassword", "DOCPULSE_REDIS_PASSWORD")
		v.BindEnv("redisdb", "DOCPULSE_REDIS_DB")
		v.BindEnv("redischannelprefix", "DOCPULSE_REDIS_CHANNEL_PREFIX")
		v.BindEnv("retentiondays", "DOCPULSE_RETENTION_DAYS")
		v.BindEnv("seeddemodata", "DOCPULSE_SEED_DEMO_DATA")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validNotifiers := map[string]bool{
		MemoryNotifier: true,
		RedisNotifier:  true,
	}
	if !validNotifiers[c.NotifierBackend] {
		return fmt.Errorf("invalid notifier backend: %s", c.NotifierBackend)
	}

	if c.DefaultRangeDays < 1 || c.DefaultRangeDays > MaxRangeDays {
		return fmt.Errorf("default range days must be between 1 and %d, got %d", MaxRangeDays, c.DefaultRangeDays)
	}

	if c.FetchWorkers < 1 {
		return fmt.Errorf("fetch workers must be positive, got %d", c.FetchWorkers)
	}

	if c.FetchTimeoutSeconds < 1 {
		return fmt.Errorf("fetch timeout must be positive, got %d", c.FetchTimeoutSeconds)
	}

	if c.WatchIntervalSeconds < 1 {
		return fmt.Errorf("watch interval must be positive, got %d", c.WatchIntervalSeconds)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

var (
	_ cartridge.Config            = (*Config)(nil)
	_ cartridge.LogConfigProvider = (*Config)(nil)
)

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
// docpulse serves no static assets.
func (c *Config) GetPublicDirectory() string {
	return ""
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return ""
}

// GetAppName returns the application name (implements cartridge.LogConfigProvider).
func (c *Config) GetAppName() string {
	return c.AppName
}

// GetFetchTimeout returns how long a dashboard fetch cycle may take.
func (c *Config) GetFetchTimeout() time.Duration {
	if c.FetchTimeoutSeconds < 1 {
		return 30 * time.Second
	}
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for in-memory database stability)
// - Development/Production: 10 (one fetch cycle issues five concurrent reads)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
