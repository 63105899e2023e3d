// Package config loads and validates collector configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/i474232898/airq/internal/airquality"
)

// EnvPrefix prefixes every environment override, e.g. AIRQ_API_KEY.
const EnvPrefix = "AIRQ"

// DefaultEndpoint is the data.gov.in real time air quality index resource.
const DefaultEndpoint = "https://api.data.gov.in/resource/3b01bcb8-0b14-4abf-b6f2-c1bfd384ba69"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type AppConfig struct {
	API       APIConfig       `mapstructure:"api"`
	Collector CollectorConfig `mapstructure:"collector"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool `mapstructure:"-"`
}

// APIConfig describes the upstream feed and how to talk to it.
type APIConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	Key               string        `mapstructure:"key"`
	Format            string        `mapstructure:"format"`
	PageLimit         int           `mapstructure:"page_limit"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// CollectorConfig controls collection runs.
type CollectorConfig struct {
	SinkFile string `mapstructure:"sink_file"`
	// RetentionSeconds bounds how far back readings are kept, measured from
	// the newest collection. Negative keeps everything.
	RetentionSeconds int64         `mapstructure:"retention_seconds"`
	Interval         time.Duration `mapstructure:"interval"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
}

// ArchiveConfig enables the SQLite archive when SQLitePath is set.
type ArchiveConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
	// RetentionSeconds bounds the archive independently of the dataset file.
	// Negative keeps everything.
	RetentionSeconds int64 `mapstructure:"retention_seconds"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads an optional .env file, then resolves defaults, the optional
// config file at path and AIRQ_* environment variables, in that order of
// precedence from lowest to highest.
func Load(path string) (*AppConfig, error) {
	envErr := godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.EnvFileLoaded = envErr == nil

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.endpoint", DefaultEndpoint)
	v.SetDefault("api.key", "")
	v.SetDefault("api.format", "json")
	v.SetDefault("api.page_limit", 10)
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.backoff_initial", "500ms")
	v.SetDefault("api.backoff_max", "5s")
	v.SetDefault("api.requests_per_second", 2.0)
	v.SetDefault("collector.sink_file", "data/airq.json")
	v.SetDefault("collector.retention_seconds", -1)
	v.SetDefault("collector.interval", "15m")
	v.SetDefault("collector.run_timeout", "10m")
	v.SetDefault("archive.sqlite_path", "")
	v.SetDefault("archive.retention_seconds", -1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c AppConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.API.Endpoint != "", "api.endpoint is required")
	check(c.API.Key != "", "api.key is required (set %s_API_KEY)", EnvPrefix)
	check(c.API.PageLimit > 0, "api.page_limit must be > 0")
	check(c.API.Timeout > 0, "api.timeout must be > 0")
	check(c.API.MaxRetries >= 0, "api.max_retries must be >= 0")
	check(c.API.BackoffInitial > 0, "api.backoff_initial must be > 0")
	check(c.API.RequestsPerSecond >= 0, "api.requests_per_second must be >= 0")
	check(strings.HasSuffix(c.Collector.SinkFile, ".json"), "collector.sink_file must end in .json, got %q", c.Collector.SinkFile)
	check(c.Collector.Interval > 0, "collector.interval must be > 0")
	check(c.Collector.RunTimeout > 0, "collector.run_timeout must be > 0")
	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be in 1..65535")

	return errors.Join(errs...)
}

// Retention converts collector.retention_seconds into a retention window.
func (c AppConfig) Retention() airquality.Retention {
	return airquality.RetentionFromSeconds(c.Collector.RetentionSeconds)
}

// ArchiveRetention converts archive.retention_seconds into a retention window.
func (c AppConfig) ArchiveRetention() airquality.Retention {
	return airquality.RetentionFromSeconds(c.Archive.RetentionSeconds)
}
