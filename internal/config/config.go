// Package config provides configuration loading and validation for the
// draw pipeline service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrNoSources        = errors.New("at least one source must be configured")
	ErrInvalidInterval  = errors.New("source poll interval must be between 500ms and 2s")
	ErrMissingMySQLDSN  = errors.New("mysql dsn is required")
	ErrMissingRedisAddr = errors.New("redis address is required")
	ErrMissingLLMKey    = errors.New("llm api key is required when prediction is enabled")
	ErrInvalidPort      = errors.New("invalid http port")
)

// Default configuration values.
const (
	defaultHTTPPort       = 8080
	defaultHTTPHost       = "0.0.0.0"
	defaultLLMTimeout     = 20 * time.Second
	defaultReadMaxConns   = 100
	defaultWriteMaxConns  = 5
	defaultBootstrapCap   = 10000
	defaultBiasThreshold  = 0.70
	defaultBiasWindow     = 10
	defaultHistoryWindow  = 50
	defaultHitRateWindow  = 100
	defaultLocalSeenLimit = 5000
	minPollInterval       = 500 * time.Millisecond
	maxPollInterval       = 2 * time.Second
	maxPort               = 65535
)

// Config holds all configuration for the service.
type Config struct {
	HTTP    HTTPConfig     `mapstructure:"http"`
	MySQL   MySQLConfig    `mapstructure:"mysql"`
	Redis   RedisConfig    `mapstructure:"redis"`
	Sources []SourceConfig `mapstructure:"sources"`
	Predict PredictConfig  `mapstructure:"predict"`
	Stats   StatsConfig    `mapstructure:"stats"`
	Dedup   DedupConfig    `mapstructure:"dedup"`
	Logging LoggingConfig  `mapstructure:"logging"`
}

// HTTPConfig holds the read API listener settings.
type HTTPConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Enabled bool   `mapstructure:"enabled"`
}

// MySQLConfig holds the draw store connection settings. The read pool is
// sized for far more concurrency than the write pool.
type MySQLConfig struct {
	// DSN must carry parseTime=true; DATETIME columns scan into time.Time.
	DSN            string        `mapstructure:"dsn"`
	ReadMaxConns   int           `mapstructure:"read_max_conns"`
	WriteMaxConns  int           `mapstructure:"write_max_conns"`
	ConnMaxLife    time.Duration `mapstructure:"conn_max_life"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// RedisConfig holds the distributed cache connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Prefix namespaces every cache key.
	Prefix string `mapstructure:"prefix"`
}

// SourceConfig describes one upstream feed.
type SourceConfig struct {
	Name     string            `mapstructure:"name"`
	URL      string            `mapstructure:"url"`
	Interval time.Duration     `mapstructure:"interval"`
	ParserID string            `mapstructure:"parser_id"`
	SkipTLS  bool              `mapstructure:"skip_tls"`
	Headers  map[string]string `mapstructure:"headers"`
}

// PredictConfig holds the LLM prediction workflow settings.
type PredictConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	HistoryWindow int           `mapstructure:"history_window"`
	BiasWindow    int           `mapstructure:"bias_window"`
	BiasThreshold float64       `mapstructure:"bias_threshold"`
	HitRateWindow int           `mapstructure:"hitrate_window"`
}

// StatsConfig holds the omission/daily engine settings.
type StatsConfig struct {
	// BootstrapCap bounds the newest-first scan when omission counters
	// are initialized on an empty table.
	BootstrapCap int `mapstructure:"bootstrap_cap"`
}

// DedupConfig holds the local fallback settings for the dedup store.
type DedupConfig struct {
	LocalSeenLimit int    `mapstructure:"local_seen_limit"`
	SnapshotDir    string `mapstructure:"snapshot_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file, a .env file when
// present, and JNDVPS_* environment variables.
func Load(configPath string) (*Config, error) {
	// Best effort: a missing .env is the normal production case.
	_ = godotenv.Load()

	viperCfg := viper.New()
	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("/etc/jndvps")
	}

	viperCfg.SetEnvPrefix("JNDVPS")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viperCfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viperCfg.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for startup-fatal problems.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}

	for _, s := range c.Sources {
		if s.Interval < minPollInterval || s.Interval > maxPollInterval {
			return fmt.Errorf("%w: source %q has %s", ErrInvalidInterval, s.Name, s.Interval)
		}
	}

	if c.MySQL.DSN == "" {
		return ErrMissingMySQLDSN
	}

	if c.Redis.Addr == "" {
		return ErrMissingRedisAddr
	}

	if c.Predict.Enabled && c.Predict.APIKey == "" {
		return ErrMissingLLMKey
	}

	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > maxPort) {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.HTTP.Port)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", defaultHTTPHost)
	v.SetDefault("http.port", defaultHTTPPort)
	v.SetDefault("http.enabled", true)

	v.SetDefault("mysql.read_max_conns", defaultReadMaxConns)
	v.SetDefault("mysql.write_max_conns", defaultWriteMaxConns)
	v.SetDefault("mysql.conn_max_life", time.Hour)
	v.SetDefault("mysql.health_interval", 30*time.Second)

	v.SetDefault("redis.prefix", "project:")

	v.SetDefault("predict.enabled", false)
	v.SetDefault("predict.timeout", defaultLLMTimeout)
	v.SetDefault("predict.history_window", defaultHistoryWindow)
	v.SetDefault("predict.bias_window", defaultBiasWindow)
	v.SetDefault("predict.bias_threshold", defaultBiasThreshold)
	v.SetDefault("predict.hitrate_window", defaultHitRateWindow)

	v.SetDefault("stats.bootstrap_cap", defaultBootstrapCap)

	v.SetDefault("dedup.local_seen_limit", defaultLocalSeenLimit)
	v.SetDefault("dedup.snapshot_dir", ".jndvps")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
