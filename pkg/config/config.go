package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server defaults
const (
	DefaultPort         = "8080"
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 60 * time.Second
	ShutdownTimeout     = 30 * time.Second
)

// Storage defaults
const (
	DefaultDriver      = "postgres"
	DefaultDataDir     = "./data/moldwatch"
	DefaultMaxMemoryMB = 48
	BadgerGCInterval   = 10 * time.Minute
)

// Query limits and timeouts
const (
	DefaultWindow           = 7 * 24 * time.Hour
	MaxRawSpan              = 365 * 24 * time.Hour
	DefaultRowCap           = 500_000
	DefaultFetchTimeout     = 15 * time.Second
	DefaultMappingTimeout   = 5 * time.Second
	DefaultFetchConcurrency = 4
)

// Fallback series defaults
const (
	DefaultFallbackPoints = 500
)

// EnvPrefix is prepended to every environment override, e.g.
// MOLDWATCH_STORE_DSN overrides store.dsn.
const EnvPrefix = "MOLDWATCH"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Query    QueryConfig    `mapstructure:"query"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig selects and configures the tabular data store.
type StoreConfig struct {
	// Driver is one of postgres, mysql, badger, memory.
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	DataDir     string `mapstructure:"data_dir"`
	MaxMemoryMB int64  `mapstructure:"max_memory_mb"`
}

// QueryConfig bounds the monitoring query pipeline.
type QueryConfig struct {
	DefaultWindow    time.Duration `mapstructure:"default_window"`
	MaxRawSpan       time.Duration `mapstructure:"max_raw_span"`
	RowCap           int           `mapstructure:"row_cap"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	MappingTimeout   time.Duration `mapstructure:"mapping_timeout"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`

	// MaxShards rejects queries touching more monthly shards (0 = no limit)
	MaxShards int `mapstructure:"max_shards"`
}

// FallbackConfig controls the synthetic series served during store outages.
type FallbackConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Points  int  `mapstructure:"points"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads configuration from the optional YAML file at path and from
// MOLDWATCH_* environment variables. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or env is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Store: StoreConfig{
			Driver:      DefaultDriver,
			DataDir:     DefaultDataDir,
			MaxMemoryMB: DefaultMaxMemoryMB,
		},
		Query: QueryConfig{
			DefaultWindow:    DefaultWindow,
			MaxRawSpan:       MaxRawSpan,
			RowCap:           DefaultRowCap,
			FetchTimeout:     DefaultFetchTimeout,
			MappingTimeout:   DefaultMappingTimeout,
			FetchConcurrency: DefaultFetchConcurrency,
		},
		Fallback: FallbackConfig{
			Enabled: true,
			Points:  DefaultFallbackPoints,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// setDefaults registers every key so AutomaticEnv can override it even
// when no config file mentions the key.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.data_dir", d.Store.DataDir)
	v.SetDefault("store.max_memory_mb", d.Store.MaxMemoryMB)

	v.SetDefault("query.default_window", d.Query.DefaultWindow)
	v.SetDefault("query.max_raw_span", d.Query.MaxRawSpan)
	v.SetDefault("query.row_cap", d.Query.RowCap)
	v.SetDefault("query.fetch_timeout", d.Query.FetchTimeout)
	v.SetDefault("query.mapping_timeout", d.Query.MappingTimeout)
	v.SetDefault("query.fetch_concurrency", d.Query.FetchConcurrency)
	v.SetDefault("query.max_shards", d.Query.MaxShards)

	v.SetDefault("fallback.enabled", d.Fallback.Enabled)
	v.SetDefault("fallback.points", d.Fallback.Points)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	case "badger":
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for driver badger")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}

	if c.Query.RowCap <= 0 {
		return fmt.Errorf("query.row_cap must be positive, got %d", c.Query.RowCap)
	}
	if c.Query.MaxRawSpan <= 0 {
		return fmt.Errorf("query.max_raw_span must be positive")
	}
	if c.Query.FetchConcurrency <= 0 {
		return fmt.Errorf("query.fetch_concurrency must be positive, got %d", c.Query.FetchConcurrency)
	}
	if c.Query.MaxShards < 0 {
		return fmt.Errorf("query.max_shards must not be negative, got %d", c.Query.MaxShards)
	}
	if c.Fallback.Enabled && c.Fallback.Points <= 0 {
		return fmt.Errorf("fallback.points must be positive when fallback is enabled")
	}
	return nil
}
