package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cratedig/cratedig/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Processor  ProcessorConfig  `yaml:"processor" mapstructure:"processor"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	AutoVerify AutoVerifyConfig `yaml:"auto_verify" mapstructure:"auto_verify"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend: sqlite for a single node,
// postgres when several worker instances share the queue.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// FetchConfig configures the provider clients.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ProcessorConfig configures the polling job processor.
type ProcessorConfig struct {
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffBaseSecs  int `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
}

// PollInterval returns the poll interval as a duration.
func (c ProcessorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// BackoffBase returns the retry backoff base as a duration.
func (c ProcessorConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSecs) * time.Second
}

// RulesConfig configures the rule cache.
type RulesConfig struct {
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

func (c RulesConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// AutoVerifyConfig configures unattended approval of context suggestions
// that do not require a human reviewer.
type AutoVerifyConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Floor      float64 `yaml:"floor" mapstructure:"floor"`
	VerifiedBy string  `yaml:"verified_by" mapstructure:"verified_by"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRATEDIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cratedig.db")
	v.SetDefault("fetch.user_agent", "cratedig/1.0")
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("processor.poll_interval_secs", 10)
	v.SetDefault("processor.max_attempts", 5)
	v.SetDefault("processor.backoff_base_secs", 300)
	v.SetDefault("rules.cache_ttl_secs", 300)
	v.SetDefault("auto_verify.enabled", false)
	v.SetDefault("auto_verify.floor", 0.9)
	v.SetDefault("auto_verify.verified_by", "pipeline")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given run mode ("worker",
// "fetch", "serve"). Collected problems come back as one error.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch mode {
	case "worker":
		if c.Processor.PollIntervalSecs <= 0 {
			problems = append(problems, "processor.poll_interval_secs must be > 0")
		}
		if c.Processor.MaxAttempts < 1 || c.Processor.MaxAttempts > 20 {
			problems = append(problems, "processor.max_attempts must be between 1 and 20")
		}
		if c.Processor.BackoffBaseSecs <= 0 {
			problems = append(problems, "processor.backoff_base_secs must be > 0")
		}
		if c.AutoVerify.Enabled && (c.AutoVerify.Floor < 0 || c.AutoVerify.Floor > 1) {
			problems = append(problems, "auto_verify.floor must be within [0, 1]")
		}
	case "fetch":
		if c.Fetch.TimeoutSecs <= 0 {
			problems = append(problems, "fetch.timeout_secs must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
