package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cropsense/farmops/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Exa       ExaConfig       `yaml:"exa" mapstructure:"exa"`
	Diagnosis DiagnosisConfig `yaml:"diagnosis" mapstructure:"diagnosis"`
	Weather   WeatherConfig   `yaml:"weather" mapstructure:"weather"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. For the sqlite driver
// DatabaseURL doubles as the file path. Pool tuning applies to postgres only.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExaConfig holds Exa search API settings.
type ExaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// DiagnosisConfig configures pipeline behavior.
type DiagnosisConfig struct {
	SearchConcurrency int `yaml:"search_concurrency" mapstructure:"search_concurrency"`
	StageTimeoutSecs  int `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
}

// WeatherConfig configures weather synthesis.
type WeatherConfig struct {
	PatternsFile string `yaml:"patterns_file" mapstructure:"patterns_file"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("FARMOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2000)
	v.SetDefault("exa.key", "")
	v.SetDefault("exa.base_url", "https://api.exa.ai")
	v.SetDefault("diagnosis.search_concurrency", 4)
	v.SetDefault("diagnosis.stage_timeout_secs", 90)
	v.SetDefault("weather.patterns_file", "")

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

// Validate checks that the configuration is usable for the given mode.
// Modes: "diagnose", "serve", "reports".
func (c *Config) Validate(mode string) error {
	var problems []string

	common := func() {
		if c.Diagnosis.SearchConcurrency < 1 || c.Diagnosis.SearchConcurrency > 16 {
			problems = append(problems, "diagnosis.search_concurrency must be between 1 and 16")
		}
		if c.Diagnosis.StageTimeoutSecs < 1 {
			problems = append(problems, "diagnosis.stage_timeout_secs must be >= 1")
		}
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	}

	requireStoreURL := func() {
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	}

	switch mode {
	case "diagnose":
		common()
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "serve":
		common()
		requireStoreURL()
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "reports":
		common()
		requireStoreURL()
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
