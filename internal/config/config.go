package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"payment-sentinel/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the decision ledger.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// EngineConfig carries the pattern-detection and arbitration thresholds.
// Read once at start; immutable for the duration of a run.
type EngineConfig struct {
	WindowWidth          time.Duration `mapstructure:"window_width"`
	HistorySize          int           `mapstructure:"history_size"`
	MinClusterSize       int           `mapstructure:"min_cluster_size"`
	SpikeMultiplier      float64       `mapstructure:"spike_multiplier"`
	MinAbsoluteDelta     float64       `mapstructure:"min_absolute_delta"`
	ConfidenceThreshold  float64       `mapstructure:"confidence_threshold"`
	MarginRate           float64       `mapstructure:"margin_rate"`
	RerouteCost          float64       `mapstructure:"reroute_cost"`
	Workers              int           `mapstructure:"workers"`
	MaxClustersPerWindow int           `mapstructure:"max_clusters_per_window"`
}

// OracleConfig covers the external reasoning-oracle boundary.
type OracleConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines dispatch of ALERT-class decisions.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram dispatch parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sentinel")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("engine.window_width", "30m")
	v.SetDefault("engine.history_size", 6)
	v.SetDefault("engine.min_cluster_size", 10)
	v.SetDefault("engine.spike_multiplier", 3.0)
	v.SetDefault("engine.min_absolute_delta", 0.05)
	v.SetDefault("engine.confidence_threshold", 0.70)
	v.SetDefault("engine.margin_rate", 0.02)
	v.SetDefault("engine.reroute_cost", 15.0)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.max_clusters_per_window", 12)

	v.SetDefault("oracle.model", "gpt-4o-mini")
	v.SetDefault("oracle.temperature", 0.1)
	v.SetDefault("oracle.max_tokens", 2000)
	v.SetDefault("oracle.request_timeout", "5s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x53454e54))
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Engine.WindowWidth <= 0 {
		return fmt.Errorf("engine.window_width must be greater than zero")
	}
	if c.Engine.HistorySize < 2 {
		return fmt.Errorf("engine.history_size must be at least 2")
	}
	if c.Engine.MinClusterSize < 1 {
		return fmt.Errorf("engine.min_cluster_size must be at least 1")
	}
	if c.Engine.SpikeMultiplier <= 1 {
		return fmt.Errorf("engine.spike_multiplier must be greater than 1")
	}
	if c.Engine.MinAbsoluteDelta < 0 {
		return fmt.Errorf("engine.min_absolute_delta cannot be negative")
	}
	if c.Engine.ConfidenceThreshold < 0 || c.Engine.ConfidenceThreshold > 1 {
		return fmt.Errorf("engine.confidence_threshold must be within [0,1]")
	}
	if c.Engine.MarginRate <= 0 {
		return fmt.Errorf("engine.margin_rate must be greater than zero")
	}
	if c.Engine.RerouteCost < 0 {
		return fmt.Errorf("engine.reroute_cost cannot be negative")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
