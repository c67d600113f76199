package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"oddsboard/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Provider ProviderConfig `mapstructure:"provider"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Service  ServiceConfig  `mapstructure:"service"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ProviderConfig covers upstream odds API access.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Bookmakers     []string      `mapstructure:"bookmakers"`
	Markets        []string      `mapstructure:"markets"`
	OddsFormat     string        `mapstructure:"odds_format"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CacheConfig governs the freshness cache windows.
type CacheConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxKeys    int           `mapstructure:"max_keys"`
}

// PollerConfig governs adaptive polling cadence.
type PollerConfig struct {
	Sports        []string      `mapstructure:"sports"`
	EvaluateEvery time.Duration `mapstructure:"evaluate_every"`
}

// ServiceConfig governs the read path.
type ServiceConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ODDSBOARD")
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
	v.SetDefault("app.name", "oddsboard")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("provider.base_url", "https://api.the-odds-api.com/v4")
	v.SetDefault("provider.bookmakers", []string{
		"draftkings", "fanduel", "betmgm", "caesars", "pointsbetus", "espnbet", "bet365",
	})
	v.SetDefault("provider.markets", []string{"h2h", "spreads", "totals"})
	v.SetDefault("provider.odds_format", "american")
	v.SetDefault("provider.request_timeout", "20s")
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.base_delay", "1s")
	v.SetDefault("provider.user_agent", "oddsboard/1.0")

	v.SetDefault("cache.stale_after", "60s")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.max_keys", 100)

	v.SetDefault("poller.sports", []string{
		"americanfootball_nfl", "basketball_nba", "baseball_mlb",
	})
	v.SetDefault("poller.evaluate_every", "5m")

	v.SetDefault("service.request_timeout", "30s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if len(c.Poller.Sports) == 0 {
		return fmt.Errorf("poller.sports must name at least one sport")
	}
	if c.Poller.EvaluateEvery <= 0 {
		return fmt.Errorf("poller.evaluate_every must be greater than zero")
	}
	if c.Cache.TTL > 0 && c.Cache.StaleAfter > c.Cache.TTL {
		return fmt.Errorf("cache.stale_after cannot exceed cache.ttl")
	}
	if c.Provider.MaxRetries <= 0 {
		return fmt.Errorf("provider.max_retries must be greater than zero")
	}
	if len(c.Provider.Markets) == 0 {
		return fmt.Errorf("provider.markets must name at least one market")
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
