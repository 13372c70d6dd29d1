// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bitebase/catalog-cli/internal/adapter"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig               `yaml:"store" mapstructure:"store"`
	Yelp        adapter.YelpConfig        `yaml:"yelp" mapstructure:"yelp"`
	Google      adapter.GoogleConfig      `yaml:"google" mapstructure:"google"`
	TripAdvisor adapter.TripAdvisorConfig `yaml:"tripadvisor" mapstructure:"tripadvisor"`
	Instagram   adapter.InstagramConfig   `yaml:"instagram" mapstructure:"instagram"`
	Indexer     IndexerConfig             `yaml:"indexer" mapstructure:"indexer"`
	Search      SearchConfig              `yaml:"search" mapstructure:"search"`
	Server      ServerConfig              `yaml:"server" mapstructure:"server"`
	Log         LogConfig                 `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. Driver is "sqlite" or
// "postgres"; Path applies to sqlite, DatabaseURL to postgres.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// IndexerConfig configures ingestion runs.
type IndexerConfig struct {
	Limit      int      `yaml:"limit" mapstructure:"limit"`
	Categories []string `yaml:"categories" mapstructure:"categories"`
}

// SearchConfig configures query defaults.
type SearchConfig struct {
	Limit int    `yaml:"limit" mapstructure:"limit"`
	Sort  string `yaml:"sort" mapstructure:"sort"`
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
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a natural default still need one registered,
	// or AutomaticEnv can't surface them through Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "catalog.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("yelp.api_key", "")
	v.SetDefault("google.api_key", "")
	v.SetDefault("tripadvisor.api_key", "")
	v.SetDefault("instagram.access_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("indexer.limit", 0)
	v.SetDefault("search.limit", 25)
	v.SetDefault("search.sort", "relevance")
	v.SetDefault("yelp.base_url", "https://api.yelp.com/v3")
	v.SetDefault("yelp.request_budget", 5000)
	v.SetDefault("google.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("google.request_budget", 5000)
	v.SetDefault("tripadvisor.base_url", "https://api.content.tripadvisor.com/api/v1")
	v.SetDefault("tripadvisor.request_budget", 5000)
	v.SetDefault("instagram.base_url", "https://graph.facebook.com/v19.0")
	v.SetDefault("instagram.request_budget", 200)

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
