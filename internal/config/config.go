// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Crawler       CrawlerConfig       `mapstructure:"crawler"`
	Ask           AskConfig           `mapstructure:"ask"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ElasticsearchConfig controls access to the search backend.
type ElasticsearchConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	APIKey      string   `mapstructure:"api_key"`
	IndexPrefix string   `mapstructure:"index_prefix"`
	Pipeline    string   `mapstructure:"pipeline"`
}

// CrawlerConfig governs crawl worker containers and the configuration
// artifact rendered into them. The ES* fields are the connection block
// passed through to the worker, which reaches the backend over the
// container network rather than through this process.
type CrawlerConfig struct {
	Image            string `mapstructure:"image"`
	ConfigPath       string `mapstructure:"config_path"`
	NamePrefix       string `mapstructure:"name_prefix"`
	LogLevel         string `mapstructure:"log_level"`
	LogTail          int    `mapstructure:"log_tail"`
	BatchConcurrency int    `mapstructure:"batch_concurrency"`
	MaxChildPages    int    `mapstructure:"max_child_pages"`
	ValidateSeeds    bool   `mapstructure:"validate_seeds"`
	ESHost           string `mapstructure:"es_host"`
	ESPort           int    `mapstructure:"es_port"`
	ESUser           string `mapstructure:"es_user"`
	// ESUseSSL is a pointer so "not configured" and an explicit false
	// stay distinguishable in the rendered worker configuration.
	ESUseSSL *bool `mapstructure:"es_use_ssl"`
}

// AskConfig bounds the question fan-out.
type AskConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KBENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.index_prefix", "kb")
	v.SetDefault("elasticsearch.pipeline", "")
	v.SetDefault("crawler.image", "docker.elastic.co/integrations/crawler:latest")
	v.SetDefault("crawler.config_path", "/config/crawl.yml")
	v.SetDefault("crawler.name_prefix", "kb-crawler")
	v.SetDefault("crawler.log_level", "info")
	v.SetDefault("crawler.log_tail", 40)
	v.SetDefault("crawler.batch_concurrency", 4)
	v.SetDefault("crawler.max_child_pages", 500)
	v.SetDefault("crawler.validate_seeds", false)
	v.SetDefault("crawler.es_host", "http://localhost")
	v.SetDefault("crawler.es_port", 9200)
	v.SetDefault("ask.max_concurrency", 8)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch.addresses must not be empty")
	}
	if c.Elasticsearch.IndexPrefix == "" {
		return fmt.Errorf("elasticsearch.index_prefix must be set")
	}
	if c.Crawler.Image == "" {
		return fmt.Errorf("crawler.image must be set")
	}
	if c.Crawler.BatchConcurrency <= 0 {
		return fmt.Errorf("crawler.batch_concurrency must be > 0")
	}
	if c.Ask.MaxConcurrency <= 0 {
		return fmt.Errorf("ask.max_concurrency must be > 0")
	}
	return nil
}
