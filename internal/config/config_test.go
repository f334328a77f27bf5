package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Elasticsearch.Addresses)
	assert.Equal(t, "kb", cfg.Elasticsearch.IndexPrefix)
	assert.Empty(t, cfg.Elasticsearch.Pipeline)
	assert.Equal(t, "docker.elastic.co/integrations/crawler:latest", cfg.Crawler.Image)
	assert.Equal(t, "/config/crawl.yml", cfg.Crawler.ConfigPath)
	assert.Equal(t, "kb-crawler", cfg.Crawler.NamePrefix)
	assert.Equal(t, 40, cfg.Crawler.LogTail)
	assert.Equal(t, 4, cfg.Crawler.BatchConcurrency)
	assert.Equal(t, 500, cfg.Crawler.MaxChildPages)
	assert.False(t, cfg.Crawler.ValidateSeeds)
	assert.Nil(t, cfg.Crawler.ESUseSSL, "unset stays distinguishable from false")
	assert.Equal(t, 8, cfg.Ask.MaxConcurrency)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
elasticsearch:
  addresses:
    - https://es1.internal:9200
    - https://es2.internal:9200
  username: svc
  password: secret
  index_prefix: docs
  pipeline: elser-v2
crawler:
  image: crawler:pinned
  batch_concurrency: 2
  validate_seeds: true
  es_use_ssl: false
ask:
  max_concurrency: 16
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://es1.internal:9200", "https://es2.internal:9200"}, cfg.Elasticsearch.Addresses)
	assert.Equal(t, "svc", cfg.Elasticsearch.Username)
	assert.Equal(t, "docs", cfg.Elasticsearch.IndexPrefix)
	assert.Equal(t, "elser-v2", cfg.Elasticsearch.Pipeline)
	assert.Equal(t, "crawler:pinned", cfg.Crawler.Image)
	assert.Equal(t, 2, cfg.Crawler.BatchConcurrency)
	assert.True(t, cfg.Crawler.ValidateSeeds)
	require.NotNil(t, cfg.Crawler.ESUseSSL)
	assert.False(t, *cfg.Crawler.ESUseSSL)
	assert.Equal(t, 16, cfg.Ask.MaxConcurrency)
	assert.False(t, cfg.Logging.Development)

	// File overrides merge with defaults for keys it omits.
	assert.Equal(t, "kb-crawler", cfg.Crawler.NamePrefix)
	assert.Equal(t, 40, cfg.Crawler.LogTail)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("KBENGINE_SERVER_PORT", "7070")
	t.Setenv("KBENGINE_CRAWLER_IMAGE", "crawler:env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "crawler:env", cfg.Crawler.Image)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:        ServerConfig{Port: 8080},
			Elasticsearch: ElasticsearchConfig{Addresses: []string{"http://localhost:9200"}, IndexPrefix: "kb"},
			Crawler:       CrawlerConfig{Image: "crawler:latest", BatchConcurrency: 4},
			Ask:           AskConfig{MaxConcurrency: 8},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"no addresses", func(c *Config) { c.Elasticsearch.Addresses = nil }},
		{"no index prefix", func(c *Config) { c.Elasticsearch.IndexPrefix = "" }},
		{"no image", func(c *Config) { c.Crawler.Image = "" }},
		{"zero batch concurrency", func(c *Config) { c.Crawler.BatchConcurrency = 0 }},
		{"zero ask concurrency", func(c *Config) { c.Ask.MaxConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
