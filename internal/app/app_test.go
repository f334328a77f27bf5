package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kb-engine/internal/app"
	"github.com/JakeFAU/kb-engine/internal/config"
	"github.com/JakeFAU/kb-engine/internal/kb"
)

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Elasticsearch: config.ElasticsearchConfig{
			// Port 1 is never listening; initialization must fail fast
			// rather than hang.
			Addresses:   []string{"http://127.0.0.1:1"},
			IndexPrefix: "kb",
		},
		Crawler: config.CrawlerConfig{
			Image:            "crawler:test",
			NamePrefix:       "kb-crawler",
			BatchConcurrency: 2,
			LogTail:          40,
		},
		Ask:     config.AskConfig{MaxConcurrency: 4},
		Logging: config.LoggingConfig{Development: false},
	}
}

func TestNewFailsWhenSearchBackendUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := app.New(ctx, testConfig())
	require.Error(t, err)
	require.ErrorIs(t, err, kb.ErrBackendUnavailable)
}
