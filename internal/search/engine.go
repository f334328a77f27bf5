package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/JakeFAU/kb-engine/internal/kb"
)

// Searcher executes a compiled query against one index. The answer
// aggregator depends on this interface rather than the concrete client.
type Searcher interface {
	Search(ctx context.Context, index string, query Query) ([]kb.Document, error)
}

// Engine executes compiled queries against the backend and maps hits to
// documents.
type Engine struct {
	es     *elasticsearch.Client
	logger *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(es *elasticsearch.Client, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{es: es, logger: logger}
}

// Search runs the query against the index and returns the ranked
// documents. A missing index is kb.ErrNotFound; connection and timeout
// failures are kb.ErrBackendUnavailable. No internal retries.
func (e *Engine) Search(ctx context.Context, index string, query Query) ([]kb.Document, error) {
	body, err := query.Body()
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(index),
		e.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, kb.BackendUnavailableError("elasticsearch", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()

	if res.StatusCode == http.StatusNotFound {
		return nil, kb.NotFoundError("index", index)
	}
	if res.IsError() {
		return nil, fmt.Errorf("search %q: %s", index, res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []Hit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]kb.Document, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		docs = append(docs, ToDocument(hit))
	}
	e.logger.Debug("search executed",
		zap.String("index", index),
		zap.Int("hits", len(docs)),
	)
	return docs, nil
}
