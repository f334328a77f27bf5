// Package catalog manages the knowledge-base-to-index mapping: template
// provisioning, per-knowledge-base index lifecycle, and metadata tags.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/JakeFAU/kb-engine/internal/kb"
)

// Catalog owns knowledge base metadata. Every query re-derives state
// from the backend; nothing is cached across calls.
type Catalog struct {
	es       *elasticsearch.Client
	prefix   string
	pipeline string
	logger   *zap.Logger

	// mu serializes create/delete so two concurrent creates cannot
	// produce duplicate indices for the same name.
	mu sync.Mutex
}

// New constructs a Catalog over the given client and index prefix.
func New(es *elasticsearch.Client, prefix, pipeline string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{es: es, prefix: prefix, pipeline: pipeline, logger: logger}
}

// TemplateName is the single shared index template provisioned by
// EnsureTemplate.
func (c *Catalog) TemplateName() string {
	return c.prefix + "-template"
}

// Prefix returns the configured index prefix.
func (c *Catalog) Prefix() string {
	return c.prefix
}

// EnsureTemplate creates or overwrites the shared index template.
// Idempotent: repeated calls are safe, and a conflicting existing
// definition is replaced by this one.
func (c *Catalog) EnsureTemplate(ctx context.Context) error {
	body, err := json.Marshal(TemplateBody(kb.IndexPattern(c.prefix), c.pipeline))
	if err != nil {
		return fmt.Errorf("marshal index template: %w", err)
	}

	res, err := c.es.Indices.PutIndexTemplate(
		c.TemplateName(),
		bytes.NewReader(body),
		c.es.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return kb.BackendUnavailableError("elasticsearch", err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("put index template %q: %s", c.TemplateName(), res.Status())
	}
	c.logger.Debug("index template ensured", zap.String("template", c.TemplateName()))
	return nil
}

// CreateRequest describes a knowledge base to provision.
type CreateRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	SourceKind  kb.SourceKind `json:"source_kind"`
	DataSource  string        `json:"data_source,omitempty"`
}

// Create provisions the backing index for a new knowledge base and tags
// it with metadata. The index name is a deterministic function of the
// configured prefix and the sanitized data source; a name or index
// collision yields kb.ErrDuplicateKnowledgeBase.
func (c *Catalog) Create(ctx context.Context, req CreateRequest) (kb.KnowledgeBase, error) {
	if strings.TrimSpace(req.Name) == "" {
		return kb.KnowledgeBase{}, fmt.Errorf("knowledge base name must not be empty")
	}
	kind := req.SourceKind
	if kind == "" {
		kind = kb.SourceKindDocs
	}
	source := req.DataSource
	if source == "" {
		source = req.Name
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.list(ctx)
	if err != nil {
		return kb.KnowledgeBase{}, err
	}
	for _, other := range existing {
		if other.Name == req.Name {
			return kb.KnowledgeBase{}, kb.DuplicateKnowledgeBaseError(req.Name)
		}
	}

	indexName := kb.IndexName(c.prefix, kind, kb.SanitizeSuffix(source))
	base := kb.KnowledgeBase{
		ID:          indexName,
		Name:        req.Name,
		Description: req.Description,
		IndexName:   indexName,
		SourceKind:  kind,
		DataSource:  req.DataSource,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}

	body, err := json.Marshal(map[string]any{"mappings": map[string]any{"_meta": MetaMapping(base)}})
	if err != nil {
		return kb.KnowledgeBase{}, fmt.Errorf("marshal index mappings: %w", err)
	}

	res, err := c.es.Indices.Create(
		indexName,
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return kb.KnowledgeBase{}, kb.BackendUnavailableError("elasticsearch", err)
	}
	defer drain(res)
	if res.IsError() {
		if res.StatusCode == http.StatusBadRequest || res.StatusCode == http.StatusConflict {
			// resource_already_exists_exception: the deterministic index
			// is already claimed.
			return kb.KnowledgeBase{}, kb.DuplicateKnowledgeBaseError(indexName)
		}
		return kb.KnowledgeBase{}, fmt.Errorf("create index %q: %s", indexName, res.Status())
	}

	c.logger.Info("knowledge base created",
		zap.String("name", base.Name),
		zap.String("index", indexName),
	)
	return base, nil
}

// Get returns the knowledge base with the given name.
func (c *Catalog) Get(ctx context.Context, name string) (kb.KnowledgeBase, error) {
	bases, err := c.list(ctx)
	if err != nil {
		return kb.KnowledgeBase{}, err
	}
	for _, base := range bases {
		if base.Name == name {
			return base, nil
		}
	}
	return kb.KnowledgeBase{}, kb.NotFoundError("knowledge base", name)
}

// List returns knowledge bases whose name matches the glob pattern,
// sorted by name. An empty pattern matches everything.
func (c *Catalog) List(ctx context.Context, namePattern string) ([]kb.KnowledgeBase, error) {
	bases, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	if namePattern == "" {
		return bases, nil
	}
	filtered := bases[:0]
	for _, base := range bases {
		ok, err := path.Match(namePattern, base.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid name pattern %q: %w", namePattern, err)
		}
		if ok {
			filtered = append(filtered, base)
		}
	}
	return filtered, nil
}

// Delete removes a knowledge base: both the metadata tag and the backing
// index, which are one object on the backend.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	base, err := c.Get(ctx, name)
	if err != nil {
		return err
	}

	res, err := c.es.Indices.Delete(
		[]string{base.IndexName},
		c.es.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return kb.BackendUnavailableError("elasticsearch", err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return kb.NotFoundError("knowledge base", name)
	}
	if res.IsError() {
		return fmt.Errorf("delete index %q: %s", base.IndexName, res.Status())
	}

	c.logger.Info("knowledge base deleted", zap.String("name", name), zap.String("index", base.IndexName))
	return nil
}

type mappingResponse map[string]struct {
	Mappings struct {
		Meta struct {
			KnowledgeBase struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				DataSource  string `json:"data_source"`
				Type        string `json:"type"`
				CreatedAt   string `json:"created_at"`
			} `json:"knowledge_base"`
		} `json:"_meta"`
	} `json:"mappings"`
}

func (c *Catalog) list(ctx context.Context) ([]kb.KnowledgeBase, error) {
	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithContext(ctx),
		c.es.Indices.GetMapping.WithIndex(kb.IndexPattern(c.prefix)),
		c.es.Indices.GetMapping.WithAllowNoIndices(true),
	)
	if err != nil {
		return nil, kb.BackendUnavailableError("elasticsearch", err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("get mappings for %q: %s", kb.IndexPattern(c.prefix), res.Status())
	}

	var mappings mappingResponse
	if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
		return nil, fmt.Errorf("decode mappings response: %w", err)
	}

	counts, err := c.docCounts(ctx)
	if err != nil {
		return nil, err
	}

	bases := make([]kb.KnowledgeBase, 0, len(mappings))
	for index, entry := range mappings {
		meta := entry.Mappings.Meta.KnowledgeBase
		if meta.Name == "" {
			// Index under our prefix without a tag; not one of ours.
			continue
		}
		base := kb.KnowledgeBase{
			ID:          index,
			Name:        meta.Name,
			Description: meta.Description,
			IndexName:   index,
			SourceKind:  kb.SourceKind(meta.Type),
			DataSource:  meta.DataSource,
			DocCount:    counts[index],
		}
		if t, err := time.Parse(time.RFC3339, meta.CreatedAt); err == nil {
			base.CreatedAt = t
		}
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool {
		return strings.ToLower(bases[i].Name) < strings.ToLower(bases[j].Name)
	})
	return bases, nil
}

func (c *Catalog) docCounts(ctx context.Context) (map[string]int64, error) {
	res, err := c.es.Cat.Indices(
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithIndex(kb.IndexPattern(c.prefix)),
		c.es.Cat.Indices.WithFormat("json"),
		c.es.Cat.Indices.WithH("index", "docs.count"),
	)
	if err != nil {
		return nil, kb.BackendUnavailableError("elasticsearch", err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return map[string]int64{}, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("cat indices: %s", res.Status())
	}

	var rows []struct {
		Index     string `json:"index"`
		DocsCount string `json:"docs.count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode cat indices response: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		if n, err := strconv.ParseInt(row.DocsCount, 10, 64); err == nil {
			counts[row.Index] = n
		}
	}
	return counts, nil
}

func drain(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}
