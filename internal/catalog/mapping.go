package catalog

import "github.com/JakeFAU/kb-engine/internal/kb"

// semanticField is the mapping for a field ranked by the backend's
// built-in sparse-retrieval model.
func semanticField() map[string]any {
	return map[string]any{
		"type":         "semantic_text",
		"inference_id": ".elser-2-elasticsearch",
		"model_settings": map[string]any{
			"service":   "elasticsearch",
			"task_type": "sparse_embedding",
		},
	}
}

// keywordTextField is the standard text-with-keyword-subfield mapping.
func keywordTextField() map[string]any {
	return map[string]any{
		"type": "text",
		"fields": map[string]any{
			"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
		},
	}
}

// TemplateBody builds the shared index template covering every index
// under the pattern. Safe to apply repeatedly: an identical template is
// a no-op, a conflicting one is overwritten, last writer wins.
func TemplateBody(indexPattern, pipeline string) map[string]any {
	properties := map[string]any{
		"body":            semanticField(),
		"headings":        semanticField(),
		"id":              keywordTextField(),
		"last_crawled_at": map[string]any{"type": "date"},
		"links":           keywordTextField(),
		"meta_keywords":   keywordTextField(),
		"title":           keywordTextField(),
		"url":             keywordTextField(),
		"url_host":        keywordTextField(),
		"url_path":        keywordTextField(),
		"url_path_dir1":   keywordTextField(),
		"url_path_dir2":   keywordTextField(),
		"url_path_dir3":   keywordTextField(),
		"url_port":        map[string]any{"type": "long"},
		"url_scheme":      keywordTextField(),
	}

	settings := map[string]any{}
	if pipeline != "" {
		settings["index"] = map[string]any{"default_pipeline": pipeline}
	}

	return map[string]any{
		"index_patterns": []string{indexPattern},
		"template": map[string]any{
			"settings": settings,
			"mappings": map[string]any{
				"dynamic_templates": []any{},
				"properties":        properties,
			},
		},
		"priority": 500,
		"_meta": map[string]any{
			"description": "Index template for knowledge base indices",
			"created_by":  "kb-engine",
		},
	}
}

// MetaMapping builds the metadata tag document stored in the index
// mapping's _meta block. It is a pure function of the descriptor;
// optional fields absent from the descriptor are omitted from the tag,
// never defaulted to placeholder strings.
func MetaMapping(k kb.KnowledgeBase) map[string]any {
	meta := map[string]any{
		"name": k.Name,
		"type": string(k.SourceKind),
	}
	if k.Description != "" {
		meta["description"] = k.Description
	}
	if k.DataSource != "" {
		meta["data_source"] = k.DataSource
	}
	if !k.CreatedAt.IsZero() {
		meta["created_at"] = k.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return map[string]any{"knowledge_base": meta}
}
