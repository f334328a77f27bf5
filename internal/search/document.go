package search

import (
	"encoding/json"

	"github.com/JakeFAU/kb-engine/internal/kb"
)

// Hit is one raw search hit as returned by the backend.
type Hit struct {
	ID        string              `json:"_id"`
	Score     json.RawMessage     `json:"_score"`
	Source    map[string]any      `json:"_source"`
	Highlight map[string][]string `json:"highlight"`
}

// ToDocument maps a raw hit to a Document. Absent _source fields become
// empty strings, highlight fragments (when present) are merged into the
// highlighted-body field, and a missing or non-numeric score is coerced
// to zero; nothing here raises on malformed input.
func ToDocument(hit Hit) kb.Document {
	doc := kb.Document{
		Title: stringField(hit.Source, "title"),
		URL:   stringField(hit.Source, "url"),
		Body:  stringField(hit.Source, "body"),
		Score: coerceScore(hit.Score),
	}
	if fragments := hit.Highlight["body"]; len(fragments) > 0 {
		doc.HighlightedBody = fragments
	}
	return doc
}

func stringField(source map[string]any, key string) string {
	if source == nil {
		return ""
	}
	switch v := source[key].(type) {
	case string:
		return v
	case []any:
		// Fields-style responses wrap scalars in a list.
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func coerceScore(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var score float64
	if err := json.Unmarshal(raw, &score); err != nil {
		return 0
	}
	return score
}
