// Package search compiles phrases into ranked-retrieval queries and maps
// raw backend hits to typed documents.
package search

import "encoding/json"

// Defaults applied when a caller does not specify size or fragments.
const (
	DefaultSize      = 5
	DefaultFragments = 5
)

// minScore drops hits the ranking model considers noise.
const minScore = 10

// highlightFragmentSize is the passage length requested per fragment.
const highlightFragmentSize = 500

// Query is a compiled retrieval query. Marshaling it yields the exact
// request body sent to the backend.
type Query struct {
	Query     boolWrapper      `json:"query"`
	MinScore  float64          `json:"min_score"`
	Sort      []map[string]any `json:"sort"`
	Size      int              `json:"size"`
	Highlight highlight        `json:"highlight"`
	Source    []string         `json:"_source"`
}

type boolWrapper struct {
	Bool boolQuery `json:"bool"`
}

type boolQuery struct {
	Should []map[string]any `json:"should"`
}

type highlight struct {
	NumberOfFragments int                 `json:"number_of_fragments"`
	FragmentSize      int                 `json:"fragment_size"`
	Fields            map[string]struct{} `json:"fields"`
}

// Compile builds a sparse-retrieval query for the phrase requesting up
// to size ranked hits and up to fragments highlighted passages per hit.
// Non-positive size or fragments fall back to the fixed defaults.
// Compile performs no phrase validation; empty phrases are rejected at
// the caller-facing boundary and never reach it.
func Compile(phrase string, size, fragments int) Query {
	if size <= 0 {
		size = DefaultSize
	}
	if fragments <= 0 {
		fragments = DefaultFragments
	}

	return Query{
		Query: boolWrapper{Bool: boolQuery{Should: []map[string]any{
			{"match": map[string]any{"headings": map[string]any{"query": phrase, "boost": 1}}},
			{"semantic": map[string]any{"field": "body", "query": phrase, "boost": 5}},
		}}},
		MinScore: minScore,
		Sort:     []map[string]any{{"_score": map[string]any{"order": "desc"}}},
		Size:     size,
		Highlight: highlight{
			NumberOfFragments: fragments,
			FragmentSize:      highlightFragmentSize,
			Fields:            map[string]struct{}{"body": {}},
		},
		Source: []string{"title", "url", "body"},
	}
}

// Body serializes the query to its wire form.
func (q Query) Body() ([]byte, error) {
	return json.Marshal(q)
}
