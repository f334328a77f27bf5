// Package kb defines core types shared across subsystems.
package kb

import "time"

// SourceKind identifies how a knowledge base is populated.
type SourceKind string

// Source kinds recorded in knowledge base metadata.
const (
	SourceKindDocs   SourceKind = "docs"
	SourceKindNotes  SourceKind = "notes"
	SourceKindImport SourceKind = "import"
)

// KnowledgeBase is the metadata for one named, independently queryable
// document collection backed by a single index.
type KnowledgeBase struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IndexName   string     `json:"index_name"`
	SourceKind  SourceKind `json:"source_kind"`
	DataSource  string     `json:"data_source,omitempty"`
	DocCount    int64      `json:"doc_count"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
}

// JobState is the lifecycle state of a crawl job, re-derived from the
// worker control plane on every query.
type JobState string

// Crawl job states.
const (
	JobStatePending JobState = "pending"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateErrored JobState = "errored"
	JobStateRemoved JobState = "removed"
)

// CrawlJob is the handle for one external worker instance populating a
// knowledge base from a seed.
type CrawlJob struct {
	JobID         string     `json:"job_id"`
	Name          string     `json:"name"`
	SeedURL       string     `json:"seed_url"`
	Domain        string     `json:"domain"`
	FilterPattern string     `json:"filter_pattern"`
	OutputIndex   string     `json:"output_index"`
	State         JobState   `json:"state"`
	ExitCode      int        `json:"exit_code,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Document is a single ranked hit mapped from the search backend. It is
// never persisted by the engine.
type Document struct {
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Body            string   `json:"body,omitempty"`
	Score           float64  `json:"score"`
	HighlightedBody []string `json:"highlighted_body,omitempty"`
}

// AnswerStyle is the requested verbosity and result depth for a question.
type AnswerStyle string

// Answer styles, in increasing thoroughness.
const (
	StyleConcise       AnswerStyle = "concise"
	StyleNormal        AnswerStyle = "normal"
	StyleComprehensive AnswerStyle = "comprehensive"
	StyleExhaustive    AnswerStyle = "exhaustive"
)

// ResultDepth maps a style to the number of hits and highlight fragments
// requested per target.
func (s AnswerStyle) ResultDepth() int {
	switch s {
	case StyleConcise:
		return 1
	case StyleComprehensive:
		return 8
	case StyleExhaustive:
		return 12
	default:
		return 4
	}
}

// Valid reports whether s is a recognized style.
func (s AnswerStyle) Valid() bool {
	switch s {
	case StyleConcise, StyleNormal, StyleComprehensive, StyleExhaustive:
		return true
	}
	return false
}

// Answer is the merged result for one question, constructed and
// discarded per request.
type Answer struct {
	Phrase    string      `json:"phrase"`
	Style     AnswerStyle `json:"style"`
	Retrieved []Document  `json:"retrieved"`
	Text      string      `json:"answer_text,omitempty"`
	// Failures records per-target errors that were excluded from the
	// merged result instead of aborting the batch.
	Failures []TargetFailure `json:"failures,omitempty"`
}

// TargetFailure is one (question, knowledge base) pair that could not be
// searched.
type TargetFailure struct {
	KnowledgeBase string `json:"knowledge_base"`
	Reason        string `json:"reason"`
}
