package ask

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kb-engine/internal/kb"
	"github.com/JakeFAU/kb-engine/internal/search"
)

// fakeSearcher serves canned documents per index and can fail whole
// indices.
type fakeSearcher struct {
	mu      sync.Mutex
	docs    map[string][]kb.Document
	failing map[string]error
	queries []search.Query
}

func (f *fakeSearcher) Search(_ context.Context, index string, query search.Query) ([]kb.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err := f.failing[index]; err != nil {
		return nil, err
	}
	return f.docs[index], nil
}

func targetsFor(names ...string) []kb.KnowledgeBase {
	targets := make([]kb.KnowledgeBase, len(names))
	for i, name := range names {
		targets[i] = kb.KnowledgeBase{Name: name, IndexName: "kb-docs." + name}
	}
	return targets
}

func TestAskMergesAcrossTargets(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{docs: map[string][]kb.Document{
		"kb-docs.go":     {{Title: "Goroutines", URL: "https://go.dev/a", Score: 20}},
		"kb-docs.python": {{Title: "Asyncio", URL: "https://python.org/a", Score: 30}},
	}}
	agg := New(searcher, 4, nil)

	answers, err := agg.Ask(context.Background(), []string{"concurrency"}, targetsFor("go", "python"), kb.StyleNormal)
	require.NoError(t, err)
	require.Len(t, answers, 1)

	answer := answers[0]
	require.Equal(t, "concurrency", answer.Phrase)
	require.Empty(t, answer.Failures)
	require.Len(t, answer.Retrieved, 2)
	// Merged results come back score-descending regardless of target order.
	require.Equal(t, "Asyncio", answer.Retrieved[0].Title)
	require.Equal(t, "Goroutines", answer.Retrieved[1].Title)
	require.NotEmpty(t, answer.Text)
}

func TestAskDeduplicatesByURL(t *testing.T) {
	t.Parallel()

	shared := kb.Document{Title: "Shared Page", URL: "https://example.com/page", Score: 15}
	searcher := &fakeSearcher{docs: map[string][]kb.Document{
		"kb-docs.a": {shared},
		"kb-docs.b": {{Title: "Shared Page (copy)", URL: "https://example.com/page", Score: 12}},
	}}
	agg := New(searcher, 4, nil)

	answers, err := agg.Ask(context.Background(), []string{"shared"}, targetsFor("a", "b"), kb.StyleNormal)
	require.NoError(t, err)
	require.Len(t, answers[0].Retrieved, 1)
	// First occurrence wins, in target order.
	require.Equal(t, "Shared Page", answers[0].Retrieved[0].Title)
}

func TestAskExhaustiveSkipsDedupeAndSynthesis(t *testing.T) {
	t.Parallel()

	shared := kb.Document{Title: "Shared", URL: "https://example.com/page", Score: 15}
	searcher := &fakeSearcher{docs: map[string][]kb.Document{
		"kb-docs.a": {shared},
		"kb-docs.b": {shared},
	}}
	agg := New(searcher, 4, nil)

	answers, err := agg.Ask(context.Background(), []string{"shared"}, targetsFor("a", "b"), kb.StyleExhaustive)
	require.NoError(t, err)
	require.Len(t, answers[0].Retrieved, 2, "exhaustive keeps duplicates")
	require.Empty(t, answers[0].Text, "exhaustive skips the synthesized answer")
}

func TestAskRecordsPerTargetFailures(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		docs:    map[string][]kb.Document{"kb-docs.up": {{Title: "Doc", URL: "https://up.example.com", Score: 11}}},
		failing: map[string]error{"kb-docs.down": errors.New("shard failure")},
	}
	agg := New(searcher, 4, nil)

	answers, err := agg.Ask(context.Background(), []string{"q"}, targetsFor("up", "down"), kb.StyleNormal)
	require.NoError(t, err, "one target's failure never aborts the batch")

	answer := answers[0]
	require.Len(t, answer.Retrieved, 1)
	require.Len(t, answer.Failures, 1)
	require.Equal(t, "down", answer.Failures[0].KnowledgeBase)
	require.Contains(t, answer.Failures[0].Reason, "shard failure")
}

func TestAskMultipleQuestionsKeepOrder(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{docs: map[string][]kb.Document{
		"kb-docs.a": {{Title: "Doc", URL: "https://a.example.com", Score: 11}},
	}}
	agg := New(searcher, 2, nil)

	questions := []string{"first", "second", "third"}
	answers, err := agg.Ask(context.Background(), questions, targetsFor("a"), kb.StyleConcise)
	require.NoError(t, err)
	require.Len(t, answers, 3)
	for i, answer := range answers {
		require.Equal(t, questions[i], answer.Phrase)
	}
}

func TestAskStyleControlsDepth(t *testing.T) {
	t.Parallel()

	var docs []kb.Document
	for i := 0; i < 20; i++ {
		docs = append(docs, kb.Document{
			Title: "Doc",
			URL:   "https://example.com/" + strings.Repeat("x", i+1),
			Score: float64(20 - i),
		})
	}
	searcher := &fakeSearcher{docs: map[string][]kb.Document{"kb-docs.a": docs}}
	agg := New(searcher, 4, nil)

	answers, err := agg.Ask(context.Background(), []string{"q"}, targetsFor("a"), kb.StyleConcise)
	require.NoError(t, err)
	require.Len(t, answers[0].Retrieved, 1)

	answers, err = agg.Ask(context.Background(), []string{"q"}, targetsFor("a"), kb.StyleComprehensive)
	require.NoError(t, err)
	require.Len(t, answers[0].Retrieved, 8)

	// The compiled query requests the per-target depth.
	searcher.mu.Lock()
	defer searcher.mu.Unlock()
	require.Equal(t, 1, searcher.queries[0].Size)
	require.Equal(t, 8, searcher.queries[1].Size)
}

func TestAskRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	agg := New(&fakeSearcher{}, 4, nil)

	_, err := agg.Ask(context.Background(), nil, targetsFor("a"), kb.StyleNormal)
	require.Error(t, err)

	_, err = agg.Ask(context.Background(), []string{"ok", "   "}, targetsFor("a"), kb.StyleNormal)
	require.ErrorIs(t, err, kb.ErrEmptyPhrase)

	_, err = agg.Ask(context.Background(), []string{"ok"}, nil, kb.StyleNormal)
	require.Error(t, err)
}

func TestAskAnswerTextIncludesSources(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{docs: map[string][]kb.Document{
		"kb-docs.a": {{
			Title:           "Effective Go",
			URL:             "https://go.dev/doc/effective_go",
			Score:           18,
			HighlightedBody: []string{"Do not communicate by sharing memory."},
		}},
	}}
	agg := New(searcher, 4, nil)

	answers, err := agg.Ask(context.Background(), []string{"concurrency advice"}, targetsFor("a"), kb.StyleNormal)
	require.NoError(t, err)

	text := answers[0].Text
	require.Contains(t, text, "concurrency advice")
	require.Contains(t, text, "Effective Go")
	require.Contains(t, text, "https://go.dev/doc/effective_go")
	require.Contains(t, text, "Do not communicate by sharing memory.")
}

func TestAskNoResults(t *testing.T) {
	t.Parallel()

	agg := New(&fakeSearcher{}, 4, nil)
	answers, err := agg.Ask(context.Background(), []string{"nothing"}, targetsFor("a"), kb.StyleNormal)
	require.NoError(t, err)
	require.Empty(t, answers[0].Retrieved)
	require.Contains(t, answers[0].Text, "No matching documents")
}
