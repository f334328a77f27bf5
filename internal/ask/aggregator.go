// Package ask fans questions out across knowledge bases and reduces the
// ranked results into answers.
package ask

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/kb-engine/internal/kb"
	"github.com/JakeFAU/kb-engine/internal/search"
)

// Aggregator answers questions by dispatching one retrieval query per
// (question, knowledge base) pair and merging the results per question.
type Aggregator struct {
	searcher       search.Searcher
	maxConcurrency int
	logger         *zap.Logger
}

// New constructs an Aggregator. maxConcurrency bounds the fan-out; zero
// means 8.
func New(searcher search.Searcher, maxConcurrency int, logger *zap.Logger) *Aggregator {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{searcher: searcher, maxConcurrency: maxConcurrency, logger: logger}
}

type pairResult struct {
	docs []kb.Document
	err  error
}

// Ask answers every question against every target. Each (question,
// target) pair is dispatched concurrently and independently awaited;
// a pair's failure is recorded on the answer and excluded from the
// merged result, never aborting the batch. Answers come back in
// question order.
//
// Empty phrases are rejected here, at the boundary, so the query
// compiler never sees one.
func (a *Aggregator) Ask(ctx context.Context, questions []string, targets []kb.KnowledgeBase, style kb.AnswerStyle) ([]kb.Answer, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("at least one question must be provided")
	}
	for _, q := range questions {
		if strings.TrimSpace(q) == "" {
			return nil, kb.ErrEmptyPhrase
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one knowledge base must be targeted")
	}
	if !style.Valid() {
		style = kb.StyleNormal
	}

	depth := style.ResultDepth()
	results := make([][]pairResult, len(questions))
	for i := range results {
		results[i] = make([]pairResult, len(targets))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrency)
	for qi, question := range questions {
		for ti, target := range targets {
			g.Go(func() error {
				docs, err := a.searcher.Search(gctx, target.IndexName, search.Compile(question, depth, depth))
				results[qi][ti] = pairResult{docs: docs, err: err}
				return nil
			})
		}
	}
	_ = g.Wait()

	answers := make([]kb.Answer, len(questions))
	for qi, question := range questions {
		answers[qi] = a.reduce(question, targets, results[qi], style, depth)
	}
	return answers, nil
}

// reduce merges one question's per-target results: failures are recorded,
// survivors are deduplicated by URL (first occurrence wins) and ordered
// by score descending. Exhaustive skips deduplication, truncation, and
// synthesis so the caller can read raw passages.
func (a *Aggregator) reduce(question string, targets []kb.KnowledgeBase, perTarget []pairResult, style kb.AnswerStyle, depth int) kb.Answer {
	answer := kb.Answer{Phrase: question, Style: style}

	var merged []kb.Document
	for ti, res := range perTarget {
		if res.err != nil {
			answer.Failures = append(answer.Failures, kb.TargetFailure{
				KnowledgeBase: targets[ti].Name,
				Reason:        res.err.Error(),
			})
			a.logger.Warn("search target failed",
				zap.String("knowledge_base", targets[ti].Name),
				zap.Error(res.err),
			)
			continue
		}
		merged = append(merged, res.docs...)
	}

	if style != kb.StyleExhaustive {
		merged = dedupeByURL(merged)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if style != kb.StyleExhaustive && len(merged) > depth {
		merged = merged[:depth]
	}

	answer.Retrieved = merged
	if style != kb.StyleExhaustive {
		answer.Text = renderAnswer(question, merged, style)
	}
	return answer
}

// dedupeByURL keeps the first occurrence of each URL. Documents without
// a URL are always kept.
func dedupeByURL(docs []kb.Document) []kb.Document {
	seen := make(map[string]struct{}, len(docs))
	out := docs[:0]
	for _, doc := range docs {
		if doc.URL != "" {
			if _, dup := seen[doc.URL]; dup {
				continue
			}
			seen[doc.URL] = struct{}{}
		}
		out = append(out, doc)
	}
	return out
}

// fragment budget per document, by style.
func fragmentBudget(style kb.AnswerStyle) int {
	switch style {
	case kb.StyleConcise:
		return 1
	case kb.StyleComprehensive:
		return 3
	default:
		return 2
	}
}

// renderAnswer builds an extractive summary from the ranked documents.
func renderAnswer(question string, docs []kb.Document, style kb.AnswerStyle) string {
	if len(docs) == 0 {
		return fmt.Sprintf("Question: %s\nNo matching documents found.", question)
	}

	budget := fragmentBudget(style)
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\nResults:\n", question)
	for _, doc := range docs {
		title := doc.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "  - Title: %s\n", title)
		if doc.URL != "" {
			fmt.Fprintf(&b, "    URL: %s\n", doc.URL)
		}
		fragments := doc.HighlightedBody
		if len(fragments) == 0 && doc.Body != "" {
			fragments = []string{doc.Body}
		}
		if len(fragments) > budget {
			fragments = fragments[:budget]
		}
		for _, fragment := range fragments {
			fmt.Fprintf(&b, "    Content: %s\n", strings.TrimSpace(fragment))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
