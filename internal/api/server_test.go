package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/kb-engine/internal/catalog"
	"github.com/JakeFAU/kb-engine/internal/crawl"
	"github.com/JakeFAU/kb-engine/internal/kb"
	"github.com/JakeFAU/kb-engine/internal/metrics"
)

type fakeOrchestrator struct {
	startJob   kb.CrawlJob
	startErr   error
	batch      []crawl.SeedResult
	jobs       []kb.CrawlJob
	listErr    error
	statusJob  kb.CrawlJob
	statusErr  error
	logs       string
	logsTail   int
	stopJob    kb.CrawlJob
	stopErr    error
	removed    int
	removeErrs []crawl.RemovalError
}

func (f *fakeOrchestrator) Start(context.Context, crawl.Seed) (kb.CrawlJob, error) {
	return f.startJob, f.startErr
}

func (f *fakeOrchestrator) CrawlMany(context.Context, []crawl.Seed) []crawl.SeedResult {
	return f.batch
}

func (f *fakeOrchestrator) List(context.Context) ([]kb.CrawlJob, error) {
	return f.jobs, f.listErr
}

func (f *fakeOrchestrator) Status(context.Context, string) (kb.CrawlJob, error) {
	return f.statusJob, f.statusErr
}

func (f *fakeOrchestrator) Logs(_ context.Context, _ string, tail int) (string, error) {
	f.logsTail = tail
	return f.logs, nil
}

func (f *fakeOrchestrator) Stop(context.Context, string) (kb.CrawlJob, error) {
	return f.stopJob, f.stopErr
}

func (f *fakeOrchestrator) RemoveCompleted(context.Context) (int, []crawl.RemovalError, error) {
	return f.removed, f.removeErrs, nil
}

type fakeCatalog struct {
	bases     map[string]kb.KnowledgeBase
	listErr   error
	createErr error
	deleteErr error
}

func (f *fakeCatalog) Create(_ context.Context, req catalog.CreateRequest) (kb.KnowledgeBase, error) {
	if f.createErr != nil {
		return kb.KnowledgeBase{}, f.createErr
	}
	return kb.KnowledgeBase{Name: req.Name, IndexName: "kb-docs.test"}, nil
}

func (f *fakeCatalog) Get(_ context.Context, name string) (kb.KnowledgeBase, error) {
	base, ok := f.bases[name]
	if !ok {
		return kb.KnowledgeBase{}, kb.NotFoundError("knowledge base", name)
	}
	return base, nil
}

func (f *fakeCatalog) List(context.Context, string) ([]kb.KnowledgeBase, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]kb.KnowledgeBase, 0, len(f.bases))
	for _, base := range f.bases {
		out = append(out, base)
	}
	return out, nil
}

func (f *fakeCatalog) Delete(context.Context, string) error {
	return f.deleteErr
}

type fakeAnswerer struct {
	targets []kb.KnowledgeBase
	style   kb.AnswerStyle
	answers []kb.Answer
	err     error
}

func (f *fakeAnswerer) Ask(_ context.Context, questions []string, targets []kb.KnowledgeBase, style kb.AnswerStyle) ([]kb.Answer, error) {
	f.targets = targets
	f.style = style
	if f.err != nil {
		return nil, f.err
	}
	if f.answers != nil {
		return f.answers, nil
	}
	answers := make([]kb.Answer, len(questions))
	for i, q := range questions {
		answers[i] = kb.Answer{Phrase: q, Style: style}
	}
	return answers, nil
}

func newTestServer(orch *fakeOrchestrator, cat *fakeCatalog, ans *fakeAnswerer) *httptest.Server {
	metrics.Init()
	if orch == nil {
		orch = &fakeOrchestrator{}
	}
	if cat == nil {
		cat = &fakeCatalog{bases: map[string]kb.KnowledgeBase{}}
	}
	if ans == nil {
		ans = &fakeAnswerer{}
	}
	return httptest.NewServer(NewServer(orch, cat, ans, 0, nil).Handler())
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var payload map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	defer srv.Close()

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"ok"`, string(payload["status"]))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestReadyzBackendDown(t *testing.T) {
	cat := &fakeCatalog{listErr: kb.BackendUnavailableError("elasticsearch", errors.New("refused"))}
	srv := newTestServer(nil, cat, nil)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStartCrawl(t *testing.T) {
	orch := &fakeOrchestrator{startJob: kb.CrawlJob{JobID: "abc123", State: kb.JobStateRunning}}
	srv := newTestServer(orch, nil, nil)
	defer srv.Close()

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/v1/crawls",
		crawl.Seed{URL: "https://docs.example.com/guide/"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `"abc123"`, string(payload["job_id"]))
}

func TestStartCrawlRequiresURL(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/crawls", crawl.Seed{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartCrawlErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"duplicate job", kb.DuplicateJobError("w"), http.StatusConflict},
		{"bad seed", kb.ConfigError("not-a-url", nil), http.StatusBadRequest},
		{"backend down", kb.BackendUnavailableError("docker", errors.New("refused")), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeOrchestrator{startErr: tt.err}, nil, nil)
			defer srv.Close()

			resp, payload := doJSON(t, http.MethodPost, srv.URL+"/v1/crawls",
				crawl.Seed{URL: "https://docs.example.com/"})
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestStartCrawlBatchAlwaysOK(t *testing.T) {
	orch := &fakeOrchestrator{batch: []crawl.SeedResult{
		{SeedURL: "https://a.example.com/", Job: &kb.CrawlJob{JobID: "a1"}},
		{SeedURL: "https://b.example.com/", Error: "duplicate", Err: kb.DuplicateJobError("w")},
	}}
	srv := newTestServer(orch, nil, nil)
	defer srv.Close()

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/v1/crawls/batch", map[string]any{
		"seeds": []crawl.Seed{{URL: "https://a.example.com/"}, {URL: "https://b.example.com/"}},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var results []crawl.SeedResult
	require.NoError(t, json.Unmarshal(payload["results"], &results))
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "duplicate", results[1].Error)
}

func TestGetCrawlNotFound(t *testing.T) {
	orch := &fakeOrchestrator{statusErr: kb.NotFoundError("job", "fff")}
	srv := newTestServer(orch, nil, nil)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/crawls/fff", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetCrawlAmbiguous(t *testing.T) {
	orch := &fakeOrchestrator{statusErr: kb.AmbiguousIDError("0", 2)}
	srv := newTestServer(orch, nil, nil)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/crawls/0", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetCrawlLogsUsesConfiguredTail(t *testing.T) {
	orch := &fakeOrchestrator{logs: "line1\nline2"}
	srv := newTestServer(orch, nil, nil)
	defer srv.Close()

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/v1/crawls/abc/logs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"line1\nline2"`, string(payload["logs"]))
	assert.Equal(t, 40, orch.logsTail)
}

func TestRemoveCompleted(t *testing.T) {
	orch := &fakeOrchestrator{
		removed:    2,
		removeErrs: []crawl.RemovalError{{JobID: "bad123", Error: "in use"}},
	}
	srv := newTestServer(orch, nil, nil)
	defer srv.Close()

	resp, payload := doJSON(t, http.MethodDelete, srv.URL+"/v1/crawls/completed", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `2`, string(payload["removed"]))

	var failures []crawl.RemovalError
	require.NoError(t, json.Unmarshal(payload["failures"], &failures))
	require.Len(t, failures, 1)
	assert.Equal(t, "bad123", failures[0].JobID)
}

func TestCreateKnowledgeBase(t *testing.T) {
	srv := newTestServer(nil, &fakeCatalog{}, nil)
	defer srv.Close()

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/v1/knowledge-bases",
		catalog.CreateRequest{Name: "go-docs"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `"go-docs"`, string(payload["name"]))
}

func TestCreateKnowledgeBaseConflict(t *testing.T) {
	cat := &fakeCatalog{createErr: kb.DuplicateKnowledgeBaseError("go-docs")}
	srv := newTestServer(nil, cat, nil)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/knowledge-bases",
		catalog.CreateRequest{Name: "go-docs"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateKnowledgeBaseRequiresName(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/knowledge-bases", catalog.CreateRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetKnowledgeBase(t *testing.T) {
	cat := &fakeCatalog{bases: map[string]kb.KnowledgeBase{
		"go-docs": {Name: "go-docs", IndexName: "kb-docs.go_dev"},
	}}
	srv := newTestServer(nil, cat, nil)
	defer srv.Close()

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/v1/knowledge-bases/go-docs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"kb-docs.go_dev"`, string(payload["index_name"]))

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/knowledge-bases/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAskNamedTargets(t *testing.T) {
	cat := &fakeCatalog{bases: map[string]kb.KnowledgeBase{
		"go-docs": {Name: "go-docs", IndexName: "kb-docs.go_dev"},
		"notes":   {Name: "notes", IndexName: "kb-notes.scratch"},
	}}
	ans := &fakeAnswerer{}
	srv := newTestServer(nil, cat, ans)
	defer srv.Close()

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/v1/ask", map[string]any{
		"questions":       []string{"what is a goroutine"},
		"knowledge_bases": []string{"go-docs"},
		"style":           "concise",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var answers []kb.Answer
	require.NoError(t, json.Unmarshal(payload["answers"], &answers))
	require.Len(t, answers, 1)
	assert.Equal(t, "what is a goroutine", answers[0].Phrase)

	require.Len(t, ans.targets, 1)
	assert.Equal(t, "go-docs", ans.targets[0].Name)
	assert.Equal(t, kb.StyleConcise, ans.style)
}

func TestAskDefaultsToAllTargets(t *testing.T) {
	cat := &fakeCatalog{bases: map[string]kb.KnowledgeBase{
		"go-docs": {Name: "go-docs"},
		"notes":   {Name: "notes"},
	}}
	ans := &fakeAnswerer{}
	srv := newTestServer(nil, cat, ans)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/ask", map[string]any{
		"questions": []string{"q"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, ans.targets, 2)
	assert.Equal(t, kb.StyleNormal, ans.style)
}

func TestAskNoTargets(t *testing.T) {
	srv := newTestServer(nil, &fakeCatalog{bases: map[string]kb.KnowledgeBase{}}, nil)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/ask", map[string]any{
		"questions": []string{"q"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAskUnknownStyle(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/ask", map[string]any{
		"questions": []string{"q"},
		"style":     "verbose",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskUnknownTarget(t *testing.T) {
	srv := newTestServer(nil, &fakeCatalog{bases: map[string]kb.KnowledgeBase{}}, nil)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/ask", map[string]any{
		"questions":       []string{"q"},
		"knowledge_bases": []string{"missing"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAskCountsTargetFailures(t *testing.T) {
	cat := &fakeCatalog{bases: map[string]kb.KnowledgeBase{"flaky-kb": {Name: "flaky-kb"}}}
	ans := &fakeAnswerer{answers: []kb.Answer{{
		Phrase:   "q",
		Failures: []kb.TargetFailure{{KnowledgeBase: "flaky-kb", Reason: "shard failure"}},
	}}}
	srv := newTestServer(nil, cat, ans)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/ask", map[string]any{
		"questions": []string{"q"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `kb_search_errors_total{knowledge_base="flaky-kb"}`)
}

func TestAskEmptyPhrase(t *testing.T) {
	cat := &fakeCatalog{bases: map[string]kb.KnowledgeBase{"go-docs": {Name: "go-docs"}}}
	ans := &fakeAnswerer{err: kb.ErrEmptyPhrase}
	srv := newTestServer(nil, cat, ans)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/ask", map[string]any{
		"questions": []string{"   "},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecoverMiddleware(t *testing.T) {
	// A handler panic must surface as a 500, not kill the server.
	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
