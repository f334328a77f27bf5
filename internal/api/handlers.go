package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/kb-engine/internal/catalog"
	"github.com/JakeFAU/kb-engine/internal/crawl"
	"github.com/JakeFAU/kb-engine/internal/kb"
	"github.com/JakeFAU/kb-engine/internal/metrics"
)

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var seed crawl.Seed
	if err := json.NewDecoder(r.Body).Decode(&seed); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}
	if seed.URL == "" {
		writeError(w, s.logger, http.StatusBadRequest, "url required")
		return
	}
	job, err := s.orchestrator.Start(r.Context(), seed)
	metrics.ObserveCrawlStart(seed.URL, err)
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, job)
}

type crawlBatchRequest struct {
	Seeds []crawl.Seed `json:"seeds"`
}

// startCrawlBatch always answers 200 with one result slot per seed;
// per-seed failures live in those slots, not in the response status.
func (s *Server) startCrawlBatch(w http.ResponseWriter, r *http.Request) {
	var req crawlBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Seeds) == 0 {
		writeError(w, s.logger, http.StatusBadRequest, "at least one seed required")
		return
	}
	results := s.orchestrator.CrawlMany(r.Context(), req.Seeds)
	for i, res := range results {
		metrics.ObserveCrawlStart(req.Seeds[i].URL, res.Err)
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) listCrawls(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.orchestrator.List(r.Context())
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.Status(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, job)
}

func (s *Server) getCrawlLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.orchestrator.Logs(r.Context(), chi.URLParam(r, "job_id"), s.logTail)
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"logs": logs})
}

func (s *Server) stopCrawl(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.Stop(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, job)
}

func (s *Server) removeCompleted(w http.ResponseWriter, r *http.Request) {
	removed, failures, err := s.orchestrator.RemoveCompleted(r.Context())
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	metrics.ObserveWorkersRemoved(removed)
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"removed":  removed,
		"failures": failures,
	})
}

func (s *Server) createKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, s.logger, http.StatusBadRequest, "name required")
		return
	}
	base, err := s.catalog.Create(r.Context(), req)
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, base)
}

func (s *Server) listKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	bases, err := s.catalog.List(r.Context(), r.URL.Query().Get("pattern"))
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"knowledge_bases": bases})
}

func (s *Server) getKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	base, err := s.catalog.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, base)
}

func (s *Server) deleteKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.catalog.Delete(r.Context(), name); err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"name": name, "status": "deleted"})
}

type askRequest struct {
	Questions      []string       `json:"questions"`
	KnowledgeBases []string       `json:"knowledge_bases,omitempty"`
	Style          kb.AnswerStyle `json:"style,omitempty"`
}

// ask targets the named knowledge bases, or every known one when none
// are named.
func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, s.logger, http.StatusBadRequest, "at least one question required")
		return
	}
	style := req.Style
	if style == "" {
		style = kb.StyleNormal
	}
	if !style.Valid() {
		writeError(w, s.logger, http.StatusBadRequest, "unknown style "+string(style))
		return
	}

	targets, err := s.resolveTargets(r, req.KnowledgeBases)
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	if len(targets) == 0 {
		writeError(w, s.logger, http.StatusNotFound, "no knowledge bases to ask")
		return
	}

	start := time.Now()
	answers, err := s.answerer.Ask(r.Context(), req.Questions, targets, style)
	if err != nil {
		writeError(w, s.logger, httpStatusFor(err), err.Error())
		return
	}
	metrics.ObserveAsk(string(style), len(req.Questions), time.Since(start))
	for _, answer := range answers {
		for _, failure := range answer.Failures {
			metrics.ObserveSearchError(failure.KnowledgeBase)
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"answers": answers})
}

func (s *Server) resolveTargets(r *http.Request, names []string) ([]kb.KnowledgeBase, error) {
	if len(names) == 0 {
		return s.catalog.List(r.Context(), "")
	}
	targets := make([]kb.KnowledgeBase, 0, len(names))
	for _, name := range names {
		base, err := s.catalog.Get(r.Context(), name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, base)
	}
	return targets, nil
}
