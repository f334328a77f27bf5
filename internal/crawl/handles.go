package crawl

import (
	"strings"
	"sync"

	"github.com/JakeFAU/kb-engine/internal/kb"
)

// HandleStore is an in-process registry of job handles keyed by full
// worker id. It is a lookup cache only; worker state authority stays
// with the control plane.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[string]kb.CrawlJob
}

// NewHandleStore returns an empty HandleStore.
func NewHandleStore() *HandleStore {
	return &HandleStore{handles: make(map[string]kb.CrawlJob)}
}

// Put records or refreshes a handle.
func (s *HandleStore) Put(job kb.CrawlJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[job.JobID] = job
}

// Delete drops a handle if present.
func (s *HandleStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
}

// Resolve finds the handle whose id matches the given exact id or
// unambiguous prefix. Zero matches is kb.ErrNotFound; more than one is
// kb.ErrAmbiguousID, never a silent pick of the first match.
func (s *HandleStore) Resolve(idPrefix string) (kb.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if job, ok := s.handles[idPrefix]; ok {
		return job, nil
	}
	var matches []kb.CrawlJob
	for id, job := range s.handles {
		if strings.HasPrefix(id, idPrefix) {
			matches = append(matches, job)
		}
	}
	switch len(matches) {
	case 0:
		return kb.CrawlJob{}, kb.NotFoundError("crawl job", idPrefix)
	case 1:
		return matches[0], nil
	default:
		return kb.CrawlJob{}, kb.AmbiguousIDError(idPrefix, len(matches))
	}
}
