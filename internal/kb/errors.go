package kb

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's error taxonomy. Wrapped values remain
// matchable with errors.Is.
var (
	// ErrConfig marks an unparsable or unusable seed descriptor.
	ErrConfig = errors.New("invalid crawl configuration")
	// ErrDuplicateJob marks an attempt to start a worker whose derived
	// name is already claimed.
	ErrDuplicateJob = errors.New("crawl job already running")
	// ErrNotFound marks an unknown knowledge base or job id.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousID marks a short id prefix matching more than one
	// managed worker.
	ErrAmbiguousID = errors.New("ambiguous id prefix")
	// ErrBackendUnavailable marks a connection or timeout failure against
	// the search backend or the worker control plane.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrDuplicateKnowledgeBase marks a name or index collision on create.
	ErrDuplicateKnowledgeBase = errors.New("knowledge base already exists")
	// ErrEmptyPhrase marks an empty search phrase rejected at the API
	// boundary.
	ErrEmptyPhrase = errors.New("search phrase must not be empty")
)

// ConfigError wraps ErrConfig with the offending seed.
func ConfigError(seed string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: seed %q", ErrConfig, seed)
	}
	return fmt.Errorf("%w: seed %q: %v", ErrConfig, seed, cause)
}

// DuplicateJobError wraps ErrDuplicateJob with the derived worker name.
func DuplicateJobError(name string) error {
	return fmt.Errorf("%w: worker %q", ErrDuplicateJob, name)
}

// NotFoundError wraps ErrNotFound with what was looked up.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// AmbiguousIDError wraps ErrAmbiguousID with the prefix and match count.
func AmbiguousIDError(prefix string, matches int) error {
	return fmt.Errorf("%w: %q matches %d workers", ErrAmbiguousID, prefix, matches)
}

// BackendUnavailableError wraps ErrBackendUnavailable with the subsystem
// that failed.
func BackendUnavailableError(subsystem string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, subsystem, cause)
}

// DuplicateKnowledgeBaseError wraps ErrDuplicateKnowledgeBase with the
// colliding name.
func DuplicateKnowledgeBaseError(name string) error {
	return fmt.Errorf("%w: %q", ErrDuplicateKnowledgeBase, name)
}
