package crawl

import (
	"context"
	"time"
)

// Labels applied to every worker the orchestrator creates. ManagedByValue
// distinguishes our workers from unrelated containers on the same host.
const (
	ManagedByLabel   = "managed-by"
	ManagedByValue   = "kb-engine"
	DomainLabel      = "crawl-domain"
	OutputIndexLabel = "output-index"
	SeedURLLabel     = "seed-url"
	FilterLabel      = "filter-pattern"
)

// ContainerSpec describes a worker to create. Files are injected into
// the container filesystem before start.
type ContainerSpec struct {
	Name   string
	Image  string
	Cmd    []string
	Labels map[string]string
	Files  []InjectFile
}

// ContainerInfo is the control plane's view of a worker, re-derived on
// every call rather than cached.
type ContainerInfo struct {
	ID         string
	Name       string
	Labels     map[string]string
	Running    bool
	Created    bool
	ExitCode   int
	Error      string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ContainerRuntime is the worker control plane. Implementations map
// transport failures to kb.ErrBackendUnavailable, name conflicts on
// Create to kb.ErrDuplicateJob, and unknown ids to kb.ErrNotFound.
type ContainerRuntime interface {
	// EnsureImage checks local availability of the image and pulls it if
	// absent. Idempotent.
	EnsureImage(ctx context.Context, image string) error
	// Create creates a worker and injects spec.Files, without starting it.
	Create(ctx context.Context, spec ContainerSpec) (id string, err error)
	Start(ctx context.Context, id string) error
	// List enumerates workers carrying the given label, in every state.
	List(ctx context.Context, labelKey, labelValue string) ([]ContainerInfo, error)
	Inspect(ctx context.Context, id string) (ContainerInfo, error)
	// Logs returns up to tail lines of combined output; tail <= 0 means
	// everything.
	Logs(ctx context.Context, id string, tail int) (string, error)
	Remove(ctx context.Context, id string, force bool) error
}
