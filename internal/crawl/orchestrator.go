package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/kb-engine/internal/kb"
)

// SeedValidator pre-flights a seed URL before a worker is started.
type SeedValidator interface {
	Validate(ctx context.Context, seedURL string) error
}

// Config controls Orchestrator behavior.
type Config struct {
	// Image is the worker image reference.
	Image string
	// NamePrefix prefixes every derived worker name.
	NamePrefix string
	// IndexPrefix is used when a seed does not carry an explicit output
	// index.
	IndexPrefix string
	// LogTail bounds how many trailing log lines are read when
	// classifying an exited worker.
	LogTail int
	// BatchConcurrency bounds batch fan-out; zero means 4.
	BatchConcurrency int
}

// Orchestrator drives worker lifecycle (create, start, poll, stop,
// remove) against a ContainerRuntime. It never retries internally; a
// failure surfaces as a typed error and retrying is the caller's
// responsibility.
type Orchestrator struct {
	rt        ContainerRuntime
	synth     *Synthesizer
	handles   *HandleStore
	validator SeedValidator
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. validator may be nil to skip seed
// pre-flight.
func New(rt ContainerRuntime, synth *Synthesizer, handles *HandleStore, validator SeedValidator, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "kb-crawler"
	}
	if cfg.LogTail <= 0 {
		cfg.LogTail = 40
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		rt:        rt,
		synth:     synth,
		handles:   handles,
		validator: validator,
		cfg:       cfg,
		logger:    logger,
	}
}

// EnsureWorkerImage checks local availability of the worker image and
// pulls it if absent. Idempotent.
func (o *Orchestrator) EnsureWorkerImage(ctx context.Context) error {
	if err := o.rt.EnsureImage(ctx, o.cfg.Image); err != nil {
		return fmt.Errorf("ensure worker image %q: %w", o.cfg.Image, err)
	}
	return nil
}

// Seed is one unit of a batch start request.
type Seed struct {
	URL          string   `json:"url"`
	OutputIndex  string   `json:"output_index,omitempty"`
	ExcludePaths []string `json:"exclude_paths,omitempty"`
}

// SeedResult tags one batch entry as success or failure, preserving the
// input order of the batch.
type SeedResult struct {
	SeedURL string       `json:"seed_url"`
	Job     *kb.CrawlJob `json:"job,omitempty"`
	Error   string       `json:"error,omitempty"`

	// Err carries the typed error for programmatic inspection.
	Err error `json:"-"`
}

// WorkerName derives the deterministic worker name for a (domain,
// filter pattern) pair. Duplicate starts collide on this name instead of
// silently doubling a crawl.
func (o *Orchestrator) WorkerName(p Params) string {
	return o.cfg.NamePrefix + "-" + kb.SanitizeSuffix(p.Domain+p.FilterPattern)
}

// Start synthesizes the configuration artifact for the seed and launches
// a worker for it, returning a handle in state Running. A worker already
// claiming the derived name yields kb.ErrDuplicateJob.
func (o *Orchestrator) Start(ctx context.Context, seed Seed) (kb.CrawlJob, error) {
	params, err := DeriveParams(seed.URL)
	if err != nil {
		return kb.CrawlJob{}, err
	}

	if o.validator != nil {
		if err := o.validator.Validate(ctx, seed.URL); err != nil {
			return kb.CrawlJob{}, err
		}
	}

	outputIndex := seed.OutputIndex
	if outputIndex == "" {
		outputIndex = kb.IndexName(o.cfg.IndexPrefix, kb.SourceKindDocs, params.IndexSuffix)
	}

	artifact := o.synth.Build(params, outputIndex, seed.ExcludePaths)
	file, err := o.synth.Render(artifact)
	if err != nil {
		return kb.CrawlJob{}, err
	}

	spec := ContainerSpec{
		Name:  o.WorkerName(params),
		Image: o.cfg.Image,
		Cmd:   []string{"ruby", "bin/crawler", "crawl", file.Path},
		Labels: map[string]string{
			ManagedByLabel:   ManagedByValue,
			DomainLabel:      params.Domain,
			OutputIndexLabel: outputIndex,
			SeedURLLabel:     params.SeedURL,
			FilterLabel:      params.FilterPattern,
		},
		Files: []InjectFile{file},
	}

	id, err := o.rt.Create(ctx, spec)
	if err != nil {
		return kb.CrawlJob{}, err
	}
	if err := o.rt.Start(ctx, id); err != nil {
		return kb.CrawlJob{}, fmt.Errorf("start worker %s: %w", shortID(id), err)
	}

	job := kb.CrawlJob{
		JobID:         id,
		Name:          spec.Name,
		SeedURL:       params.SeedURL,
		Domain:        params.Domain,
		FilterPattern: params.FilterPattern,
		OutputIndex:   outputIndex,
		State:         kb.JobStateRunning,
	}
	o.handles.Put(job)

	o.logger.Info("crawl worker started",
		zap.String("job_id", shortID(id)),
		zap.String("domain", params.Domain),
		zap.String("output_index", outputIndex),
	)
	return job, nil
}

// CrawlMany starts one worker per seed as a structured concurrent
// fan-out. One seed's failure never cancels its siblings; the batch
// always completes with one result slot per input seed, in input order.
func (o *Orchestrator) CrawlMany(ctx context.Context, seeds []Seed) []SeedResult {
	results := make([]SeedResult, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.BatchConcurrency)
	for i, seed := range seeds {
		g.Go(func() error {
			job, err := o.Start(gctx, seed)
			if err != nil {
				results[i] = SeedResult{SeedURL: seed.URL, Err: err, Error: err.Error()}
				return nil
			}
			results[i] = SeedResult{SeedURL: seed.URL, Job: &job}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// List enumerates every worker created by this orchestrator, classifying
// state from the control plane's reported exit code and log markers.
func (o *Orchestrator) List(ctx context.Context) ([]kb.CrawlJob, error) {
	infos, err := o.rt.List(ctx, ManagedByLabel, ManagedByValue)
	if err != nil {
		return nil, err
	}
	jobs := make([]kb.CrawlJob, 0, len(infos))
	for _, info := range infos {
		job := o.jobFromInfo(ctx, info)
		o.handles.Put(job)
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Status resolves a worker by exact id or unambiguous short-id prefix
// among managed workers only and returns its current state.
func (o *Orchestrator) Status(ctx context.Context, idPrefix string) (kb.CrawlJob, error) {
	info, err := o.resolve(ctx, idPrefix)
	if err != nil {
		return kb.CrawlJob{}, err
	}
	job := o.jobFromInfo(ctx, info)
	o.handles.Put(job)
	return job, nil
}

// Logs returns up to tail lines of a managed worker's output.
func (o *Orchestrator) Logs(ctx context.Context, idPrefix string, tail int) (string, error) {
	info, err := o.resolve(ctx, idPrefix)
	if err != nil {
		return "", err
	}
	return o.rt.Logs(ctx, info.ID, tail)
}

// Stop stops and removes a managed worker. Subsequent Status or Logs
// calls on the same id return kb.ErrNotFound.
func (o *Orchestrator) Stop(ctx context.Context, idPrefix string) (kb.CrawlJob, error) {
	info, err := o.resolve(ctx, idPrefix)
	if err != nil {
		return kb.CrawlJob{}, err
	}
	if err := o.rt.Remove(ctx, info.ID, true); err != nil {
		return kb.CrawlJob{}, fmt.Errorf("remove worker %s: %w", shortID(info.ID), err)
	}
	job := o.jobFromInfo(ctx, info)
	job.State = kb.JobStateRemoved
	o.handles.Delete(info.ID)
	o.logger.Info("crawl worker removed", zap.String("job_id", shortID(info.ID)))
	return job, nil
}

// RemovalError is one per-worker failure from RemoveCompleted.
type RemovalError struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// RemoveCompleted removes every managed worker currently Done or
// Errored. Partial failure is not fatal to the batch: it returns the
// removal count alongside per-worker errors.
func (o *Orchestrator) RemoveCompleted(ctx context.Context) (int, []RemovalError, error) {
	jobs, err := o.List(ctx)
	if err != nil {
		return 0, nil, err
	}

	removed := 0
	var failures []RemovalError
	for _, job := range jobs {
		if job.State != kb.JobStateDone && job.State != kb.JobStateErrored {
			continue
		}
		if err := o.rt.Remove(ctx, job.JobID, false); err != nil {
			failures = append(failures, RemovalError{JobID: shortID(job.JobID), Error: err.Error()})
			continue
		}
		o.handles.Delete(job.JobID)
		removed++
	}
	o.logger.Info("completed workers removed",
		zap.Int("removed", removed),
		zap.Int("failed", len(failures)),
	)
	return removed, failures, nil
}

// Handles exposes the in-process handle cache.
func (o *Orchestrator) Handles() *HandleStore {
	return o.handles
}

// resolve expands an id prefix to the worker's control-plane view. A
// unique cached handle saves the enumeration round trip; the control
// plane stays authoritative, so the cache hit is confirmed with an
// Inspect and a stale handle falls through to the full scan.
func (o *Orchestrator) resolve(ctx context.Context, idPrefix string) (ContainerInfo, error) {
	if idPrefix == "" {
		return ContainerInfo{}, kb.NotFoundError("crawl job", idPrefix)
	}
	if job, err := o.handles.Resolve(idPrefix); err == nil {
		info, ierr := o.rt.Inspect(ctx, job.JobID)
		switch {
		case ierr == nil:
			return info, nil
		case errors.Is(ierr, kb.ErrNotFound):
			o.handles.Delete(job.JobID)
		default:
			return ContainerInfo{}, ierr
		}
	}
	infos, err := o.rt.List(ctx, ManagedByLabel, ManagedByValue)
	if err != nil {
		return ContainerInfo{}, err
	}
	var matches []ContainerInfo
	for _, info := range infos {
		if info.ID == idPrefix {
			return info, nil
		}
		if strings.HasPrefix(info.ID, idPrefix) {
			matches = append(matches, info)
		}
	}
	switch len(matches) {
	case 0:
		return ContainerInfo{}, kb.NotFoundError("crawl job", idPrefix)
	case 1:
		return matches[0], nil
	default:
		return ContainerInfo{}, kb.AmbiguousIDError(idPrefix, len(matches))
	}
}

func (o *Orchestrator) jobFromInfo(ctx context.Context, info ContainerInfo) kb.CrawlJob {
	state := classifyState(info, "")
	if state == kb.JobStateDone {
		// Exit 0 alone is not trusted; the worker logs failure markers
		// even when the process exits cleanly.
		logs, err := o.rt.Logs(ctx, info.ID, o.cfg.LogTail)
		if err == nil {
			state = classifyState(info, logs)
		}
	}
	return kb.CrawlJob{
		JobID:         info.ID,
		Name:          info.Name,
		SeedURL:       info.Labels[SeedURLLabel],
		Domain:        info.Labels[DomainLabel],
		FilterPattern: info.Labels[FilterLabel],
		OutputIndex:   info.Labels[OutputIndexLabel],
		State:         state,
		ExitCode:      info.ExitCode,
		StartedAt:     info.StartedAt,
		FinishedAt:    info.FinishedAt,
	}
}

// classifyState derives a job state from the control plane's view of a
// worker plus, for clean exits, its trailing log lines.
func classifyState(info ContainerInfo, tailLogs string) kb.JobState {
	switch {
	case info.Running:
		return kb.JobStateRunning
	case info.Created:
		return kb.JobStatePending
	}
	if info.ExitCode != 0 || info.Error != "" || hasFailureMarker(tailLogs) {
		return kb.JobStateErrored
	}
	return kb.JobStateDone
}

func hasFailureMarker(logs string) bool {
	return strings.Contains(logs, "[ERROR") || strings.Contains(logs, "FATAL")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
