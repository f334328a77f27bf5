// Package docker implements the crawl.ContainerRuntime interface on top
// of the Docker Engine API.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/JakeFAU/kb-engine/internal/crawl"
	"github.com/JakeFAU/kb-engine/internal/kb"
)

// memoryReservation is the soft memory limit applied to every worker.
const memoryReservation = 512 * 1024 * 1024

// Runtime is a Docker-backed worker control plane.
type Runtime struct {
	cli    client.APIClient
	logger *zap.Logger
}

// New builds a Runtime from the environment (DOCKER_HOST et al.).
func New(logger *zap.Logger) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return NewWithClient(cli, logger), nil
}

// NewWithClient wraps an existing API client; used by tests.
func NewWithClient(cli client.APIClient, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{cli: cli, logger: logger}
}

// Close releases the underlying client connection.
func (r *Runtime) Close() error {
	return r.cli.Close()
}

// EnsureImage pulls the image only when it is not available locally.
func (r *Runtime) EnsureImage(ctx context.Context, ref string) error {
	if _, _, err := r.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return kb.BackendUnavailableError("docker", err)
	}

	r.logger.Info("pulling worker image", zap.String("image", ref))
	rc, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return kb.BackendUnavailableError("docker", err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return kb.BackendUnavailableError("docker", err)
	}
	return nil
}

// Create creates the worker and injects the configuration files before
// it ever runs. A name conflict maps to kb.ErrDuplicateJob.
func (r *Runtime) Create(ctx context.Context, spec crawl.ContainerSpec) (string, error) {
	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:  spec.Image,
			Cmd:    spec.Cmd,
			Labels: spec.Labels,
		},
		&container.HostConfig{
			AutoRemove: false,
			Resources:  container.Resources{MemoryReservation: memoryReservation},
		},
		nil, nil, spec.Name,
	)
	if err != nil {
		if errdefs.IsConflict(err) {
			return "", kb.DuplicateJobError(spec.Name)
		}
		return "", kb.BackendUnavailableError("docker", err)
	}

	for _, f := range spec.Files {
		stream, err := f.TarStream()
		if err != nil {
			return "", err
		}
		if err := r.cli.CopyToContainer(ctx, created.ID, "/", stream, container.CopyToContainerOptions{}); err != nil {
			return "", kb.BackendUnavailableError("docker", err)
		}
	}
	return created.ID, nil
}

// Start starts a created worker.
func (r *Runtime) Start(ctx context.Context, id string) error {
	if err := r.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return kb.BackendUnavailableError("docker", err)
	}
	return nil
}

// List enumerates workers carrying the label in every state.
func (r *Runtime) List(ctx context.Context, labelKey, labelValue string) ([]crawl.ContainerInfo, error) {
	containers, err := r.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelKey+"="+labelValue)),
	})
	if err != nil {
		return nil, kb.BackendUnavailableError("docker", err)
	}

	infos := make([]crawl.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		info, err := r.Inspect(ctx, c.ID)
		if err != nil {
			// The container can disappear between list and inspect.
			if errors.Is(err, kb.ErrNotFound) {
				continue
			}
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Inspect returns the control plane's current view of one worker.
func (r *Runtime) Inspect(ctx context.Context, id string) (crawl.ContainerInfo, error) {
	detail, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return crawl.ContainerInfo{}, kb.NotFoundError("worker", shortID(id))
		}
		return crawl.ContainerInfo{}, kb.BackendUnavailableError("docker", err)
	}

	info := crawl.ContainerInfo{
		ID:   detail.ID,
		Name: strings.TrimPrefix(detail.Name, "/"),
	}
	if detail.Config != nil {
		info.Labels = detail.Config.Labels
	}
	if st := detail.State; st != nil {
		info.Running = st.Running
		info.Created = st.Status == "created"
		info.ExitCode = st.ExitCode
		info.Error = st.Error
		info.StartedAt = parseDockerTime(st.StartedAt)
		info.FinishedAt = parseDockerTime(st.FinishedAt)
	}
	return info, nil
}

// Logs returns combined stdout/stderr, demultiplexed from the engine's
// log stream.
func (r *Runtime) Logs(ctx context.Context, id string, tail int) (string, error) {
	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: "all"}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}
	rc, err := r.cli.ContainerLogs(ctx, id, opts)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", kb.NotFoundError("worker", shortID(id))
		}
		return "", kb.BackendUnavailableError("docker", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return "", kb.BackendUnavailableError("docker", err)
	}
	return buf.String(), nil
}

// Remove deletes a worker; force also stops a running one.
func (r *Runtime) Remove(ctx context.Context, id string, force bool) error {
	err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return kb.NotFoundError("worker", shortID(id))
		}
		return kb.BackendUnavailableError("docker", err)
	}
	return nil
}

func parseDockerTime(value string) *time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
