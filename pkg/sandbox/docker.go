package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/rhuss/vizlaunch/pkg/debug"
)

// dockerAPI is the subset of the Docker Engine client used by DockerRunner.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerRunner runs jobs through the Docker Engine API.
type DockerRunner struct {
	api            dockerAPI
	limits         Limits
	memoryBytes    int64
	nanoCPUs       int64
	maxOutputBytes int
	workspace      *Workspace
	newName        func() string
}

var _ Runner = (*DockerRunner)(nil)

// DockerOptions configures a DockerRunner.
type DockerOptions struct {
	Limits         Limits
	MaxOutputBytes int
	Workspace      *Workspace
}

// NewDockerRunner connects to the daemon from the environment (DOCKER_HOST
// and friends) and verifies it answers a ping.
func NewDockerRunner(ctx context.Context, opts DockerOptions) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("%w: docker daemon not accessible: %v", ErrUnavailable, err)
	}

	return newDockerRunner(cli, opts)
}

func newDockerRunner(api dockerAPI, opts DockerOptions) (*DockerRunner, error) {
	r := &DockerRunner{
		api:            api,
		limits:         opts.Limits,
		maxOutputBytes: opts.MaxOutputBytes,
		workspace:      opts.Workspace,
	}
	if opts.Limits.Memory != "" {
		mem, err := units.RAMInBytes(opts.Limits.Memory)
		if err != nil {
			return nil, fmt.Errorf("parse memory limit %q: %w", opts.Limits.Memory, err)
		}
		r.memoryBytes = mem
	}
	if opts.Limits.CPUs != "" {
		cpus, err := strconv.ParseFloat(opts.Limits.CPUs, 64)
		if err != nil || cpus <= 0 {
			return nil, fmt.Errorf("parse cpu limit %q: must be a positive number", opts.Limits.CPUs)
		}
		r.nanoCPUs = int64(cpus * 1e9)
	}
	return r, nil
}

// Name returns the runtime identifier.
func (r *DockerRunner) Name() string { return "docker-api" }

// HealthCheck pings the daemon.
func (r *DockerRunner) HealthCheck(ctx context.Context) error {
	if _, err := r.api.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Run creates a container for the job, waits for it and collects its logs.
// The container is always removed.
func (r *DockerRunner) Run(ctx context.Context, job *Job) (*Result, error) {
	if err := r.ensureImage(ctx, job.Language.Image); err != nil {
		return nil, err
	}

	codePath, cleanup, err := r.workspace.WriteCode(job)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	containerConfig, hostConfig := r.containerSpec(job, codePath)

	name := "vizlaunch-" + job.ID
	if r.newName != nil {
		name = r.newName()
	}
	created, err := r.api.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	containerID := created.ID
	debug.Log("sandbox", "container created", "execution_id", job.ID, "container_id", containerID, "image", job.Language.Image)

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.api.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			debug.Log("sandbox", "container remove failed", "container_id", containerID, "error", err.Error())
		}
	}()

	runCtx, cancel := withTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	if err := r.api.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := r.api.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case <-runCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = r.api.ContainerKill(killCtx, containerID, "SIGKILL")
		result := &Result{ExitCode: -1, Duration: time.Since(start)}
		return result, classifyContextErr(ctx, runCtx)
	case err := <-errCh:
		if err != nil {
			if ctxErr := classifyContextErr(ctx, runCtx); ctxErr != nil {
				return &Result{ExitCode: -1, Duration: time.Since(start)}, ctxErr
			}
			return nil, fmt.Errorf("wait for container: %w", err)
		}
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return nil, fmt.Errorf("wait for container: %s", status.Error.Message)
		}
		exitCode = status.StatusCode
	}
	duration := time.Since(start)

	logs, err := r.api.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("read container logs: %w", err)
	}
	defer logs.Close()

	out := NewOutputBuffer(r.maxOutputBytes)
	if _, err := stdcopy.StdCopy(out, out, logs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("demultiplex container logs: %w", err)
	}

	return &Result{
		Output:    out.String(),
		ExitCode:  int(exitCode),
		Duration:  duration,
		Truncated: out.Truncated(),
	}, nil
}

func (r *DockerRunner) containerSpec(job *Job, codePath string) (*container.Config, *container.HostConfig) {
	lang := job.Language

	networkMode := r.limits.Network
	if networkMode == "" {
		networkMode = "none"
	}

	containerConfig := &container.Config{
		Image:           lang.Image,
		Cmd:             driverCommand(lang, lang.MountPath),
		Env:             []string{"HOME=/tmp"},
		NetworkDisabled: networkMode == "none",
		Labels: map[string]string{
			"io.vizlaunch.execution-id": job.ID,
			"io.vizlaunch.language":     lang.Name,
		},
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(networkMode),
		Mounts: []mount.Mount{
			{
				Type:     mount.TypeBind,
				Source:   codePath,
				Target:   lang.MountPath,
				ReadOnly: true,
			},
		},
		Resources: container.Resources{
			Memory:   r.memoryBytes,
			NanoCPUs: r.nanoCPUs,
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 1024},
			},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,nosuid,size=100m",
		},
	}
	if r.limits.PidsLimit > 0 {
		pids := r.limits.PidsLimit
		hostConfig.Resources.PidsLimit = &pids
	}
	return containerConfig, hostConfig
}

// ensureImage pulls the image when it is not present locally.
func (r *DockerRunner) ensureImage(ctx context.Context, ref string) error {
	if _, err := r.api.ImageInspect(ctx, ref); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("%w: inspect image %s: %v", ErrUnavailable, ref, err)
	}

	debug.Log("sandbox", "pulling image", "image", ref)
	reader, err := r.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()

	// The pull completes only once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	return nil
}
