// Package docker implements the process supervisor on top of the Docker
// engine API.
package docker

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"

	"github.com/feedstockops/fsops/internal/conventions"
	"github.com/feedstockops/fsops/internal/log"
	"github.com/feedstockops/fsops/internal/model"
	"github.com/feedstockops/fsops/internal/supervisor"
)

// stopGracePeriod is how long a container gets to exit after SIGTERM before
// it is killed.
const stopGracePeriod = 10 * time.Second

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// SupervisorConfig is the configuration for the Docker supervisor.
type SupervisorConfig struct {
	Client DockerClient
	Logger log.Logger
}

func (c *SupervisorConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "supervisor.Docker"})
	return nil
}

// Supervisor is the Docker implementation of supervisor.Supervisor.
type Supervisor struct {
	client DockerClient
	logger log.Logger
}

// NewSupervisor creates a new Docker supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Supervisor{
		client: cfg.Client,
		logger: cfg.Logger,
	}, nil
}

// Run runs one container to completion. The input feed, output drain and
// process wait progress concurrently and join before Run returns, so neither
// stream can fill its buffer and deadlock the container. The container is
// always removed before returning.
func (s *Supervisor) Run(ctx context.Context, spec supervisor.RunSpec) (*supervisor.RunResult, error) {
	if spec.Image == "" || len(spec.Command) == 0 {
		return nil, fmt.Errorf("image and command are required: %w", model.ErrNotValid)
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	// Pull the image.
	s.logger.Debugf("Pulling image: %s", spec.Image)
	pullResp, err := s.client.ImagePull(runCtx, spec.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not pull image %s: %w: %w", spec.Image, err, model.ErrLaunch)
	}
	_, _ = io.Copy(io.Discard, pullResp)
	pullResp.Close()

	// Create the container, hardened: read-only rootfs except a tmpfs on
	// /tmp, no capabilities, no privilege escalation.
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	containerName := fmt.Sprintf("%s-%s", conventions.ContainerNamePrefix, strings.ToLower(id))

	res := spec.Resources.WithDefaults()
	containerConfig := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Env:          containerEnv(spec.Env),
		OpenStdin:    true,
		StdinOnce:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			"fsops.operation": spec.Operation,
		},
	}
	hostConfig := &container.HostConfig{
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Tmpfs: map[string]string{
			"/tmp": fmt.Sprintf("rw,size=%dm,mode=1777", res.TmpfsSizeMB),
		},
		Resources: container.Resources{
			NanoCPUs: int64(res.CPUs * 1e9),
			Memory:   res.MemoryMB * 1024 * 1024,
			Ulimits: []*container.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 1024},
				{Name: "nproc", Soft: 2048, Hard: 2048},
			},
		},
	}

	s.logger.Debugf("Creating container %s for operation %q", containerName, spec.Operation)
	createResp, err := s.client.ContainerCreate(runCtx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("could not create container: %w: %w", err, model.ErrLaunch)
	}
	containerID := createResp.ID

	// Whatever happens from here on, the container does not outlive the
	// call.
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			s.logger.Warningf("Could not remove container %s: %v", containerName, err)
		}
	}()

	// Attach before start so no output byte is lost.
	hijack, err := s.client.ContainerAttach(runCtx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not attach to container: %w: %w", err, model.ErrLaunch)
	}
	defer hijack.Close()

	if err := s.client.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("could not start container: %w: %w", err, model.ErrLaunch)
	}
	s.logger.Debugf("Started container %s", containerName)

	stdin := spec.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	stdout := spec.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := spec.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	// Three concurrently progressing activities, joined at a single point:
	// feed input, drain output, wait for exit. Feeding everything before
	// reading anything would deadlock once either pipe buffer fills.
	exitCode := -1
	g, gctx := errgroup.WithContext(runCtx)

	// The hijacked connection doesn't take a context; close it to unblock
	// the transfer goroutines when the group dies.
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-gctx.Done():
			hijack.Close()
		case <-watchdogDone:
		}
	}()

	g.Go(func() error {
		if _, err := io.Copy(hijack.Conn, stdin); err != nil {
			return fmt.Errorf("could not feed input channel: %w", err)
		}
		// Half-close so the container sees EOF on its stdin.
		if err := hijack.CloseWrite(); err != nil {
			return fmt.Errorf("could not close input channel: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// The attach stream multiplexes stdout and stderr; split them so
		// diagnostic output never pollutes the archive stream.
		if _, err := stdcopy.StdCopy(stdout, stderr, hijack.Reader); err != nil {
			return fmt.Errorf("could not drain output channel: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitCh, errCh := s.client.ContainerWait(gctx, containerID, container.WaitConditionNotRunning)
		select {
		case resp := <-waitCh:
			if resp.Error != nil {
				return fmt.Errorf("wait failed: %s: %w", resp.Error.Message, model.ErrLaunch)
			}
			exitCode = int(resp.StatusCode)
			return nil
		case err := <-errCh:
			return fmt.Errorf("could not wait for container: %w", err)
		}
	})

	groupErr := g.Wait()

	// Timeout and cancellation dominate transfer errors: terminate the
	// container (graceful stop, then the deferred force-remove) and
	// surface the bounded-time violation.
	if ctxErr := runCtx.Err(); ctxErr != nil {
		s.stop(containerID, containerName)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("container %s exceeded %s: %w", containerName, spec.Timeout, model.ErrTimeout)
		}
		return nil, fmt.Errorf("container %s: %w", containerName, model.ErrCancelled)
	}

	if groupErr != nil {
		// A nonzero exit frequently truncates the streams; the exit code
		// is the authoritative failure signal, so report it alongside.
		if exitCode > 0 {
			s.logger.Debugf("Transfer error after exit code %d: %v", exitCode, groupErr)
			return &supervisor.RunResult{ExitCode: exitCode}, nil
		}
		return nil, groupErr
	}

	s.logger.Debugf("Container %s exited with code %d", containerName, exitCode)
	return &supervisor.RunResult{ExitCode: exitCode}, nil
}

// stop terminates the container with a grace period. Errors are logged only:
// the deferred force-remove is the backstop.
func (s *Supervisor) stop(containerID, containerName string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGracePeriod+5*time.Second)
	defer cancel()

	graceSeconds := int(stopGracePeriod.Seconds())
	if err := s.client.ContainerStop(stopCtx, containerID, container.StopOptions{Timeout: &graceSeconds}); err != nil {
		s.logger.Warningf("Could not stop container %s: %v", containerName, err)
	}
}

// containerEnv renders the env map in deterministic order, with the
// in-container marker always set.
func containerEnv(env map[string]string) []string {
	vars := make([]string, 0, len(env)+1)
	vars = append(vars, conventions.InContainerEnvVar+"=true")
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vars = append(vars, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return vars
}
