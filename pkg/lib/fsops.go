package lib

import (
	"fmt"
	"time"

	dockercli "github.com/docker/docker/client"

	"github.com/feedstockops/fsops/internal/app/run"
	"github.com/feedstockops/fsops/internal/log"
	"github.com/feedstockops/fsops/internal/model"
	"github.com/feedstockops/fsops/internal/supervisor/docker"
	"github.com/feedstockops/fsops/internal/utils/env"
)

// Config configures the SDK client.
//
// Image is required, everything else has sensible defaults.
type Config struct {
	// Image is the default container image operations run in (required,
	// unless every call overrides it).
	Image string

	// Timeout is the default wall-clock limit per operation.
	// Default: none.
	Timeout time.Duration

	// Env contains environment variables forwarded into every operation's
	// container. Per-operation overrides merge on top.
	Env map[string]string

	// Resources limits the containers' compute resources.
	// Default: 1 CPU, 6000 MB memory, 6000 MB tmpfs.
	Resources Resources

	// ContainerLogLevel is the log level passed to the in-container
	// entrypoint. Default: "info".
	ContainerLogLevel string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point for running feedstock operations.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	launcher run.Launcher
	logger   log.Logger

	image     string
	timeout   time.Duration
	baseEnv   map[string]string
	resources Resources

	closeFn func() error
}

// New creates a new SDK client backed by the local Docker daemon.
//
// The caller must call [Client.Close] when done to release the Docker
// connection. Typically used with defer:
//
//	client, err := lib.New(lib.Config{Image: "condaforge/feedstock-ops:latest"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cli, err := dockercli.NewClientWithOpts(dockercli.FromEnv, dockercli.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("could not create Docker client: %w", err)
	}

	supervisor, err := docker.NewSupervisor(docker.SupervisorConfig{
		Client: cli,
		Logger: cfg.Logger,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("could not create supervisor: %w", err)
	}

	launcher, err := run.NewService(run.ServiceConfig{
		Supervisor:        supervisor,
		ContainerLogLevel: cfg.ContainerLogLevel,
		Logger:            cfg.Logger,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("could not create launcher: %w", err)
	}

	return &Client{
		launcher:  launcher,
		logger:    cfg.Logger,
		image:     cfg.Image,
		timeout:   cfg.Timeout,
		baseEnv:   cfg.Env,
		resources: cfg.Resources,
		closeFn:   cli.Close,
	}, nil
}

// Close releases resources held by the client, including the Docker
// connection. After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// operationConfig resolves the effective operation configuration from the
// client defaults and the per-call overrides.
func (c *Client) operationConfig(o *OperationOverrides) model.OperationConfig {
	cfg := model.OperationConfig{
		Image:   c.image,
		Timeout: c.timeout,
		Env:     c.baseEnv,
		Resources: model.Resources{
			CPUs:        c.resources.CPUs,
			MemoryMB:    c.resources.MemoryMB,
			TmpfsSizeMB: c.resources.TmpfsSizeMB,
		},
	}

	if o == nil {
		return cfg
	}

	if o.Image != "" {
		cfg.Image = o.Image
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	if len(o.Env) > 0 {
		cfg.Env = env.Merge(c.baseEnv, o.Env)
	}
	if o.Resources.CPUs != 0 {
		cfg.Resources.CPUs = o.Resources.CPUs
	}
	if o.Resources.MemoryMB != 0 {
		cfg.Resources.MemoryMB = o.Resources.MemoryMB
	}
	if o.Resources.TmpfsSizeMB != 0 {
		cfg.Resources.TmpfsSizeMB = o.Resources.TmpfsSizeMB
	}

	return cfg
}
