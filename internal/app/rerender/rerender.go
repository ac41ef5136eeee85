// Package rerender runs a feedstock rerender inside a container and writes
// the regenerated files back to the host feedstock.
package rerender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/feedstockops/fsops/internal/app/run"
	"github.com/feedstockops/fsops/internal/log"
	"github.com/feedstockops/fsops/internal/model"
)

// ServiceConfig is the configuration for the rerender service.
type ServiceConfig struct {
	Launcher run.Launcher
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Launcher == nil {
		return fmt.Errorf("launcher is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Rerender"})
	return nil
}

// Service rerenders feedstocks.
type Service struct {
	launcher run.Launcher
	logger   log.Logger
}

// NewService creates a new rerender service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		launcher: cfg.Launcher,
		logger:   cfg.Logger,
	}, nil
}

// Request contains the parameters for rerendering a feedstock.
type Request struct {
	// FeedstockDir is the host path of the feedstock to rerender. The
	// directory is modified in place on success (its .git is untouched).
	FeedstockDir string
	// ExclusiveConfigFile is an optional pinnings file used instead of
	// the image's bundled pinning repo copy.
	ExclusiveConfigFile string
	// Config is the operation configuration bundle.
	Config model.OperationConfig
}

// Result is the outcome of a rerender.
type Result struct {
	// CommitMessage is the suggested commit message. Empty when the
	// rerender changed nothing.
	CommitMessage string
	// Changed reports whether the rerender produced any changes.
	Changed bool
}

type resultPayload struct {
	CommitMessage *string `json:"commit_message"`
}

// exclusiveConfigName is the name the pinnings file gets inside the mount,
// where the container can reach it.
const exclusiveConfigName = ".fsops-exclusive-config.yaml"

// Run rerenders a feedstock. The mount is writable: every file the
// container regenerates is materialized back into the feedstock directory.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.FeedstockDir == "" {
		return nil, fmt.Errorf("feedstock directory is required: %w", model.ErrNotValid)
	}

	dir, err := filepath.Abs(req.FeedstockDir)
	if err != nil {
		return nil, fmt.Errorf("invalid feedstock directory: %w", err)
	}

	args := []string{}
	if req.Config.Timeout > 0 {
		args = append(args, "--timeout", strconv.Itoa(int(req.Config.Timeout.Seconds())))
	}

	if req.ExclusiveConfigFile != "" {
		// The only channel into the container is the mount, so the
		// pinnings file travels inside it under a reserved name.
		staged := filepath.Join(dir, exclusiveConfigName)
		if err := copyFile(req.ExclusiveConfigFile, staged); err != nil {
			return nil, fmt.Errorf("could not stage exclusive config file: %w", err)
		}
		defer os.Remove(staged)
		args = append(args, "--exclusive-config-file", exclusiveConfigName)
	}

	data, err := s.launcher.Run(ctx, model.OperationRequest{
		Operation: "rerender",
		Args:      args,
		Mount: &model.VirtualMount{
			HostPath: dir,
			Name:     filepath.Base(dir),
			ReadOnly: false,
		},
		Config: req.Config,
	})
	if err != nil {
		return nil, err
	}

	var payload resultPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unexpected rerender result shape: %w", err)
	}

	result := &Result{}
	if payload.CommitMessage != nil && *payload.CommitMessage != "" {
		result.CommitMessage = *payload.CommitMessage
		result.Changed = true
		s.logger.Infof("Rerender changed %s: %s", dir, result.CommitMessage)
	} else {
		s.logger.Infof("Rerender changed nothing in %s", dir)
	}

	return result, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
