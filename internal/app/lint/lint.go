// Package lint runs recipe linting for a feedstock inside a container.
package lint

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/feedstockops/fsops/internal/app/run"
	"github.com/feedstockops/fsops/internal/log"
	"github.com/feedstockops/fsops/internal/model"
)

// ServiceConfig is the configuration for the lint service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Lint"})
	return nil
}

// Service lints feedstock recipes.
type Service struct {
	launcher run.Launcher
	logger   log.Logger
}

// NewService creates a new lint service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		launcher: cfg.Launcher,
		logger:   cfg.Logger,
	}, nil
}

// Request contains the parameters for linting a feedstock.
type Request struct {
	// FeedstockDir is the host path of the feedstock to lint.
	FeedstockDir string
	// Config is the operation configuration bundle.
	Config model.OperationConfig
}

// Result maps each recipe path (relative to the feedstock) to its lints,
// hints and whether linting that recipe errored.
type Result struct {
	Lints  map[string][]string `json:"lints"`
	Hints  map[string][]string `json:"hints"`
	Errors map[string]bool     `json:"errors"`
}

// Run lints all recipes in a feedstock. Linting never modifies the
// feedstock, so the mount is read-only.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.FeedstockDir == "" {
		return nil, fmt.Errorf("feedstock directory is required: %w", model.ErrNotValid)
	}

	dir, err := filepath.Abs(req.FeedstockDir)
	if err != nil {
		return nil, fmt.Errorf("invalid feedstock directory: %w", err)
	}

	data, err := s.launcher.Run(ctx, model.OperationRequest{
		Operation: "lint",
		Mount: &model.VirtualMount{
			HostPath: dir,
			Name:     filepath.Base(dir),
			ReadOnly: true,
		},
		Config: req.Config,
	})
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unexpected lint result shape: %w", err)
	}

	s.logger.Debugf("Linted %s: %d recipes", dir, len(result.Lints))
	return &result, nil
}
