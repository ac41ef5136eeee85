// Package parsenames extracts the feedstock name and built package names
// from a feedstock's recipe, parsing it inside a container.
package parsenames

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/feedstockops/fsops/internal/app/run"
	"github.com/feedstockops/fsops/internal/log"
	"github.com/feedstockops/fsops/internal/model"
)

// ServiceConfig is the configuration for the parsenames service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.ParseNames"})
	return nil
}

// Service parses feedstock and package names.
type Service struct {
	launcher run.Launcher
	logger   log.Logger
}

// NewService creates a new parsenames service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		launcher: cfg.Launcher,
		logger:   cfg.Logger,
	}, nil
}

// Request contains the parameters for a parse.
type Request struct {
	// FeedstockDir is the host path of the feedstock to parse.
	FeedstockDir string
	// Config is the operation configuration bundle.
	Config model.OperationConfig
}

// Result holds the parsed names.
type Result struct {
	FeedstockName string   `json:"feedstock_name"`
	PackageNames  []string `json:"package_names"`
	Subdirs       []string `json:"subdirs"`
}

// Run parses the names of a feedstock. Parsing never modifies the
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
		Operation: "parse-package-and-feedstock-names",
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
		return nil, fmt.Errorf("unexpected parse result shape: %w", err)
	}

	s.logger.Debugf("Parsed %s: feedstock %q, %d packages", dir, result.FeedstockName, len(result.PackageNames))
	return &result, nil
}
