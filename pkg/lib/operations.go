package lib

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/feedstockops/fsops/internal/app/lint"
	"github.com/feedstockops/fsops/internal/app/parsenames"
	"github.com/feedstockops/fsops/internal/app/rerender"
	"github.com/feedstockops/fsops/internal/model"
)

// RunOperation runs an arbitrary operation and returns its raw JSON result
// data.
//
// Use this for operations the typed methods ([Client.Lint],
// [Client.Rerender], [Client.ParseNames]) do not cover.
func (c *Client) RunOperation(ctx context.Context, opts RunOperationOpts) (json.RawMessage, error) {
	mount := toInternalMount(opts.Mount)
	if mount != nil && mount.Name == "" {
		mount.Name = filepath.Base(mount.HostPath)
	}

	data, err := c.launcher.Run(ctx, model.OperationRequest{
		Operation: opts.Operation,
		Args:      opts.Args,
		Mount:     mount,
		Config:    c.operationConfig(opts.Overrides),
	})
	if err != nil {
		return nil, mapError(err)
	}

	return data, nil
}

// Lint lints all recipes of the feedstock at feedstockDir.
//
// Pass nil opts to use the client defaults. The feedstock is never modified.
func (c *Client) Lint(ctx context.Context, feedstockDir string, opts *OperationOverrides) (*LintResult, error) {
	svc, err := lint.NewService(lint.ServiceConfig{
		Launcher: c.launcher,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create lint service: %w", err)
	}

	result, err := svc.Run(ctx, lint.Request{
		FeedstockDir: feedstockDir,
		Config:       c.operationConfig(opts),
	})
	if err != nil {
		return nil, mapError(err)
	}

	return &LintResult{
		Lints:  result.Lints,
		Hints:  result.Hints,
		Errors: result.Errors,
	}, nil
}

// Rerender rerenders the feedstock at feedstockDir in place.
//
// Pass nil opts to use the client defaults. On success the regenerated files
// are written back into the feedstock directory, its .git directory is never
// touched. On failure the directory is left as it was.
func (c *Client) Rerender(ctx context.Context, feedstockDir string, opts *RerenderOpts) (*RerenderResult, error) {
	svc, err := rerender.NewService(rerender.ServiceConfig{
		Launcher: c.launcher,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create rerender service: %w", err)
	}

	req := rerender.Request{FeedstockDir: feedstockDir}
	if opts != nil {
		req.ExclusiveConfigFile = opts.ExclusiveConfigFile
		req.Config = c.operationConfig(opts.Overrides)
	} else {
		req.Config = c.operationConfig(nil)
	}

	result, err := svc.Run(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	return &RerenderResult{
		CommitMessage: result.CommitMessage,
		Changed:       result.Changed,
	}, nil
}

// ParseNames parses the feedstock and package names from the recipe of the
// feedstock at feedstockDir.
//
// Pass nil opts to use the client defaults. The feedstock is never modified.
func (c *Client) ParseNames(ctx context.Context, feedstockDir string, opts *OperationOverrides) (*ParseNamesResult, error) {
	svc, err := parsenames.NewService(parsenames.ServiceConfig{
		Launcher: c.launcher,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create parse service: %w", err)
	}

	result, err := svc.Run(ctx, parsenames.Request{
		FeedstockDir: feedstockDir,
		Config:       c.operationConfig(opts),
	})
	if err != nil {
		return nil, mapError(err)
	}

	return &ParseNamesResult{
		FeedstockName: result.FeedstockName,
		PackageNames:  result.PackageNames,
		Subdirs:       result.Subdirs,
	}, nil
}
