// Package run implements the launcher: the single externally visible
// operation "run operation O with inputs I inside container image M, return
// data or fail".
package run

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/feedstockops/fsops/internal/conventions"
	"github.com/feedstockops/fsops/internal/log"
	"github.com/feedstockops/fsops/internal/model"
	"github.com/feedstockops/fsops/internal/result"
	"github.com/feedstockops/fsops/internal/supervisor"
	"github.com/feedstockops/fsops/internal/vmount"
)

// Launcher is the interface the per-operation services use to run one
// containerized operation.
type Launcher interface {
	Run(ctx context.Context, req model.OperationRequest) (json.RawMessage, error)
}

// ServiceConfig is the configuration for the launcher service.
type ServiceConfig struct {
	Supervisor supervisor.Supervisor
	// ContainerLogLevel is passed to the in-container entrypoint via its
	// --log-level flag.
	ContainerLogLevel string
	Logger            log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Supervisor == nil {
		return fmt.Errorf("supervisor is required")
	}
	if c.ContainerLogLevel == "" {
		c.ContainerLogLevel = "info"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Run"})
	return nil
}

// Service runs one operation per call inside an ephemeral container.
// Concurrent calls are independent: each gets its own container, bridge and
// scratch space. The host directory of a mount is exclusively owned by its
// in-flight operation; callers must not run concurrent operations against
// overlapping host directories.
type Service struct {
	supervisor        supervisor.Supervisor
	containerLogLevel string
	logger            log.Logger
}

// NewService creates a new launcher service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		supervisor:        cfg.Supervisor,
		containerLogLevel: cfg.ContainerLogLevel,
		logger:            cfg.Logger,
	}, nil
}

// Run executes one operation request and returns the operation's data field.
// Any failure surfaces as one of the model error taxonomy; the container
// never outlives the call, and a writable mount is only touched after the
// operation was interpreted as successful.
func (s *Service) Run(ctx context.Context, req model.OperationRequest) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	logger := s.logger.WithValues(log.Kv{"operation": req.Operation})

	bridge, err := vmount.NewBridge(vmount.BridgeConfig{Mount: req.Mount, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create mount bridge: %w", err)
	}
	defer bridge.Close()

	stdin := bridge.InputStream()
	defer stdin.Close()
	sink := bridge.OutputSink()

	command := []string{conventions.EntrypointCommand, req.Operation, "--log-level", s.containerLogLevel}
	command = append(command, req.Args...)

	logger.Infof("Running operation %q in image %s", req.Operation, req.Config.Image)
	status, runErr := s.supervisor.Run(ctx, supervisor.RunSpec{
		Operation: req.Operation,
		Image:     req.Config.Image,
		Command:   command,
		Env:       req.Config.Env,
		Resources: req.Config.Resources,
		Timeout:   req.Config.Timeout,
		Stdin:     stdin,
		Stdout:    sink,
		Stderr:    newLineLogger(logger),
	})
	// Output stream EOF: let the decoder finish regardless of outcome.
	_ = sink.Close()

	if runErr != nil {
		return nil, runErr
	}

	decodeErr := bridge.DecodeResult()
	if decodeErr != nil && status.ExitCode == 0 {
		return nil, decodeErr
	}

	data, err := result.Interpret(req.Operation, status.ExitCode, bridge.EnvelopePath())
	if err != nil {
		return nil, err
	}

	if err := bridge.Commit(); err != nil {
		return nil, err
	}

	logger.Debugf("Operation %q succeeded", req.Operation)
	return data, nil
}

// lineLogger forwards the container's diagnostic channel to the logger, one
// line at a time. The bytes are never parsed.
type lineLogger struct {
	logger log.Logger
	buf    bytes.Buffer
}

func newLineLogger(logger log.Logger) *lineLogger {
	return &lineLogger{logger: logger}
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line, keep it buffered.
			w.buf.WriteString(line)
			break
		}
		w.logger.Debugf("container: %s", line[:len(line)-1])
	}
	return len(p), nil
}
