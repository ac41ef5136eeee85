package lib

import (
	"errors"
	"fmt"
	"time"

	"github.com/feedstockops/fsops/internal/model"
)

var (
	// ErrLaunch indicates the container could not be started at all (image
	// pull, container creation, attach or start failed).
	ErrLaunch = errors.New("launch failed")
	// ErrTimeout indicates the operation exceeded its wall-clock limit.
	ErrTimeout = errors.New("operation timed out")
	// ErrCancelled indicates the caller's context was cancelled while the
	// operation was running.
	ErrCancelled = errors.New("operation cancelled")
	// ErrOutputProtocol indicates the container produced bytes that are not
	// a valid output archive.
	ErrOutputProtocol = errors.New("invalid output stream")
	// ErrNotValid indicates invalid input.
	ErrNotValid = errors.New("not valid")
)

// ContainerRuntimeError is returned when the operation itself failed inside
// the container: nonzero exit, missing result envelope, or an explicit error
// field in the result.
type ContainerRuntimeError struct {
	// Operation is the operation that failed.
	Operation string
	// ExitCode is the container's exit code. Zero when the process exited
	// cleanly but the result reported a failure.
	ExitCode int
	// Message describes the failure.
	Message string
}

func (e *ContainerRuntimeError) Error() string {
	return fmt.Sprintf("operation %q failed: %s", e.Operation, e.Message)
}

// Mount exposes a host directory to an operation.
type Mount struct {
	// HostPath is the host directory to expose.
	HostPath string
	// Name is the directory name inside the container. Defaults to the base
	// name of HostPath.
	Name string
	// ReadOnly disables writing container changes back to HostPath.
	ReadOnly bool
}

// Resources limits the container's compute resources. Zero values use the
// defaults (1 CPU, 6000 MB memory, 6000 MB tmpfs).
type Resources struct {
	// CPUs is the CPU limit. Can be fractional (e.g. 0.5).
	CPUs float64
	// MemoryMB is the memory limit in megabytes.
	MemoryMB int64
	// TmpfsSizeMB is the size of the writable /tmp tmpfs in megabytes.
	TmpfsSizeMB int64
}

// OperationOverrides overrides the client-level defaults for one operation.
//
// Pass nil to use the defaults from [Config].
type OperationOverrides struct {
	// Image overrides the client's default container image.
	Image string
	// Timeout overrides the client's default wall-clock limit.
	Timeout time.Duration
	// Env adds environment variables on top of the client's defaults.
	// Same-name variables override the client-level values.
	Env map[string]string
	// Resources overrides the client's resource limits field by field, zero
	// fields keep the client values.
	Resources Resources
}

// RunOperationOpts configures one arbitrary operation run.
type RunOperationOpts struct {
	// Operation is the operation name passed to the in-container entrypoint
	// (required).
	Operation string
	// Args are extra arguments for the operation.
	Args []string
	// Mount optionally exposes a host directory to the operation.
	Mount *Mount
	// Overrides overrides the client-level operation defaults.
	Overrides *OperationOverrides
}

// RerenderOpts configures a rerender.
//
// Pass nil to [Client.Rerender] to use defaults.
type RerenderOpts struct {
	// ExclusiveConfigFile is an optional pinnings file used instead of the
	// image's bundled pinning repo copy.
	ExclusiveConfigFile string
	// Overrides overrides the client-level operation defaults.
	Overrides *OperationOverrides
}

// LintResult maps each recipe path (relative to the feedstock) to its
// findings.
type LintResult struct {
	// Lints are the blocking findings per recipe.
	Lints map[string][]string
	// Hints are the non-blocking suggestions per recipe.
	Hints map[string][]string
	// Errors reports the recipes whose linting itself failed.
	Errors map[string]bool
}

// RerenderResult is the outcome of a rerender.
type RerenderResult struct {
	// CommitMessage is the suggested commit message. Empty when the
	// rerender changed nothing.
	CommitMessage string
	// Changed reports whether the rerender produced any changes.
	Changed bool
}

// ParseNamesResult holds the names parsed from a feedstock's recipe.
type ParseNamesResult struct {
	// FeedstockName is the feedstock's own name.
	FeedstockName string
	// PackageNames are the names of the packages the feedstock builds.
	PackageNames []string
	// Subdirs are the platform subdirs the feedstock builds for.
	Subdirs []string
}

func toInternalMount(m *Mount) *model.VirtualMount {
	if m == nil {
		return nil
	}
	return &model.VirtualMount{
		HostPath: m.HostPath,
		Name:     m.Name,
		ReadOnly: m.ReadOnly,
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var cre *model.ContainerRuntimeError
	if errors.As(err, &cre) {
		return &ContainerRuntimeError{
			Operation: cre.Operation,
			ExitCode:  cre.ExitCode,
			Message:   cre.Message,
		}
	}

	switch {
	case errors.Is(err, model.ErrLaunch):
		return joinErrors(err, ErrLaunch)
	case errors.Is(err, model.ErrTimeout):
		return joinErrors(err, ErrTimeout)
	case errors.Is(err, model.ErrCancelled):
		return joinErrors(err, ErrCancelled)
	case errors.Is(err, model.ErrOutputProtocol):
		return joinErrors(err, ErrOutputProtocol)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

// mappedError keeps the internal error message while matching the public
// sentinel with errors.Is.
type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
