package model

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunch is returned when the container could not be started at all
	// (image pull, create, attach or start failed). It is never retried.
	ErrLaunch = errors.New("launch failed")
	// ErrTimeout is returned when an operation exceeded its wall-clock bound.
	// The container is always terminated before this surfaces.
	ErrTimeout = errors.New("operation timed out")
	// ErrCancelled is returned when the caller cancelled the operation.
	// The container is always terminated before this surfaces.
	ErrCancelled = errors.New("operation cancelled")
	// ErrOutputProtocol is returned when the container's output channel
	// carries bytes that are not valid archive framing.
	ErrOutputProtocol = errors.New("output protocol violation")
	// ErrPathTraversal is returned when an archive entry would escape its
	// destination root, via parent segments or symlink targets.
	ErrPathTraversal = errors.New("archive path traversal")
	// ErrEncode is returned when a directory tree cannot be serialized.
	ErrEncode = errors.New("archive encode failed")
	// ErrDecode is returned on truncated or corrupt archive framing.
	ErrDecode = errors.New("archive decode failed")
	// ErrNotValid is returned when a request or configuration is not valid.
	ErrNotValid = errors.New("not valid")
)

// ContainerRuntimeError is the unifying failure the caller sees when the
// operation inside the container failed: nonzero exit code, missing result
// envelope, or an explicit error reported in the envelope.
type ContainerRuntimeError struct {
	// Operation is the logical command that was run.
	Operation string
	// ExitCode is the container's exit code.
	ExitCode int
	// Message is the human-readable failure description.
	Message string
}

func (e *ContainerRuntimeError) Error() string {
	return fmt.Sprintf("operation %q failed: %s", e.Operation, e.Message)
}
