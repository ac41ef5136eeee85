package supervisor

import (
	"context"
	"io"
	"time"

	"github.com/feedstockops/fsops/internal/model"
)

// RunSpec describes one container run: the image and command to execute and
// the byte streams wired to the container's standard channels.
type RunSpec struct {
	// Operation is the logical operation name, used for labels and logs.
	Operation string
	// Image is the container image reference.
	Image string
	// Command is the full command passed to the container.
	Command []string
	// Env are extra environment variables set inside the container.
	Env map[string]string
	// Resources are the container resource limits.
	Resources model.Resources
	// Timeout is the wall-clock bound for the run. Zero means no timeout.
	Timeout time.Duration

	// Stdin is fed into the container's input channel, concurrently with
	// output draining. Nil means an empty input channel.
	Stdin io.Reader
	// Stdout receives the container's output channel bytes. The channel is
	// reserved for archive framing; consumers validate it. Nil discards.
	Stdout io.Writer
	// Stderr receives the container's diagnostic channel. Never parsed,
	// only logged. Nil discards.
	Stderr io.Writer
}

// RunResult is the exit status of a completed container run. A nonzero exit
// code is a normal, expected outcome to be interpreted by the caller, not a
// supervisor fault.
type RunResult struct {
	ExitCode int
}

// Supervisor runs one container to completion under resource and time
// bounds. The container process is never left running after Run returns,
// success or failure.
type Supervisor interface {
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
}
