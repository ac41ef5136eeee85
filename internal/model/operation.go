package model

import (
	"encoding/json"
	"fmt"
	"path"
	"time"
)

// OperationConfig is the per-operation configuration bundle. These settings
// are immutable for the duration of one call.
type OperationConfig struct {
	// Image is the container image reference to run.
	Image string
	// Timeout is the wall-clock bound for the whole operation. Zero means
	// no timeout.
	Timeout time.Duration
	// Env is the environment subset passed through to the container.
	Env map[string]string
	// Resources are the container resource limits.
	Resources Resources
}

// Resources are the resource limits applied to an operation's container.
type Resources struct {
	// CPUs is the CPU limit (fractional CPUs allowed).
	CPUs float64
	// MemoryMB is the memory limit in megabytes.
	MemoryMB int64
	// TmpfsSizeMB is the size of the writable tmpfs mounted at /tmp inside
	// the otherwise read-only container.
	TmpfsSizeMB int64
}

// Default resource limits for operation containers.
const (
	DefaultCPUs        = 1.0
	DefaultMemoryMB    = 6000
	DefaultTmpfsSizeMB = 6000
)

// WithDefaults returns the resources with unset limits filled in.
func (r Resources) WithDefaults() Resources {
	if r.CPUs == 0 {
		r.CPUs = DefaultCPUs
	}
	if r.MemoryMB == 0 {
		r.MemoryMB = DefaultMemoryMB
	}
	if r.TmpfsSizeMB == 0 {
		r.TmpfsSizeMB = DefaultTmpfsSizeMB
	}
	return r
}

// OperationRequest describes one operation to run inside a container.
// Immutable once constructed; owned by the launcher for one call.
type OperationRequest struct {
	// Operation is the logical command name understood by the in-container
	// entrypoint (e.g. "lint", "rerender").
	Operation string
	// Args are the positional arguments passed after the operation name.
	Args []string
	// Mount is the optional virtual mount exposing a host directory to the
	// container. Nil means the container gets no input data.
	Mount *VirtualMount
	// Config is the operation configuration bundle.
	Config OperationConfig
}

// Validate checks the request invariants.
func (r OperationRequest) Validate() error {
	if r.Operation == "" {
		return fmt.Errorf("operation name is required: %w", ErrNotValid)
	}
	if r.Config.Image == "" {
		return fmt.Errorf("container image is required: %w", ErrNotValid)
	}
	if r.Mount != nil {
		if err := r.Mount.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// VirtualMount binds a host directory to a fixed in-container path. Nothing
// is actually bind-mounted: the host path is archived and streamed over the
// container's stdin, and for writable mounts the container path is archived
// back over stdout. Lifetime is one operation invocation.
type VirtualMount struct {
	// HostPath is the host directory to expose.
	HostPath string
	// Name is the directory name the mount gets inside the container ops
	// dir. It is also the top-level entry name in both archive streams.
	Name string
	// ReadOnly controls whether container-side changes flow back to
	// HostPath after the operation.
	ReadOnly bool
}

// Validate checks the mount invariants.
func (m VirtualMount) Validate() error {
	if m.HostPath == "" {
		return fmt.Errorf("mount host path is required: %w", ErrNotValid)
	}
	if m.Name == "" || m.Name == "." || m.Name == ".." || m.Name != path.Base(m.Name) {
		return fmt.Errorf("mount name %q is not a single directory name: %w", m.Name, ErrNotValid)
	}
	return nil
}

// ResultEnvelope is the two-field structure the in-container entrypoint
// writes at the well-known path inside the output archive. Error is empty on
// success; Data is meaningful only when Error is empty.
type ResultEnvelope struct {
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}
