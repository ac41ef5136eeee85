package conventions

import "path"

const (
	// ContainerOpsDir is the only writable data directory inside the
	// container. Virtual mounts are materialized under it by the
	// in-container entrypoint.
	ContainerOpsDir = "/cf_feedstock_ops"

	// EntrypointCommand is the command name of the in-container entrypoint.
	EntrypointCommand = "feedstock-ops-container"

	// ResultFileName is the well-known relative path (inside the mount
	// root) of the result envelope file in the output archive. Constant
	// across all operations.
	ResultFileName = ".feedstock_ops_result.json"

	// InContainerEnvVar marks the environment inside the container so
	// nested code can detect it and avoid container-in-container calls.
	InContainerEnvVar = "FSOPS_IN_CONTAINER"

	// ContainerNamePrefix prefixes every per-invocation container name.
	ContainerNamePrefix = "fsops"

	// DefaultConfigDir is the default fsops config directory name
	// (relative to home).
	DefaultConfigDir = ".fsops"
	// DefaultConfigFile is the config filename inside the config dir.
	DefaultConfigFile = "config.yaml"
)

// IgnoredCommitPaths are path elements that are never written back to the
// host when committing a writable mount, wherever they appear in an entry's
// relative path.
var IgnoredCommitPaths = map[string]struct{}{
	".git": {},
}

// IsIgnoredCommitPath reports whether any element of the relative path is in
// the ignore set.
func IsIgnoredCommitPath(relPath string) bool {
	for relPath != "." && relPath != "/" && relPath != "" {
		dir, file := path.Split(relPath)
		if _, ok := IgnoredCommitPaths[file]; ok {
			return true
		}
		relPath = path.Clean(dir)
	}
	return false
}

// ContainerMountPath returns the absolute in-container path for a mount name.
func ContainerMountPath(name string) string {
	return path.Join(ContainerOpsDir, name)
}
