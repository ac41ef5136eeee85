// Package vmount implements the virtual mount bridge: it translates a
// logical host↔container directory binding into archive traffic over the
// container's standard channels, without any real bind mount.
package vmount

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/feedstockops/fsops/internal/archive"
	"github.com/feedstockops/fsops/internal/conventions"
	"github.com/feedstockops/fsops/internal/log"
	"github.com/feedstockops/fsops/internal/model"
)

// BridgeConfig is the configuration for a Bridge.
type BridgeConfig struct {
	// Mount is the virtual mount for this operation. Nil means the
	// container receives no input data.
	Mount  *model.VirtualMount
	Logger log.Logger
}

func (c *BridgeConfig) defaults() error {
	if c.Mount != nil {
		if err := c.Mount.Validate(); err != nil {
			return err
		}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "vmount.Bridge"})
	return nil
}

// Bridge moves one virtual mount across a container boundary. The input side
// encodes the host directory into the container's stdin; the output side
// decodes the container's stdout into a scratch directory, where the result
// envelope is located. For writable mounts, Commit replaces the host
// directory contents with the decoded mount content after the operation
// succeeded. Lifetime is one operation invocation.
type Bridge struct {
	mount   *model.VirtualMount
	scratch string
	logger  log.Logger

	decodeDone chan struct{}
	decodeErr  error
}

// NewBridge creates a bridge for one operation invocation.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	scratch, err := os.MkdirTemp("", "fsops-vmount-*")
	if err != nil {
		return nil, fmt.Errorf("could not create scratch directory: %w", err)
	}

	return &Bridge{
		mount:      cfg.Mount,
		scratch:    scratch,
		logger:     cfg.Logger,
		decodeDone: make(chan struct{}),
	}, nil
}

// InputStream returns the byte stream to feed into the container's stdin:
// one archive encoding the mount's host directory, or an empty stream when
// there is no mount. Encoding errors surface as read errors on the stream.
func (b *Bridge) InputStream() io.ReadCloser {
	if b.mount == nil {
		return io.NopCloser(&emptyReader{})
	}

	pr, pw := io.Pipe()
	go func() {
		b.logger.Debugf("Encoding host directory %s as %s", b.mount.HostPath, b.mount.Name)
		err := archive.Encode(b.mount.HostPath, b.mount.Name, pw)
		pw.CloseWithError(err)
	}()
	return pr
}

// OutputSink returns the writer that receives the container's stdout. The
// bytes are decoded as an archive stream into the scratch directory
// concurrently with the write; the caller must close the sink at stream EOF
// and then check DecodeResult.
func (b *Bridge) OutputSink() io.WriteCloser {
	pr, pw := io.Pipe()
	go func() {
		defer close(b.decodeDone)
		err := archive.Decode(pr, b.scratch, archive.DecodeOpts{AllowOverwrite: true, CleanOnError: true})
		b.decodeErr = err
		// Unblock the writer if decoding stopped early.
		pr.CloseWithError(err)
	}()
	return pw
}

// DecodeResult blocks until the output decode finished and returns its error.
func (b *Bridge) DecodeResult() error {
	<-b.decodeDone
	return b.decodeErr
}

// EnvelopePath returns the path of the decoded result envelope file. The
// file exists only if the container produced one.
func (b *Bridge) EnvelopePath() string {
	return filepath.Join(b.scratch, conventions.ResultFileName)
}

// Commit writes the decoded mount content back to the host directory. It is
// a no-op for read-only mounts and when there is no mount: in those cases
// none of the container's output bytes reach the real host path.
//
// The host directory contents are replaced by the scratch copy, except for
// ignore-listed paths (such as .git) which are preserved in place. A failure
// here can leave the host directory partially updated; the returned error
// says so explicitly.
func (b *Bridge) Commit() error {
	if b.mount == nil || b.mount.ReadOnly {
		return nil
	}

	src := filepath.Join(b.scratch, b.mount.Name)
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("output archive has no directory for mount %q: %w", b.mount.Name, model.ErrOutputProtocol)
	}

	b.logger.Debugf("Committing mount %s back to %s", b.mount.Name, b.mount.HostPath)

	if err := removeAllExceptIgnored(b.mount.HostPath); err != nil {
		return fmt.Errorf("host directory %q may be partially cleared: %w", b.mount.HostPath, err)
	}
	if err := copyTree(src, b.mount.HostPath); err != nil {
		return fmt.Errorf("host directory %q may be partially updated: %w", b.mount.HostPath, err)
	}
	return nil
}

// Close removes the scratch directory.
func (b *Bridge) Close() error {
	return os.RemoveAll(b.scratch)
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

// removeAllExceptIgnored deletes the contents of root, preserving every path
// that has an ignore-listed element anywhere in its relative path.
func removeAllExceptIgnored(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if conventions.IsIgnoredCommitPath(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}
		return os.Remove(p)
	})
	if err != nil {
		return err
	}

	// Directories are removed bottom-up; the ones still holding ignored
	// content stay.
	for i := len(dirs) - 1; i >= 0; i-- {
		empty, err := isDirEmpty(dirs[i])
		if err != nil {
			return err
		}
		if !empty {
			// Still holds ignored content.
			continue
		}
		if err := os.Remove(dirs[i]); err != nil {
			return err
		}
	}
	return nil
}

func isDirEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// copyTree copies src into dst recursively, preserving modes and symlinks
// and skipping ignore-listed paths.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel != "." && conventions.IsIgnoredCommitPath(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		default:
			return copyFile(p, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
