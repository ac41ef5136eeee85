package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/feedstockops/fsops/internal/model"
)

// DecodeOpts controls Decode behavior.
type DecodeOpts struct {
	// AllowOverwrite lets entries replace existing files in dest. When
	// false, an existing file fails the decode.
	AllowOverwrite bool
	// CleanOnError removes everything Decode wrote when it fails, so a
	// rejected archive leaves dest as it was.
	CleanOnError bool
}

// Decode reads a gzip-compressed tar stream from r and materializes it under
// dest. Every entry path is normalized and must resolve strictly inside dest;
// an escaping path or symlink target fails with model.ErrPathTraversal.
// Bytes that are not gzip framing at all fail with model.ErrOutputProtocol;
// a truncated or corrupt stream past the header fails with model.ErrDecode.
//
// Directory entries are materialized before their children; parent
// directories are created as needed for archives that omit them.
func Decode(r io.Reader, dest string, opts DecodeOpts) (err error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("could not create destination %q: %w", dest, err)
	}

	var written []string
	defer func() {
		if err != nil && opts.CleanOnError {
			for i := len(written) - 1; i >= 0; i-- {
				_ = os.RemoveAll(written[i])
			}
		}
	}()

	gr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("stream is not a valid archive: %w: %w", err, model.ErrOutputProtocol)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)

	// Directory modes are applied after extraction so a read-only directory
	// entry doesn't block its own children.
	type dirMode struct {
		path string
		mode fs.FileMode
	}
	var dirModes []dirMode

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("corrupt archive framing: %w: %w", err, model.ErrDecode)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("could not create directory %q: %w", target, err)
			}
			if target != dest {
				written = append(written, target)
				dirModes = append(dirModes, dirMode{path: target, mode: hdr.FileInfo().Mode().Perm()})
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("could not create parent of %q: %w", target, err)
			}
			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if !opts.AllowOverwrite {
				flags |= os.O_EXCL
			}
			f, err := os.OpenFile(target, flags, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return fmt.Errorf("could not create file %q: %w", target, err)
			}
			n, err := io.Copy(f, tr)
			closeErr := f.Close()
			written = append(written, target)
			if err != nil {
				return fmt.Errorf("truncated entry %q after %d bytes: %w: %w", hdr.Name, n, err, model.ErrDecode)
			}
			if closeErr != nil {
				return fmt.Errorf("could not finish file %q: %w", target, closeErr)
			}

		case tar.TypeSymlink:
			if err := safeLinkTarget(dest, target, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("could not create parent of %q: %w", target, err)
			}
			if opts.AllowOverwrite {
				_ = os.Remove(target)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("could not create symlink %q: %w", target, err)
			}
			written = append(written, target)

		default:
			// Hard links, devices and the rest have no place in a mount
			// archive coming from an untrusted container.
			return fmt.Errorf("unsupported entry type %d for %q: %w", hdr.Typeflag, hdr.Name, model.ErrDecode)
		}
	}

	for i := len(dirModes) - 1; i >= 0; i-- {
		if err := os.Chmod(dirModes[i].path, dirModes[i].mode); err != nil {
			return fmt.Errorf("could not set mode on %q: %w", dirModes[i].path, err)
		}
	}

	return nil
}
