package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/feedstockops/fsops/internal/model"
)

// Encode walks root in lexicographic order and writes it as a gzip-compressed
// tar stream to w. Every file and directory becomes one entry named
// name/<relative path>, preserving mode bits. Symlinks are stored as symlink
// entries with their literal targets.
//
// Memory use is bounded per entry: file contents are streamed, never loaded
// whole.
func Encode(root, name string, w io.Writer) (err error) {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("could not stat %q: %w: %w", root, err, model.ErrEncode)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory: %w: %w", root, model.ErrNotValid, model.ErrEncode)
	}

	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("could not read %q: %w", p, err)
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		entryName := path.Join(name, filepath.ToSlash(rel))

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("could not stat %q: %w", p, err)
		}

		var link string
		if fi.Mode()&fs.ModeSymlink != 0 {
			link, err = os.Readlink(p)
			if err != nil {
				return fmt.Errorf("could not read symlink %q: %w", p, err)
			}
		}

		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = entryName
		if fi.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("could not open %q: %w", p, err)
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("could not stream %q: %w", p, err)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("encoding %q: %w: %w", root, walkErr, model.ErrEncode)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("could not finish tar stream: %w: %w", err, model.ErrEncode)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("could not finish gzip stream: %w: %w", err, model.ErrEncode)
	}
	return nil
}
