// Package archive implements the directory transport used by virtual mounts:
// a gzip-compressed tar stream with one entry per file and directory, safe to
// decode from an untrusted producer.
package archive

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/feedstockops/fsops/internal/model"
)

// safeJoin resolves an archive entry name against root and fails when the
// normalized result would leave root.
func safeJoin(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("entry %q is absolute: %w", name, model.ErrPathTraversal)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes the destination root: %w", name, model.ErrPathTraversal)
	}
	return filepath.Join(root, cleaned), nil
}

// safeLinkTarget validates that a symlink entry's target resolves inside
// root. linkPath is the already-resolved absolute path of the symlink itself.
func safeLinkTarget(root, linkPath, target string) error {
	if filepath.IsAbs(target) {
		return fmt.Errorf("symlink %q has absolute target %q: %w", linkPath, target, model.ErrPathTraversal)
	}
	resolved := filepath.Clean(filepath.Join(filepath.Dir(linkPath), target))
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("symlink %q target %q points outside the destination root: %w", linkPath, target, model.ErrPathTraversal)
	}
	return nil
}
