// Package walker implements recursive, physical-path-only filesystem
// traversal handing each regular file to a visitor. Symlinks are never
// followed, and the visitor captures whatever state it needs instead of
// reaching through process-wide variables.
package walker

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Visit is called once per regular file found under a walked root, with
// its full path. A non-nil error from Visit is fatal and stops the walk
// for the whole invocation of Walk (not just the current root); callers
// that want per-file recoverability handle that inside Visit itself and
// return nil.
type Visit func(path string) error

// Walk descends each of roots, visiting every regular file reachable
// through non-symlink directory entries. A root that is itself a regular
// file is visited directly without requiring it to be inside a directory.
func Walk(roots []string, visit Visit) error {
	for _, root := range roots {
		if err := walkOne(root, visit); err != nil {
			return err
		}
	}
	return nil
}

func walkOne(root string, visit Visit) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() {
			return visit(root)
		}
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return visit(path)
	})
}
