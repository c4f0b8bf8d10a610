package util

import (
	"os"
	"path/filepath"
)

// EnsureDir creates path and any missing parents. Existing directories and
// their contents are left alone.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// RemoveTree deletes every file and subdirectory under root and then root
// itself. Each entry is lstat'ed right before removal so symlinks are
// unlinked, never followed. A root that does not exist is not an error.
func RemoveTree(root string) error {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(root, e.Name())
		info, err := os.Lstat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := RemoveTree(p); err != nil {
				return err
			}
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return os.Remove(root)
}
