// Package fsutil provides utility functions for working with the filesystem.
package fsutil

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"runtime"
)

// GetCallerDir returns the source directory of the calling function.
func GetCallerDir() string {
	_, file, _, _ := runtime.Caller(1)
	return filepath.Dir(file)
}

// SkipDirFunc reports whether the directory at path should not be descended into.
type SkipDirFunc func(path string, d fs.DirEntry) bool

// WalkFiles returns a lazy depth-first sequence of every non-directory entry
// under root. Each iteration of the returned sequence walks the tree afresh.
// Entries are visited in os.ReadDir order and a directory's descendants are
// yielded before its later siblings.
//
// A directory that cannot be listed yields its own path with a non-nil error;
// the walk continues with its siblings if the consumer keeps iterating.
func WalkFiles(root string, skipDir SkipDirFunc) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		walkFiles(root, skipDir, yield)
	}
}

func walkFiles(dir string, skipDir SkipDirFunc, yield func(string, error) bool) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return yield(dir, fmt.Errorf("fsutil.WalkFiles: failed to read directory %s: %w", dir, err))
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if skipDir != nil && skipDir(path, entry) {
				continue
			}
			if !walkFiles(path, skipDir, yield) {
				return false
			}
			continue
		}
		if !yield(path, nil) {
			return false
		}
	}
	return true
}
