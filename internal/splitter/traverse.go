package splitter

import (
	"io/fs"
	"iter"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/erisprotocol/contracts-tokenfactory/kit/fsutil"
)

// DefaultExcluded are the directory name substrings never descended into.
var DefaultExcluded = []string{"node_modules", "target", ".git"}

// Exclusions decides which directories a traversal prunes.
type Exclusions struct {
	// Substrings prune any directory whose name contains one of them.
	Substrings []string
	// Globs are doublestar patterns matched against the slash-separated
	// path relative to the traversal root.
	Globs []string
}

func DefaultExclusions() Exclusions {
	return Exclusions{Substrings: append([]string(nil), DefaultExcluded...)}
}

// Excluded reports whether the directory rel (relative to the root) is pruned.
func (e Exclusions) Excluded(rel string) bool {
	name := filepath.Base(rel)
	for _, s := range e.Substrings {
		if s != "" && strings.Contains(name, s) {
			return true
		}
	}
	slashed := filepath.ToSlash(rel)
	for _, g := range e.Globs {
		if ok, _ := doublestar.Match(g, slashed); ok {
			return true
		}
	}
	return false
}

// Traverse returns a lazy depth-first sequence of every file under root,
// skipping excluded directories entirely. Ranging over the sequence again
// walks the tree again.
func Traverse(root string, excl Exclusions) iter.Seq2[string, error] {
	return TraverseUnder(root, root, excl)
}

// TraverseUnder is Traverse limited to dir, a directory inside root.
// Exclusion globs are still matched relative to root.
func TraverseUnder(root, dir string, excl Exclusions) iter.Seq2[string, error] {
	return fsutil.WalkFiles(dir, func(path string, _ fs.DirEntry) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		return excl.Excluded(rel)
	})
}

// IsCandidate reports whether path is processed at all.
func IsCandidate(path string) bool {
	return strings.HasSuffix(path, ".json")
}
