package sync

import (
	"io/fs"
	"iter"
	"path/filepath"
)

// Walk lazily yields every regular file under root. Directories, symlinks
// and other special files are not yielded. A path that cannot be read is
// yielded with its error and the walk carries on with the rest of the tree.
func Walk(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(path, err) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !yield(path, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}
