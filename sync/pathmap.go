package sync

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// LocalPathFor maps a listed object key to its download destination.
//
// The prefix is stripped from the key. With a trailing slash on the source
// the remainder lands directly under localRoot; without one the last prefix
// segment is kept as a directory, so "s3://b/data" -> "/out" writes
// "/out/data/...". The segment is concatenated, not joined, which keeps
// sibling keys sharing the prefix ("data" vs "database/x") distinct.
func LocalPathFor(prefix, key, localRoot string, trailingSlash bool) string {
	sub := strings.TrimPrefix(key, prefix)
	if !trailingSlash && prefix != "" {
		sub = path.Base(prefix) + sub
	}
	return filepath.Join(localRoot, filepath.FromSlash(sub))
}

var errOutsideRoot = errors.New("key resolves outside the destination root")

// withinRoot reports whether p stays under root once ".." segments are resolved.
func withinRoot(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && filepath.IsLocal(rel)
}

// RemoteDirFor returns the key directory that files under localRoot are
// uploaded into. A trailing separator on localRoot uploads its contents
// directly under prefix; otherwise basename(localRoot) is appended.
func RemoteDirFor(prefix, localRoot string) string {
	prefix = strings.Trim(prefix, "/")
	if hasTrailingSeparator(localRoot) {
		return prefix
	}
	base := filepath.Base(localRoot)
	if base == "." || base == ".." {
		if abs, err := filepath.Abs(localRoot); err == nil {
			base = filepath.Base(abs)
		}
	}
	if base == string(filepath.Separator) {
		return prefix
	}
	return joinKey(prefix, base)
}

// RemoteKeyFor maps a file found under localRoot to its key in remoteDir.
func RemoteKeyFor(remoteDir, localRoot, file string) (string, error) {
	rel, err := filepath.Rel(localRoot, file)
	if err != nil {
		return "", err
	}
	return joinKey(remoteDir, filepath.ToSlash(rel)), nil
}

// SingleFileKey is the key a lone file is stored under: the prefix itself
// with surrounding slashes removed, nothing appended.
func SingleFileKey(prefix string) string {
	return strings.Trim(prefix, "/")
}

func joinKey(dir, rel string) string {
	rel = strings.TrimLeft(rel, "/")
	if dir == "" {
		return rel
	}
	return strings.TrimSuffix(dir, "/") + "/" + rel
}
