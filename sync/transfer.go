package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultContentType is attached to uploads unless told otherwise.
	DefaultContentType = "application/octet-stream"
	// ContentTypeAuto sniffs the content type from the file's leading bytes.
	ContentTypeAuto = "auto"
)

// Download streams the object at key into localPath, creating missing parent
// directories. A failed fetch leaves the partially written file in place.
func Download(ctx context.Context, store Store, key, localPath string) (int64, error) {
	// MkdirAll treats an existing directory as success, so concurrent
	// downloads into the same parent are fine.
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, localErr("download", key, localPath, err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return 0, localErr("download", key, localPath, err)
	}
	defer f.Close()

	body, err := store.Get(ctx, key)
	if err != nil {
		return 0, remoteErr("download", key, localPath, err)
	}
	defer body.Close()

	n, err := io.Copy(f, body)
	if err != nil {
		return n, remoteErr("download", key, localPath, err)
	}
	if err := f.Sync(); err != nil {
		return n, localErr("download", key, localPath, err)
	}
	if err := f.Close(); err != nil {
		return n, localErr("download", key, localPath, err)
	}
	return n, nil
}

// Upload streams localPath to key as one complete object.
func Upload(ctx context.Context, store Store, localPath, key, contentType string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, localErr("upload", key, localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, localErr("upload", key, localPath, err)
	}
	if !info.Mode().IsRegular() {
		return 0, localErr("upload", key, localPath, fmt.Errorf("%s is not a regular file", localPath))
	}

	ct, err := resolveContentType(f, contentType)
	if err != nil {
		return 0, localErr("upload", key, localPath, err)
	}

	if err := store.Put(ctx, key, f, info.Size(), ct); err != nil {
		return 0, remoteErr("upload", key, localPath, err)
	}
	return info.Size(), nil
}

// resolveContentType leaves f positioned at its start.
func resolveContentType(f *os.File, contentType string) (string, error) {
	switch contentType {
	case "":
		return DefaultContentType, nil
	case ContentTypeAuto:
	default:
		return contentType, nil
	}

	mt, err := mimetype.DetectReader(f)
	if _, serr := f.Seek(0, io.SeekStart); serr != nil {
		return "", serr
	}
	if err != nil || mt == nil {
		return DefaultContentType, nil
	}
	return mt.String(), nil
}
