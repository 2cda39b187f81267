package sync

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// FileDigest returns the lowercase hex MD5 of a file, the same value S3
// reports as the ETag of a single-part object.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizeDigest strips surrounding quotes and case from a store digest.
func NormalizeDigest(s string) string {
	return strings.ToLower(strings.Trim(s, `"`))
}

// InSync reports whether the file at path exists and matches expected.
// Read failures count as a mismatch so the entry gets transferred again.
func InSync(path, expected string) bool {
	got, err := FileDigest(path)
	if err != nil {
		return false
	}
	return got == NormalizeDigest(expected)
}
