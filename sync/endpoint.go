package sync

import (
	"os"
	"strings"
)

// Scheme is the URI prefix that designates a remote endpoint.
const Scheme = "s3://"

// EndpointKind tells local and remote endpoints apart.
type EndpointKind int

const (
	Local EndpointKind = iota
	Remote
)

func (k EndpointKind) String() string {
	if k == Remote {
		return "remote"
	}
	return "local"
}

// Endpoint is one side of a transfer: a local path or a bucket and key prefix.
type Endpoint struct {
	Kind   EndpointKind
	Path   string // local only
	Bucket string // remote only
	Key    string // remote only, never starts with "/"
}

// ParseEndpoint parses "s3://bucket/key" into a remote endpoint and anything
// else into a local one. The key is taken verbatim apart from leading
// slashes; a trailing slash is kept because it changes how paths map.
func ParseEndpoint(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{}, invalidAddress("empty address")
	}
	if !strings.HasPrefix(s, Scheme) {
		return Endpoint{Kind: Local, Path: s}, nil
	}

	bucket, key, _ := strings.Cut(strings.TrimPrefix(s, Scheme), "/")
	if bucket == "" {
		return Endpoint{}, invalidAddress("%q has no bucket", s)
	}
	return Endpoint{
		Kind:   Remote,
		Bucket: bucket,
		Key:    strings.TrimLeft(key, "/"),
	}, nil
}

// IsRemote reports whether the endpoint addresses the object store.
func (e Endpoint) IsRemote() bool {
	return e.Kind == Remote
}

// TrailingSlash reports whether the key or path ends in a separator.
func (e Endpoint) TrailingSlash() bool {
	if e.IsRemote() {
		return strings.HasSuffix(e.Key, "/")
	}
	return hasTrailingSeparator(e.Path)
}

func (e Endpoint) String() string {
	if e.IsRemote() {
		return Scheme + e.Bucket + "/" + e.Key
	}
	return e.Path
}

func hasTrailingSeparator(p string) bool {
	return strings.HasSuffix(p, "/") || strings.HasSuffix(p, string(os.PathSeparator))
}
