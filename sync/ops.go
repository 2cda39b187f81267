package sync

import (
	"context"
	"iter"
	"os"
	"strings"
)

// List returns a shallow listing of a remote address: objects directly under
// the key prefix and one Dir entry per deeper "/"-delimited group.
func List(ctx context.Context, stores StoreOpener, uri string) (Endpoint, iter.Seq2[ObjectInfo, error], error) {
	ep, err := parseRemote(uri)
	if err != nil {
		return Endpoint{}, nil, err
	}
	return ep, stores(ep.Bucket).List(ctx, ep.Key, "/"), nil
}

// Get downloads a single object to exactly localPath.
func Get(ctx context.Context, stores StoreOpener, remoteURI, localPath string) (int64, error) {
	src, err := parseRemote(remoteURI)
	if err != nil {
		return 0, err
	}
	if src.Key == "" || strings.HasSuffix(src.Key, "/") {
		return 0, invalidAddress("%s does not name an object", src)
	}
	if err := parseLocal(localPath); err != nil {
		return 0, err
	}
	return Download(ctx, stores(src.Bucket), src.Key, localPath)
}

// Put uploads a single regular file to the key named by remoteURI, with any
// surrounding slashes removed. It returns the key written.
func Put(ctx context.Context, stores StoreOpener, localPath, remoteURI, contentType string) (string, int64, error) {
	if err := parseLocal(localPath); err != nil {
		return "", 0, err
	}
	dst, err := parseRemote(remoteURI)
	if err != nil {
		return "", 0, err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return "", 0, localErr("upload", dst.Key, localPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", 0, invalidAddress("%s is not a file", localPath)
	}

	key := SingleFileKey(dst.Key)
	if key == "" {
		return "", 0, invalidAddress("%s does not name an object", dst)
	}
	n, err := Upload(ctx, stores(dst.Bucket), localPath, key, contentType)
	return key, n, err
}

func parseRemote(s string) (Endpoint, error) {
	ep, err := ParseEndpoint(s)
	if err != nil {
		return Endpoint{}, err
	}
	if !ep.IsRemote() {
		return Endpoint{}, invalidAddress("%q is not an %s address", s, Scheme)
	}
	return ep, nil
}

func parseLocal(s string) error {
	ep, err := ParseEndpoint(s)
	if err != nil {
		return err
	}
	if ep.IsRemote() {
		return invalidAddress("%q is not a local path", s)
	}
	return nil
}
