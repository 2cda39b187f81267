// Package synctest provides an in-memory sync.Store for tests.
package synctest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"iter"
	"slices"
	"strings"
	gosync "sync"
	"time"

	"github.com/sandeepkandula/treesync/sync"
)

// ErrNoSuchKey is returned by Get for a missing key.
var ErrNoSuchKey = errors.New("no such key")

type object struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// MemStore is a mutex-guarded map of keys to bytes. Set the Fail* fields to
// inject errors.
type MemStore struct {
	mu      gosync.Mutex
	objects map[string]object
	gets    []string
	puts    []string
	buckets []string

	FailGet  map[string]error
	FailPut  map[string]error
	FailList error
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string]object),
		FailGet: make(map[string]error),
		FailPut: make(map[string]error),
	}
}

// Opener returns this store for every bucket and records the bucket names.
func (m *MemStore) Opener() sync.StoreOpener {
	return func(bucket string) sync.Store {
		m.mu.Lock()
		m.buckets = append(m.buckets, bucket)
		m.mu.Unlock()
		return m
	}
}

// Seed stores data at key without counting it as a put.
func (m *MemStore) Seed(key, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: []byte(data), contentType: sync.DefaultContentType, modTime: time.Now().UTC()}
}

// Object returns the stored bytes at key.
func (m *MemStore) Object(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return string(o.data), ok
}

// ContentType returns the content type recorded for key.
func (m *MemStore) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].contentType
}

// Keys returns all stored keys, sorted.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// GetCalls returns the keys passed to Get, sorted.
func (m *MemStore) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sorted(m.gets)
}

// PutCalls returns the keys passed to Put, sorted.
func (m *MemStore) PutCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sorted(m.puts)
}

// Buckets returns the bucket names the opener was asked for.
func (m *MemStore) Buckets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.buckets)
}

// Reset forgets recorded calls but keeps the objects.
func (m *MemStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets, m.puts, m.buckets = nil, nil, nil
}

func (m *MemStore) List(ctx context.Context, prefix, delimiter string) iter.Seq2[sync.ObjectInfo, error] {
	return func(yield func(sync.ObjectInfo, error) bool) {
		if m.FailList != nil {
			yield(sync.ObjectInfo{}, m.FailList)
			return
		}

		m.mu.Lock()
		var entries []sync.ObjectInfo
		seen := make(map[string]bool)
		for key, o := range m.objects {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			if delimiter != "" {
				rest := strings.TrimPrefix(key, prefix)
				if i := strings.Index(rest, delimiter); i >= 0 {
					group := prefix + rest[:i+len(delimiter)]
					if !seen[group] {
						seen[group] = true
						entries = append(entries, sync.ObjectInfo{Key: group, Dir: true})
					}
					continue
				}
			}
			entries = append(entries, sync.ObjectInfo{
				Key:          key,
				Size:         int64(len(o.data)),
				LastModified: o.modTime,
				ETag:         digest(o.data),
			})
		}
		m.mu.Unlock()

		slices.SortFunc(entries, func(a, b sync.ObjectInfo) int {
			return strings.Compare(a.Key, b.Key)
		})
		for _, e := range entries {
			if ctx.Err() != nil {
				yield(sync.ObjectInfo{}, ctx.Err())
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *MemStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets = append(m.gets, key)
	if err := m.FailGet[key]; err != nil {
		return nil, err
	}
	o, ok := m.objects[key]
	if !ok {
		return nil, ErrNoSuchKey
	}
	return io.NopCloser(bytes.NewReader(slices.Clone(o.data))), nil
}

func (m *MemStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	m.mu.Lock()
	failErr := m.FailPut[key]
	m.mu.Unlock()
	if failErr != nil {
		return failErr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, key)
	m.objects[key] = object{data: data, contentType: contentType, modTime: time.Now().UTC()}
	return nil
}

func (m *MemStore) Stat(ctx context.Context, key string) (*sync.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, nil
	}
	return &sync.ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		LastModified: o.modTime,
		ETag:         digest(o.data),
	}, nil
}

func digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}

var _ sync.Store = (*MemStore)(nil)
