package sync

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMultipart = errors.New("multipart not supported by fake")

// fakeS3 serves a sorted key space in pages of pageSize.
type fakeS3 struct {
	objects   map[string][]byte
	pageSize  int
	listCalls int
	puts      []*s3.PutObjectInput
	putBodies map[string][]byte
	modTime   time.Time
}

func newFakeS3(pageSize int) *fakeS3 {
	return &fakeS3{
		objects:   make(map[string][]byte),
		pageSize:  pageSize,
		putBodies: make(map[string][]byte),
		modTime:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeS3) etag(key string) *string {
	sum := md5.Sum(f.objects[key])
	return aws.String(`"` + hex.EncodeToString(sum[:]) + `"`)
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listCalls++
	prefix := aws.ToString(in.Prefix)
	delimiter := aws.ToString(in.Delimiter)

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{}
	if delimiter != "" {
		seen := map[string]bool{}
		for _, k := range keys {
			rest := strings.TrimPrefix(k, prefix)
			if i := strings.Index(rest, delimiter); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
			out.Contents = append(out.Contents, f.object(k))
		}
		return out, nil
	}

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	end := min(start+f.pageSize, len(keys))
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, f.object(k))
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeS3) object(k string) types.Object {
	return types.Object{
		Key:          aws.String(k),
		Size:         aws.Int64(int64(len(f.objects[k]))),
		ETag:         f.etag(k),
		LastModified: aws.Time(f.modTime),
	}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(in.Key)
	data, ok := f.objects[key]
	if !ok {
		return nil, &awshttp.ResponseError{
			ResponseError: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusNotFound}},
				Err:      errors.New("not found"),
			},
		}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          f.etag(key),
		LastModified:  aws.Time(f.modTime),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.putBodies[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

var _ S3API = (*fakeS3)(nil)

func TestS3Store_ListPaginates(t *testing.T) {
	fake := newFakeS3(2)
	for _, k := range []string{"data/a", "data/b", "data/c/d", "data/e", "other/z"} {
		fake.objects[k] = []byte(k)
	}
	store := NewS3Store(fake, "bucket")

	var keys []string
	for obj, err := range store.List(context.Background(), "data/", "") {
		require.NoError(t, err)
		assert.False(t, obj.Dir)
		assert.Equal(t, int64(len(obj.Key)), obj.Size)
		assert.NotContains(t, obj.ETag, `"`)
		assert.Equal(t, fake.modTime, obj.LastModified)
		keys = append(keys, obj.Key)
	}

	assert.Equal(t, []string{"data/a", "data/b", "data/c/d", "data/e"}, keys)
	assert.Equal(t, 2, fake.listCalls)
}

func TestS3Store_ListIsLazy(t *testing.T) {
	fake := newFakeS3(1)
	for _, k := range []string{"a", "b", "c"} {
		fake.objects[k] = []byte(k)
	}
	store := NewS3Store(fake, "bucket")

	for range store.List(context.Background(), "", "") {
		break
	}
	assert.Equal(t, 1, fake.listCalls)
}

func TestS3Store_ListWithDelimiter(t *testing.T) {
	fake := newFakeS3(100)
	for _, k := range []string{"data/a", "data/c/d", "data/c/e", "data/f/g"} {
		fake.objects[k] = []byte(k)
	}
	store := NewS3Store(fake, "bucket")

	var dirs, files []string
	for obj, err := range store.List(context.Background(), "data/", "/") {
		require.NoError(t, err)
		if obj.Dir {
			dirs = append(dirs, obj.Key)
		} else {
			files = append(files, obj.Key)
		}
	}
	assert.Equal(t, []string{"data/c/", "data/f/"}, dirs)
	assert.Equal(t, []string{"data/a"}, files)
}

func TestS3Store_DigestMatchesLocalFile(t *testing.T) {
	fake := newFakeS3(10)
	fake.objects["k"] = []byte("hello")
	store := NewS3Store(fake, "bucket")

	for obj, err := range store.List(context.Background(), "", "") {
		require.NoError(t, err)
		assert.Equal(t, helloMD5, obj.ETag)
	}
}

func TestS3Store_GetAndPut(t *testing.T) {
	fake := newFakeS3(10)
	fake.objects["in.txt"] = []byte("payload")
	store := NewS3Store(fake, "bucket")

	body, err := store.Get(context.Background(), "in.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "payload", string(data))

	_, err = store.Get(context.Background(), "missing")
	var nsk *types.NoSuchKey
	assert.ErrorAs(t, err, &nsk)

	err = store.Put(context.Background(), "out.txt", strings.NewReader("uploaded"), 8, "text/plain")
	require.NoError(t, err)
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "bucket", aws.ToString(fake.puts[0].Bucket))
	assert.Equal(t, "text/plain", aws.ToString(fake.puts[0].ContentType))
	assert.Equal(t, "uploaded", string(fake.putBodies["out.txt"]))
}

func TestS3Store_Stat(t *testing.T) {
	fake := newFakeS3(10)
	fake.objects["k"] = []byte("hello")
	store := NewS3Store(fake, "bucket")

	meta, err := store.Stat(context.Background(), "k")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, helloMD5, meta.ETag)

	meta, err = store.Stat(context.Background(), "absent")
	assert.NoError(t, err)
	assert.Nil(t, meta)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(errors.New("boom")))
	assert.False(t, isNotFound(&awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusForbidden}},
			Err:      errors.New("denied"),
		},
	}))
}

func TestNewS3Opener_sharesClient(t *testing.T) {
	fake := newFakeS3(10)
	open := NewS3Opener(fake)

	a := open("one").(*S3Store)
	b := open("two").(*S3Store)
	assert.Equal(t, "one", a.bucket)
	assert.Equal(t, "two", b.bucket)
	assert.Same(t, fake, a.client.(*fakeS3))
	assert.Same(t, fake, b.client.(*fakeS3))
}
