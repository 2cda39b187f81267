package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client the store needs.
type S3API interface {
	s3.ListObjectsV2APIClient
	s3.HeadObjectAPIClient
	manager.DownloadAPIClient
	manager.UploadAPIClient
}

// S3Store is a Store backed by one S3 bucket. Puts are streamed through the
// transfer manager, so large files go up as multipart uploads without being
// held in memory.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
}

// NewS3Store creates a new S3Store.
func NewS3Store(client S3API, bucket string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// NewS3Opener returns a StoreOpener sharing client across buckets.
func NewS3Opener(client S3API) StoreOpener {
	return func(bucket string) Store {
		return NewS3Store(client, bucket)
	}
}

func (s *S3Store) List(ctx context.Context, prefix, delimiter string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		}
		if delimiter != "" {
			input.Delimiter = aws.String(delimiter)
		}

		paginator := s3.NewListObjectsV2Paginator(s.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(ObjectInfo{}, fmt.Errorf("list objects: %w", err))
				return
			}
			for _, cp := range page.CommonPrefixes {
				if !yield(ObjectInfo{Key: aws.ToString(cp.Prefix), Dir: true}, nil) {
					return
				}
			}
			for _, obj := range page.Contents {
				if !yield(objectInfo(obj), nil) {
					return
				}
			}
		}
	}
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	return err
}

func (s *S3Store) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         NormalizeDigest(aws.ToString(out.ETag)),
	}, nil
}

func objectInfo(obj types.Object) ObjectInfo {
	return ObjectInfo{
		Key:          aws.ToString(obj.Key),
		Size:         aws.ToInt64(obj.Size),
		LastModified: aws.ToTime(obj.LastModified),
		ETag:         NormalizeDigest(aws.ToString(obj.ETag)),
	}
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
