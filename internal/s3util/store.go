// Package s3util provides the S3-backed object store used by the Lambda
// entry points, the queue worker and the CLI.
//
// Store satisfies thumbnail.Store. It reads whole objects into memory, which
// suits the image sizes a thumbnail Lambda is configured for.
package s3util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-thumbnailer/internal/thumbnail"
)

// ErrNotFound is wrapped by Get when the bucket or key does not exist.
var ErrNotFound = errors.New("object not found")

// DefaultTagging is the URL-encoded object tagging applied to every Put
// unless overridden with WithTagging.
const DefaultTagging = "Project=image-thumbnailer"

// API is the subset of *s3.Client used by Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store reads and writes objects through an S3 client. The client is
// created once per process and shared by every invocation.
type Store struct {
	client  API
	tagging *string
}

var _ thumbnail.Store = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTagging sets a URL-encoded tagging string applied to every Put.
func WithTagging(tagging string) StoreOption {
	return func(s *Store) {
		if tagging != "" {
			s.tagging = aws.String(tagging)
		}
	}
}

// NewStore creates a Store over client.
func NewStore(client API, opts ...StoreOption) *Store {
	s := &Store{client: client, tagging: aws.String(DefaultTagging)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get downloads the full object and its declared content type.
func (s *Store) Get(ctx context.Context, bucket, key string) (*thumbnail.Object, error) {
	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Downloading from S3")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("S3 GetObject: %w: %v", ErrNotFound, err)
		}
		return nil, fmt.Errorf("S3 GetObject: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return &thumbnail.Object{
		Data:        data,
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// Put uploads data under key. An empty contentType leaves the header unset
// so S3 applies its default.
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	log.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(data)).Msg("Uploading to S3")
	input := &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Tagging:       s.tagging,
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("S3 PutObject: %w", err)
	}
	return nil
}

// isNotFound reports whether err is S3's answer for a missing bucket or key.
func isNotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
