package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// deleteBatchSize is the S3 limit on keys per DeleteObjects request.
const deleteBatchSize = 1000

// Compile-time check that S3Store implements BlobStore.
var _ BlobStore = (*S3Store)(nil)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for S3-compatible endpoints such as R2 or MinIO
	AccessKeyID     string // Optional: static access key ID
	SecretAccessKey string // Optional: static secret access key
}

// S3Store implements BlobStore against an S3-compatible bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Store creates a new S3Store instance.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// Put uploads data to the bucket under key.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if key == "" {
		return ErrEmptyKey
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get opens the object at key.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the object at key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// DeleteMany removes keys with DeleteObjects, up to 1000 per request.
// Per-key failures are collected; the count covers keys S3 reported deleted.
func (s *S3Store) DeleteMany(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	var errs []error

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete objects batch at %d: %w", start, err))
			continue
		}

		deleted += len(out.Deleted)
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("delete object %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}

	return deleted, errors.Join(errs...)
}

// SignedPutURL presigns a PutObject request for client-direct upload.
func (s *S3Store) SignedPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return req.URL, nil
}

// SignedGetURL presigns a GetObject request.
func (s *S3Store) SignedGetURL(ctx context.Context, key string, ttl time.Duration, asAttachment bool) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if asAttachment {
		input.ResponseContentDisposition = aws.String("attachment")
	}
	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, nil
}

// ListOlderThan pages through ListObjectsV2 and collects keys older than cutoff.
func (s *S3Store) ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// isNotFound reports whether err is an S3 missing-key error.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
