// Package storage provides blob storage and scoped local scratch space for
// the video pipeline. It defines the BlobStore interface (port) implemented
// by an S3-compatible object store, and Workspace for temporary files whose
// lifetime is bound to a single pipeline run.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Key prefixes used in the bucket.
const (
	// UploadsPrefix holds raw source videos uploaded by clients.
	UploadsPrefix = "uploads/"
	// ClipsPrefix holds produced clips.
	ClipsPrefix = "clips/"
)

// Static errors for blob operations.
var (
	// ErrObjectNotFound is returned when a key does not exist in the bucket.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrBucketRequired is returned when no bucket is configured.
	ErrBucketRequired = errors.New("storage: bucket is required")
	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("storage: key is required")
)

// BlobStore defines the operations the pipeline needs from an object store.
type BlobStore interface {
	// Put uploads the reader's content under key.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get opens the object at key for reading.
	// Returns ErrObjectNotFound if the key does not exist.
	// The caller is responsible for closing the returned ReadCloser.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMany removes the given keys in batches and returns how many were deleted.
	DeleteMany(ctx context.Context, keys []string) (int, error)

	// SignedPutURL returns a time-limited URL a client can upload to directly.
	SignedPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)

	// SignedGetURL returns a time-limited download URL. When asAttachment is
	// true the response is served with a Content-Disposition of attachment.
	SignedGetURL(ctx context.Context, key string, ttl time.Duration, asAttachment bool) (string, error)

	// ListOlderThan returns the keys under prefix last modified before cutoff.
	ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]string, error)
}

// UploadKey builds the key for a raw upload: uploads/{uuid}/{filename}.
func UploadKey(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "source.mp4"
	}
	return fmt.Sprintf("%s%s/%s", UploadsPrefix, uuid.NewString(), name)
}

// ClipKey builds a fresh key for a clip produced by a pipeline run.
func ClipKey(projectID string) string {
	return fmt.Sprintf("%s%s/%s.mp4", ClipsPrefix, projectID, uuid.NewString())
}

// BurnKey builds a fresh key for a re-burned clip, scoped to the project and clip.
func BurnKey(projectID, clipID string) string {
	return fmt.Sprintf("%s%s/%s/%s.mp4", ClipsPrefix, projectID, clipID, uuid.NewString())
}

// IsBlobKey reports whether locator is a bucket key rather than an absolute URL.
func IsBlobKey(locator string) bool {
	l := strings.ToLower(strings.TrimSpace(locator))
	if l == "" {
		return false
	}
	return !strings.HasPrefix(l, "http://") && !strings.HasPrefix(l, "https://")
}
