// Package pipeline runs the background video jobs: the primary pipeline
// that turns a project's source video into captioned vertical clips, the
// re-burn pipeline that regenerates one clip, and blob cleanup tasks.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"time"

	"github.com/maauso/viralclips/internal/analysis"
	"github.com/maauso/viralclips/internal/media"
	"github.com/maauso/viralclips/internal/metrics"
	"github.com/maauso/viralclips/internal/project"
	"github.com/maauso/viralclips/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const clipContentType = "video/mp4"

var tracer = otel.Tracer("github.com/maauso/viralclips/internal/pipeline")

// Dependencies groups the adapters a pipeline run talks to. They are built
// once per process and shared by every run.
type Dependencies struct {
	Repo       project.Repository
	Blobs      storage.BlobStore
	Workspace  *storage.Workspace
	Transcoder media.Transcoder
	// Analyzer is only needed by the Orchestrator.
	Analyzer analysis.Analyzer
	Logger   *slog.Logger
}

func (d Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// runStage executes fn inside a span and records its duration.
func runStage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// bestEffort runs a cleanup action whose failure must not affect the run.
func bestEffort(log *slog.Logger, action string, fn func() error) {
	if err := fn(); err != nil {
		metrics.CleanupFailuresTotal.WithLabelValues(action).Inc()
		log.Warn("cleanup failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

// fetchSource copies the object at key into the scratch directory.
func fetchSource(ctx context.Context, blobs storage.BlobStore, scratch *storage.Scratch, key string) (string, error) {
	rc, err := blobs.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %w", ErrSourceUnavailable, key, err)
	}
	defer func() { _ = rc.Close() }()

	name := "source" + path.Ext(key)
	if path.Ext(key) == "" {
		name = "source.mp4"
	}
	p, err := scratch.SaveTemp(ctx, name, rc)
	if err != nil {
		return "", fmt.Errorf("%w: copy %s: %w", ErrSourceUnavailable, key, err)
	}
	return p, nil
}

// uploadClip stores the file at localPath under key.
func uploadClip(ctx context.Context, blobs storage.BlobStore, localPath, key string) error {
	f, err := os.Open(localPath) // #nosec G304 - path is inside the run's scratch directory
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrUploadFailed, localPath, err)
	}
	defer func() { _ = f.Close() }()

	if err := blobs.Put(ctx, key, f, clipContentType); err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return nil
}

// mimeTypeFor guesses a video MIME type from the file extension.
func mimeTypeFor(p string) string {
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return clipContentType
}
