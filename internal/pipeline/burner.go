package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/viralclips/internal/media"
	"github.com/maauso/viralclips/internal/metrics"
	"github.com/maauso/viralclips/internal/project"
	"github.com/maauso/viralclips/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BurnRequest asks for one clip to be regenerated.
// Nil bounds fall back to the clip's stored bounds; an empty Style uses
// media.DefaultStyle.
type BurnRequest struct {
	ClipID string
	Start  *float64
	End    *float64
	Style  string
}

// Burner re-cuts and re-captions an existing clip without running analysis.
// It never leaves the clip row pointing at missing media: the row is only
// updated after the new object is stored, and any error leaves it untouched.
type Burner struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewBurner creates a new Burner.
func NewBurner(deps Dependencies) *Burner {
	return &Burner{deps: deps, logger: deps.logger()}
}

// RunBurn regenerates the clip described by req.
func (b *Burner) RunBurn(ctx context.Context, req BurnRequest) error {
	ctx, span := tracer.Start(ctx, "pipeline.RunBurn",
		trace.WithAttributes(attribute.String("clip.id", req.ClipID)))
	defer span.End()

	started := time.Now()
	log := b.logger.With(slog.String("clip_id", req.ClipID))

	if err := b.run(ctx, req, log); err != nil {
		recordSpanError(span, err)
		metrics.RunsTotal.WithLabelValues("burn", "aborted").Inc()
		log.Warn("re-burn aborted", slog.String("error", err.Error()))
		return err
	}

	metrics.RunsTotal.WithLabelValues("burn", "completed").Inc()
	log.Info("re-burn completed", slog.Duration("elapsed", time.Since(started)))
	return nil
}

func (b *Burner) run(ctx context.Context, req BurnRequest, log *slog.Logger) error {
	clip, err := b.deps.Repo.GetClip(ctx, req.ClipID)
	if err != nil {
		return fmt.Errorf("load clip %s: %w", req.ClipID, err)
	}

	start, end, err := resolveBounds(clip, req)
	if err != nil {
		return err
	}

	p, err := b.deps.Repo.GetProject(ctx, clip.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", clip.ProjectID, err)
	}
	if !storage.IsBlobKey(p.SourceKey) {
		return fmt.Errorf("%w: %q", ErrUnsupportedSource, p.SourceKey)
	}

	scratch, err := b.deps.Workspace.Acquire(ctx, "burn-"+clip.ID)
	if err != nil {
		return fmt.Errorf("acquire scratch space: %w", err)
	}
	defer bestEffort(log, "release_scratch", scratch.Release)

	var sourcePath string
	err = runStage(ctx, "fetch_source", func(ctx context.Context) error {
		var err error
		sourcePath, err = fetchSource(ctx, b.deps.Blobs, scratch, p.SourceKey)
		return err
	})
	if err != nil {
		return err
	}

	style := req.Style
	if style == "" {
		style = media.DefaultStyle
	}
	var captions string
	if clip.Transcript != nil {
		captions = *clip.Transcript
	}

	output := scratch.Path("burn.mp4")
	err = runStage(ctx, "transcode", func(ctx context.Context) error {
		_, err := b.deps.Transcoder.CutCropCaption(ctx, media.CutOptions{
			Input:    sourcePath,
			Output:   output,
			Start:    start,
			End:      end,
			Captions: captions,
			Style:    style,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}

	newKey := storage.BurnKey(p.ID, clip.ID)
	err = runStage(ctx, "upload", func(ctx context.Context) error {
		return uploadClip(ctx, b.deps.Blobs, output, newKey)
	})
	if err != nil {
		return err
	}

	oldKey := clip.MediaKey
	updated := clip.Clone()
	updated.MediaKey = newKey
	if err := updated.SetBounds(start, end); err != nil {
		bestEffort(log, "delete_unreferenced_burn", func() error { return b.deps.Blobs.Delete(ctx, newKey) })
		return err
	}
	if err := b.deps.Repo.UpdateClipMedia(ctx, updated); err != nil {
		bestEffort(log, "delete_unreferenced_burn", func() error { return b.deps.Blobs.Delete(ctx, newKey) })
		return fmt.Errorf("update clip %s: %w", clip.ID, err)
	}

	if oldKey != "" && oldKey != newKey && storage.IsBlobKey(oldKey) {
		bestEffort(log, "delete_replaced_media", func() error { return b.deps.Blobs.Delete(ctx, oldKey) })
	}

	log.Info("clip media replaced",
		slog.String("media_key", newKey),
		slog.String("style", style),
		slog.Float64("start", start),
		slog.Float64("end", end),
	)
	return nil
}

// resolveBounds merges requested bounds over the clip's stored ones.
func resolveBounds(clip *project.Clip, req BurnRequest) (float64, float64, error) {
	start, end := req.Start, req.End
	if start == nil {
		start = clip.StartTime
	}
	if end == nil {
		end = clip.EndTime
	}
	if start == nil || end == nil {
		return 0, 0, fmt.Errorf("%w: clip %s has no stored bounds", ErrMissingBounds, clip.ID)
	}
	if *start < 0 || *end <= *start {
		return 0, 0, fmt.Errorf("%w: %w: start=%.3f end=%.3f", ErrMissingBounds, project.ErrInvalidBounds, *start, *end)
	}
	return *start, *end, nil
}
