package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maauso/viralclips/internal/analysis"
	"github.com/maauso/viralclips/internal/media"
	"github.com/maauso/viralclips/internal/metrics"
	"github.com/maauso/viralclips/internal/project"
	"github.com/maauso/viralclips/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultShortVideoThreshold is the duration below which analysis is skipped.
	DefaultShortVideoThreshold = 30.0
	// DefaultFallbackDuration is used when the source cannot be probed.
	DefaultFallbackDuration = 60.0
	// DefaultShortVideoScore is the score given to a synthesized whole-video segment.
	DefaultShortVideoScore = 80

	failureCommitTimeout = 10 * time.Second
)

// Orchestrator runs the primary pipeline for a project.
type Orchestrator struct {
	deps             Dependencies
	logger           *slog.Logger
	supersede        bool
	shortThreshold   float64
	fallbackDuration float64
	shortScore       int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSupersede controls whether a run deletes the project's existing clips
// before producing new ones.
func WithSupersede(enabled bool) Option {
	return func(o *Orchestrator) {
		o.supersede = enabled
	}
}

// WithShortVideoThreshold sets the duration below which analysis is skipped.
// Zero sends every source to the analyzer; negative values are ignored.
func WithShortVideoThreshold(seconds float64) Option {
	return func(o *Orchestrator) {
		if seconds >= 0 {
			o.shortThreshold = seconds
		}
	}
}

// WithFallbackDuration sets the duration assumed when probing fails.
func WithFallbackDuration(seconds float64) Option {
	return func(o *Orchestrator) {
		if seconds > 0 {
			o.fallbackDuration = seconds
		}
	}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(deps Dependencies, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:             deps,
		logger:           deps.logger(),
		supersede:        true,
		shortThreshold:   DefaultShortVideoThreshold,
		fallbackDuration: DefaultFallbackDuration,
		shortScore:       DefaultShortVideoScore,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunVideo executes the primary pipeline for projectID.
//
// An error is returned only when the run could not begin: the project is
// missing or PROCESSING could not be committed. Every failure after that
// point is recorded on the project as FAILED and RunVideo returns nil.
func (o *Orchestrator) RunVideo(ctx context.Context, projectID string) error {
	ctx, span := tracer.Start(ctx, "pipeline.RunVideo",
		trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	started := time.Now()
	log := o.logger.With(slog.String("project_id", projectID))

	p, err := o.deps.Repo.GetProject(ctx, projectID)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("load project %s: %w", projectID, err)
	}
	if err := p.Start(); err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("start project %s: %w", projectID, err)
	}
	if err := o.deps.Repo.UpdateProjectStatus(ctx, p); err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("commit processing status for %s: %w", projectID, err)
	}

	log.Info("pipeline run started",
		slog.String("source_key", p.SourceKey),
		slog.String("duration_preference", string(p.DurationPreference)),
	)

	produced, runErr := o.execute(ctx, p, log)
	if runErr == nil {
		done := p.Clone()
		if err := done.Complete(); err != nil {
			runErr = err
		} else if err := o.deps.Repo.UpdateProjectStatus(ctx, done); err != nil {
			runErr = fmt.Errorf("commit completed status: %w", err)
		}
	}

	if runErr != nil {
		recordSpanError(span, runErr)
		metrics.RunsTotal.WithLabelValues("video", "failed").Inc()
		o.fail(ctx, p, runErr, log)
		return nil
	}

	span.SetAttributes(attribute.Int("clips.produced", produced))
	metrics.RunsTotal.WithLabelValues("video", "completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(started).Seconds())
	log.Info("pipeline run completed",
		slog.Int("clips", produced),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// execute runs the body of a pipeline run and returns how many clips it persisted.
func (o *Orchestrator) execute(ctx context.Context, p *project.Project, log *slog.Logger) (int, error) {
	scratch, err := o.deps.Workspace.Acquire(ctx, "video-"+p.ID)
	if err != nil {
		return 0, fmt.Errorf("acquire scratch space: %w", err)
	}
	defer bestEffort(log, "release_scratch", scratch.Release)

	if o.supersede {
		o.supersedeClips(ctx, p.ID, log)
	}

	var sourcePath string
	err = runStage(ctx, "fetch_source", func(ctx context.Context) error {
		if !storage.IsBlobKey(p.SourceKey) {
			return fmt.Errorf("%w: %q is not a blob key", ErrSourceUnavailable, p.SourceKey)
		}
		var err error
		sourcePath, err = fetchSource(ctx, o.deps.Blobs, scratch, p.SourceKey)
		return err
	})
	if err != nil {
		return 0, err
	}

	duration := o.probe(ctx, sourcePath, log)

	var segments []analysis.Segment
	err = runStage(ctx, "select_segments", func(ctx context.Context) error {
		var err error
		segments, err = o.selectSegments(ctx, p, sourcePath, duration, log)
		return err
	})
	if err != nil {
		return 0, err
	}

	produced := 0
	for i, seg := range segments {
		start := media.ParseTimestamp(seg.Start)
		end := media.ParseTimestamp(seg.End)
		if end <= start {
			metrics.SegmentsSkippedTotal.Inc()
			log.Warn("skipping segment with empty window",
				slog.Int("segment", i+1),
				slog.String("start", seg.Start),
				slog.String("end", seg.End),
			)
			continue
		}

		if err := o.produceClip(ctx, p, scratch, sourcePath, i, seg, start, end, log); err != nil {
			return produced, err
		}
		produced++
	}

	if produced == 0 {
		return 0, fmt.Errorf("%w: all %d segments had empty windows", ErrNoSegmentsFound, len(segments))
	}

	bestEffort(log, "remove_source", func() error { return scratch.Remove(sourcePath) })
	return produced, nil
}

// probe returns the source duration, or the fallback when probing fails.
func (o *Orchestrator) probe(ctx context.Context, sourcePath string, log *slog.Logger) float64 {
	var duration float64
	err := runStage(ctx, "probe", func(ctx context.Context) error {
		var err error
		duration, err = o.deps.Transcoder.Probe(ctx, sourcePath)
		return err
	})
	if err != nil || duration <= 0 {
		attrs := []any{slog.Float64("fallback_seconds", o.fallbackDuration)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		log.Warn("probe failed, using fallback duration", attrs...)
		return o.fallbackDuration
	}
	return duration
}

// selectSegments synthesizes one whole-video segment for short sources and
// asks the analyzer otherwise.
func (o *Orchestrator) selectSegments(
	ctx context.Context,
	p *project.Project,
	sourcePath string,
	duration float64,
	log *slog.Logger,
) ([]analysis.Segment, error) {
	if duration < o.shortThreshold {
		log.Info("short source, skipping analysis", slog.Float64("duration", duration))
		end := media.FormatTimestamp(duration)
		if media.ParseTimestamp(end) <= 0 {
			// Sub-second sources round to zero; keep the exact length.
			end = strconv.FormatFloat(duration, 'f', 3, 64)
		}
		return []analysis.Segment{{
			Start: media.FormatTimestamp(0),
			End:   end,
			Score: o.shortScore,
		}}, nil
	}

	segments, err := o.deps.Analyzer.Analyze(ctx, analysis.Request{
		VideoPath:  sourcePath,
		MimeType:   mimeTypeFor(sourcePath),
		Preference: p.DurationPreference,
	})
	if err != nil {
		switch {
		case errors.Is(err, analysis.ErrTimeout):
			return nil, fmt.Errorf("%w: %w", ErrAnalysisTimeout, err)
		case errors.Is(err, analysis.ErrRejected):
			return nil, fmt.Errorf("%w: %w", ErrAnalysisRejected, err)
		default:
			return nil, fmt.Errorf("analyze source: %w", err)
		}
	}
	if len(segments) == 0 {
		return nil, ErrNoSegmentsFound
	}

	log.Info("analyzer returned segments", slog.Int("count", len(segments)))
	return segments, nil
}

// produceClip transcodes, uploads and persists one segment.
func (o *Orchestrator) produceClip(
	ctx context.Context,
	p *project.Project,
	scratch *storage.Scratch,
	sourcePath string,
	index int,
	seg analysis.Segment,
	start, end float64,
	log *slog.Logger,
) error {
	output := scratch.Path(fmt.Sprintf("clip_%02d.mp4", index+1))
	defer bestEffort(log, "remove_clip_file", func() error { return scratch.Remove(output) })

	err := runStage(ctx, "transcode", func(ctx context.Context) error {
		_, err := o.deps.Transcoder.CutCropCaption(ctx, media.CutOptions{
			Input:    sourcePath,
			Output:   output,
			Start:    start,
			End:      end,
			Captions: seg.Captions,
			Style:    p.CaptionStyle,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: segment %d (%s-%s): %w", ErrTranscodeFailed, index+1, seg.Start, seg.End, err)
	}

	key := storage.ClipKey(p.ID)
	err = runStage(ctx, "upload", func(ctx context.Context) error {
		return uploadClip(ctx, o.deps.Blobs, output, key)
	})
	if err != nil {
		return fmt.Errorf("segment %d: %w", index+1, err)
	}

	clip, err := project.NewClip(p.ID, key, start, end)
	if err != nil {
		return fmt.Errorf("segment %d: %w", index+1, err)
	}
	score := seg.Score
	clip.ViralityScore = &score
	if seg.Rationale != "" {
		rationale := seg.Rationale
		clip.Rationale = &rationale
	}
	if seg.Captions != "" {
		transcript := seg.Captions
		clip.Transcript = &transcript
	}

	if err := o.deps.Repo.CreateClip(ctx, clip); err != nil {
		bestEffort(log, "delete_orphan_clip", func() error { return o.deps.Blobs.Delete(ctx, key) })
		return fmt.Errorf("persist clip for segment %d: %w", index+1, err)
	}

	metrics.ClipsProducedTotal.Inc()
	log.Info("clip produced",
		slog.String("clip_id", clip.ID),
		slog.String("media_key", key),
		slog.Float64("start", start),
		slog.Float64("end", end),
		slog.Int("score", score),
	)
	return nil
}

// supersedeClips removes clips left by earlier runs of the project.
func (o *Orchestrator) supersedeClips(ctx context.Context, projectID string, log *slog.Logger) {
	removed, err := o.deps.Repo.DeleteClips(ctx, projectID)
	if err != nil {
		metrics.CleanupFailuresTotal.WithLabelValues("supersede_clips").Inc()
		log.Warn("failed to remove previous clips", slog.String("error", err.Error()))
		return
	}
	if len(removed) == 0 {
		return
	}

	keys := make([]string, 0, len(removed))
	for _, c := range removed {
		if storage.IsBlobKey(c.MediaKey) {
			keys = append(keys, c.MediaKey)
		}
	}
	log.Info("superseding previous clips", slog.Int("count", len(removed)))

	bestEffort(log, "delete_superseded_media", func() error {
		n, err := o.deps.Blobs.DeleteMany(ctx, keys)
		metrics.BlobsDeletedTotal.WithLabelValues("superseded").Add(float64(n))
		return err
	})
}

// fail records runErr on the project. A failure to write that state is
// logged and otherwise ignored.
func (o *Orchestrator) fail(ctx context.Context, p *project.Project, runErr error, log *slog.Logger) {
	msg := failureMessage(runErr)
	log.Error("pipeline run failed", slog.String("error", runErr.Error()))

	if err := p.Fail(msg); err != nil {
		log.Error("cannot mark project failed", slog.String("error", err.Error()))
		return
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureCommitTimeout)
	defer cancel()
	if err := o.deps.Repo.UpdateProjectStatus(commitCtx, p); err != nil {
		log.Error("failed to record pipeline failure",
			slog.String("error", err.Error()),
			slog.String("failure", msg),
		)
	}
}
