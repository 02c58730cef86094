package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/viralclips/internal/gemini"
)

// GeminiAnalyzer adapts the Gemini client to the Analyzer interface.
type GeminiAnalyzer struct {
	client       gemini.Client
	pollInterval time.Duration
	maxWait      time.Duration
	logger       *slog.Logger
}

// GeminiOption configures a GeminiAnalyzer.
type GeminiOption func(*GeminiAnalyzer)

// WithPollInterval sets how often the uploaded file's state is checked.
func WithPollInterval(d time.Duration) GeminiOption {
	return func(a *GeminiAnalyzer) {
		a.pollInterval = d
	}
}

// WithMaxWait bounds how long to wait for the uploaded file to become active.
func WithMaxWait(d time.Duration) GeminiOption {
	return func(a *GeminiAnalyzer) {
		a.maxWait = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GeminiOption {
	return func(a *GeminiAnalyzer) {
		a.logger = l
	}
}

// NewGeminiAnalyzer creates a new Gemini-backed analyzer.
func NewGeminiAnalyzer(client gemini.Client, opts ...GeminiOption) *GeminiAnalyzer {
	a := &GeminiAnalyzer{
		client:       client,
		pollInterval: 2 * time.Second,
		maxWait:      60 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze uploads the video, waits for it to be processed, prompts the
// model and parses its answer. The uploaded file is deleted afterwards.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, req Request) ([]Segment, error) {
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	file, err := a.client.UploadFile(ctx, req.VideoPath, mimeType)
	if err != nil {
		return nil, fmt.Errorf("upload video for analysis: %w", err)
	}
	defer func() {
		// The request context may already be done here.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.client.DeleteFile(cleanupCtx, file.Name); err != nil {
			a.logger.Warn("failed to delete analysis upload",
				slog.String("file", file.Name),
				slog.String("error", err.Error()),
			)
		}
	}()

	active, err := a.waitActive(ctx, file)
	if err != nil {
		return nil, err
	}

	text, err := a.client.GenerateJSON(ctx, active, BuildPrompt(req.Preference))
	if err != nil {
		switch {
		case errors.Is(err, gemini.ErrBlocked):
			return nil, fmt.Errorf("%w: %w", ErrRejected, err)
		case errors.Is(err, gemini.ErrRequestTimeout):
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("generate segments: %w", err)
	}

	segments := ParseSegments(text)
	if len(segments) == 0 {
		a.logger.Warn("analyzer returned no usable segments",
			slog.String("file", file.Name),
			slog.Int("response_len", len(text)),
		)
	}
	return segments, nil
}

// waitActive polls the file state until it is ACTIVE, FAILED, or maxWait elapses.
func (a *GeminiAnalyzer) waitActive(ctx context.Context, file *gemini.File) (*gemini.File, error) {
	if file.State == gemini.FileStateActive {
		return file, nil
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(a.maxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for video processing: %w", ctx.Err())
		case <-deadline.C:
			return nil, fmt.Errorf("%w after %s", ErrTimeout, a.maxWait)
		case <-ticker.C:
			current, err := a.client.GetFile(ctx, file.Name)
			if err != nil {
				a.logger.Warn("poll analysis upload failed",
					slog.String("file", file.Name),
					slog.String("error", err.Error()),
				)
				continue
			}
			switch current.State {
			case gemini.FileStateActive:
				return current, nil
			case gemini.FileStateFailed:
				msg := "processing failed"
				if current.Error != nil && current.Error.Message != "" {
					msg = current.Error.Message
				}
				return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
			default:
				a.logger.Debug("analysis upload still processing",
					slog.String("file", file.Name),
					slog.String("state", string(current.State)),
				)
			}
		}
	}
}

// Compile-time check that GeminiAnalyzer implements Analyzer.
var _ Analyzer = (*GeminiAnalyzer)(nil)
