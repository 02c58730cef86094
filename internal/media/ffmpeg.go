package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrInvalidRange is returned when the cut end is not after the cut start.
	ErrInvalidRange = errors.New("invalid range: end must be greater than start")
	// ErrMissingPath is returned when an input or output path is empty.
	ErrMissingPath = errors.New("input and output paths are required")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// Compile-time check that FFmpegTranscoder implements Transcoder.
var _ Transcoder = (*FFmpegTranscoder)(nil)

// FFmpegTranscoder implements Transcoder using the ffmpeg and ffprobe CLIs.
type FFmpegTranscoder struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	preset      string
	crf         int
}

// TranscoderOption is a function that configures an FFmpegTranscoder.
type TranscoderOption func(*FFmpegTranscoder)

// WithPreset sets the libx264 encoding speed preset.
func WithPreset(preset string) TranscoderOption {
	return func(t *FFmpegTranscoder) {
		if preset != "" {
			t.preset = preset
		}
	}
}

// WithCRF sets the libx264 constant rate factor (0-51).
func WithCRF(crf int) TranscoderOption {
	return func(t *FFmpegTranscoder) {
		if crf >= 0 && crf <= 51 {
			t.crf = crf
		}
	}
}

// NewFFmpegTranscoder creates a new FFmpegTranscoder.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegTranscoder(ffmpegPath, ffprobePath string, opts ...TranscoderOption) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	t := &FFmpegTranscoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		preset:      "fast",
		crf:         23,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CutCropCaption cuts [Start, End] from Input, crops it to a centered 9:16
// frame, burns Captions when present and writes the result to Output.
// The temporary SubRip file is written next to Output and always removed.
func (t *FFmpegTranscoder) CutCropCaption(ctx context.Context, opts CutOptions) (string, error) {
	if opts.Input == "" || opts.Output == "" {
		return "", ErrMissingPath
	}
	if opts.Start < 0 || opts.End <= opts.Start {
		return "", fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidRange, opts.Start, opts.End)
	}

	chain := NewFilterChain().VerticalCrop()

	if strings.TrimSpace(opts.Captions) != "" {
		srtPath, err := writeCaptions(filepath.Dir(opts.Output), opts.Captions)
		if err != nil {
			return "", err
		}
		defer func() { _ = os.Remove(srtPath) }()

		_, forceStyle := ResolveStyle(opts.Style)
		chain.Subtitles(srtPath, forceStyle)
	}

	args := []string{
		"-y", // Overwrite output file without asking
		"-ss", formatSeconds(opts.Start), // Seek on the input
		"-t", formatSeconds(opts.End - opts.Start), // Cut length
		"-i", opts.Input,
		"-vf", chain.Build(),
		"-c:v", "libx264",
		"-preset", t.preset,
		"-crf", strconv.Itoa(t.crf),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		opts.Output,
	}

	if err := t.runFFmpeg(ctx, args); err != nil {
		return "", err
	}
	return opts.Output, nil
}

// writeCaptions stores SubRip text in a temporary file under dir.
func writeCaptions(dir, captions string) (string, error) {
	f, err := os.CreateTemp(dir, "captions_*.srt")
	if err != nil {
		return "", fmt.Errorf("create captions file: %w", err)
	}
	name := f.Name()
	if _, err := f.WriteString(captions); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("write captions file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close captions file: %w", err)
	}
	return name, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (t *FFmpegTranscoder) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Diagnostic returns the last lines of stderr, where ffmpeg reports the cause.
func (e *FFmpegError) Diagnostic() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Probe returns the duration in seconds of a media file.
// It uses ffprobe to extract the duration metadata.
func (t *FFmpegTranscoder) Probe(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
