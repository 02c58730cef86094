package pipeline

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/maauso/viralclips/internal/media"
)

// Failure taxonomy. Lower-layer errors are joined with one of these via
// multi-%w so callers can classify with errors.Is and still reach the cause.
var (
	// ErrSourceUnavailable is returned when the source video cannot be fetched.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrAnalysisTimeout is returned when the analyzer did not finish in time.
	ErrAnalysisTimeout = errors.New("analysis timed out")
	// ErrAnalysisRejected is returned when the analyzer permanently refused the video.
	ErrAnalysisRejected = errors.New("analysis rejected")
	// ErrNoSegmentsFound is returned when a long video yields no usable segment.
	ErrNoSegmentsFound = errors.New("no segments found")
	// ErrTranscodeFailed is returned when the transcoder fails.
	ErrTranscodeFailed = errors.New("transcode failed")
	// ErrUploadFailed is returned when a produced clip cannot be stored.
	ErrUploadFailed = errors.New("upload failed")
	// ErrMissingBounds is returned when a re-burn has no usable trim window.
	ErrMissingBounds = errors.New("missing clip bounds")
	// ErrUnsupportedSource is returned when a re-burn targets a non-blob source.
	ErrUnsupportedSource = errors.New("unsupported source")
)

const (
	maxErrorMessageLen = 1024
	genericFailure     = "pipeline failed without an error message"
)

// failureMessage renders err as the text stored on a FAILED project.
// Encoder errors are reduced to the tail of their stderr.
func failureMessage(err error) string {
	if err == nil {
		return genericFailure
	}
	msg := err.Error()

	var ffErr *media.FFmpegError
	if errors.As(err, &ffErr) {
		diag := ffErr.Diagnostic()
		if diag == "" && ffErr.Err != nil {
			diag = ffErr.Err.Error()
		}
		msg = strings.Replace(msg, ffErr.Error(), diag, 1)
	}

	msg = strings.TrimSpace(msg)
	if msg == "" {
		return genericFailure
	}
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
		for !utf8.ValidString(msg) {
			msg = msg[:len(msg)-1]
		}
	}
	return msg
}
