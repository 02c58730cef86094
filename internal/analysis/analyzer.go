// Package analysis selects candidate viral segments from a source video
// using an external multimodal model.
package analysis

import (
	"context"
	"errors"

	"github.com/maauso/viralclips/internal/project"
)

// Static errors for segment analysis.
var (
	// ErrTimeout is returned when the backing service does not finish
	// processing the uploaded video within the configured wait.
	ErrTimeout = errors.New("analysis: timed out waiting for video processing")
	// ErrRejected is returned when the backing service permanently refuses
	// the video or the prompt.
	ErrRejected = errors.New("analysis: video rejected")
)

// Segment is one candidate clip proposed by the analyzer.
// Start and End are textual timestamps ("MM:SS" or "HH:MM:SS").
type Segment struct {
	Start     string
	End       string
	Score     int
	Rationale string
	// Captions is an optional SubRip track relative to the segment start.
	Captions string
}

// Request describes one analysis call.
type Request struct {
	// VideoPath is the local path of the source video.
	VideoPath string
	// MimeType of the source video. Empty defaults to video/mp4.
	MimeType string
	// Preference is the requested clip length.
	Preference project.DurationPreference
}

// Analyzer defines the interface for segment selection.
type Analyzer interface {
	// Analyze returns candidate segments in ranked order.
	// Malformed model output yields an empty result, not an error.
	Analyze(ctx context.Context, req Request) ([]Segment, error)
}
