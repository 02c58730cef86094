// Package media provides probing and clip transcoding on top of the
// ffmpeg command-line tools: cut a time range from a source video,
// center-crop it to a vertical 9:16 frame, optionally burn a caption track
// in one of the predefined styles, and re-encode to H.264/AAC.
package media

import "context"

// CutOptions describes one clip to produce from a source video.
type CutOptions struct {
	// Input is the path to the source video.
	Input string
	// Output is the path the clip is written to.
	Output string
	// Start is the cut start in seconds.
	Start float64
	// End is the cut end in seconds. Must be greater than Start.
	End float64
	// Captions is SubRip text to burn into the clip. Empty means no captions.
	Captions string
	// Style is the caption style name. Unknown names use DefaultStyle.
	Style string
}

// Transcoder defines the media operations the pipeline relies on.
type Transcoder interface {
	// Probe returns the duration in seconds of a media file.
	Probe(ctx context.Context, path string) (float64, error)

	// CutCropCaption produces the clip described by opts and returns its path.
	// Failures from the encoder are returned as *FFmpegError carrying stderr.
	CutCropCaption(ctx context.Context, opts CutOptions) (string, error)
}
