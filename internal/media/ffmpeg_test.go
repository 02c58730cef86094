package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// skipIfNoSubtitlesFilter skips the test if ffmpeg was built without libass.
func skipIfNoSubtitlesFilter(t *testing.T) {
	t.Helper()
	out, err := exec.Command("ffmpeg", "-hide_banner", "-filters").CombinedOutput()
	if err != nil || !strings.Contains(string(out), " subtitles ") {
		t.Skip("ffmpeg subtitles filter not available, skipping test")
	}
}

// createTestVideo creates a simple landscape test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64) {
	t.Helper()

	// Create a simple video with a test pattern and silent audio
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc=s=320x180:r=25:d=%.1f", duration),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-g", "25",
		"-c:a", "aac",
		"-shortest",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func probeDimensions(t *testing.T, path string) (int, int) {
	t.Helper()

	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	)
	output, err := cmd.Output()
	require.NoError(t, err)

	var w, h int
	_, err = fmt.Sscanf(strings.TrimSpace(string(output)), "%dx%d", &w, &h)
	require.NoError(t, err)
	return w, h
}

func TestNewFFmpegTranscoder(t *testing.T) {
	t.Run("default paths", func(t *testing.T) {
		tr := NewFFmpegTranscoder("", "")
		assert.Equal(t, "ffmpeg", tr.ffmpegPath)
		assert.Equal(t, "ffprobe", tr.ffprobePath)
		assert.Equal(t, "fast", tr.preset)
		assert.Equal(t, 23, tr.crf)
	})

	t.Run("custom paths and options", func(t *testing.T) {
		tr := NewFFmpegTranscoder("/opt/ffmpeg", "/opt/ffprobe", WithPreset("ultrafast"), WithCRF(28))
		assert.Equal(t, "/opt/ffmpeg", tr.ffmpegPath)
		assert.Equal(t, "/opt/ffprobe", tr.ffprobePath)
		assert.Equal(t, "ultrafast", tr.preset)
		assert.Equal(t, 28, tr.crf)
	})

	t.Run("out of range options keep defaults", func(t *testing.T) {
		tr := NewFFmpegTranscoder("", "", WithPreset(""), WithCRF(60))
		assert.Equal(t, "fast", tr.preset)
		assert.Equal(t, 23, tr.crf)
	})
}

func TestCutCropCaption_Validation(t *testing.T) {
	tr := NewFFmpegTranscoder("", "")
	ctx := context.Background()

	_, err := tr.CutCropCaption(ctx, CutOptions{Input: "", Output: "out.mp4", Start: 0, End: 1})
	assert.ErrorIs(t, err, ErrMissingPath)

	_, err = tr.CutCropCaption(ctx, CutOptions{Input: "in.mp4", Output: "out.mp4", Start: 10, End: 10})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = tr.CutCropCaption(ctx, CutOptions{Input: "in.mp4", Output: "out.mp4", Start: -1, End: 3})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestCutCropCaption_RoundTripDuration(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	input := filepath.Join(tmpDir, "source.mp4")
	createTestVideo(t, input, 6)

	tr := NewFFmpegTranscoder("", "", WithPreset("ultrafast"))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	output := filepath.Join(tmpDir, "clip.mp4")
	got, err := tr.CutCropCaption(ctx, CutOptions{Input: input, Output: output, Start: 1, End: 4})
	require.NoError(t, err)
	assert.Equal(t, output, got)

	duration, err := tr.Probe(ctx, output)
	require.NoError(t, err)
	assert.LessOrEqual(t, math.Abs(duration-3.0), 0.5, "clip duration %.3f should match the cut window", duration)

	w, h := probeDimensions(t, output)
	assert.Equal(t, 180, h)
	assert.Equal(t, 100, w) // trunc(180*9/16/2)*2
}

func TestCutCropCaption_BurnsCaptions(t *testing.T) {
	skipIfNoFFmpeg(t)
	skipIfNoSubtitlesFilter(t)

	tmpDir := t.TempDir()
	input := filepath.Join(tmpDir, "source.mp4")
	createTestVideo(t, input, 3)

	tr := NewFFmpegTranscoder("", "", WithPreset("ultrafast"))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	captions := "1\n00:00:00,000 --> 00:00:01,500\nHello there\n\n2\n00:00:01,500 --> 00:00:02,000\nBye, now\n"
	output := filepath.Join(tmpDir, "captioned.mp4")
	_, err := tr.CutCropCaption(ctx, CutOptions{
		Input:    input,
		Output:   output,
		Start:    0,
		End:      2,
		Captions: captions,
		Style:    "neon",
	})
	require.NoError(t, err)

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// The temporary captions file is removed.
	leftovers, err := filepath.Glob(filepath.Join(tmpDir, "captions_*.srt"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestCutCropCaption_FFmpegError(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	tr := NewFFmpegTranscoder("", "")

	_, err := tr.CutCropCaption(context.Background(), CutOptions{
		Input:  filepath.Join(tmpDir, "missing.mp4"),
		Output: filepath.Join(tmpDir, "out.mp4"),
		Start:  0,
		End:    1,
	})
	require.Error(t, err)

	var ffErr *FFmpegError
	require.True(t, errors.As(err, &ffErr), "expected FFmpegError, got %T", err)
	assert.NotEmpty(t, ffErr.Stderr)
	assert.NotEmpty(t, ffErr.Diagnostic())
}

func TestCutCropCaption_Cancelled(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	input := filepath.Join(tmpDir, "source.mp4")
	createTestVideo(t, input, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewFFmpegTranscoder("", "")
	_, err := tr.CutCropCaption(ctx, CutOptions{Input: input, Output: filepath.Join(tmpDir, "o.mp4"), Start: 0, End: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProbe(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	input := filepath.Join(tmpDir, "source.mp4")
	createTestVideo(t, input, 2)

	tr := NewFFmpegTranscoder("", "")
	duration, err := tr.Probe(context.Background(), input)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, duration, 0.2)

	_, err = tr.Probe(context.Background(), filepath.Join(tmpDir, "missing.mp4"))
	assert.ErrorIs(t, err, ErrFFprobeExecution)
}

func TestFFmpegError(t *testing.T) {
	err := &FFmpegError{
		Args:   []string{"-i", "input.mp4", "output.mp4"},
		Stderr: "line1\nline2\nline3\nline4\nline5\nline6\ninput.mp4: No such file or directory",
		Err:    fmt.Errorf("exit status 1"),
	}

	errStr := err.Error()
	assert.Contains(t, errStr, "exit status 1")
	assert.Contains(t, errStr, "No such file or directory")

	assert.Equal(t, "exit status 1", err.Unwrap().Error())

	diag := err.Diagnostic()
	assert.NotContains(t, diag, "line1")
	assert.True(t, strings.HasSuffix(diag, "No such file or directory"))
}
