package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadKey(t *testing.T) {
	key := UploadKey("my clip.mp4")
	assert.True(t, strings.HasPrefix(key, UploadsPrefix))
	assert.True(t, strings.HasSuffix(key, "/my clip.mp4"))

	// Directory components from the client are dropped.
	key = UploadKey(`..\..\evil.mp4`)
	assert.True(t, strings.HasSuffix(key, "/evil.mp4"))
	assert.NotContains(t, key, "..")

	key = UploadKey("")
	assert.True(t, strings.HasSuffix(key, "/source.mp4"))

	assert.NotEqual(t, UploadKey("a.mp4"), UploadKey("a.mp4"))
}

func TestClipAndBurnKeys(t *testing.T) {
	clip := ClipKey("p1")
	assert.True(t, strings.HasPrefix(clip, "clips/p1/"))
	assert.True(t, strings.HasSuffix(clip, ".mp4"))
	assert.NotEqual(t, clip, ClipKey("p1"))

	burn := BurnKey("p1", "c1")
	assert.True(t, strings.HasPrefix(burn, "clips/p1/c1/"))
	assert.NotEqual(t, burn, BurnKey("p1", "c1"))
}

func TestIsBlobKey(t *testing.T) {
	assert.True(t, IsBlobKey("uploads/abc/a.mp4"))
	assert.True(t, IsBlobKey("src/a.mp4"))
	assert.False(t, IsBlobKey("https://cdn.example.com/a.mp4"))
	assert.False(t, IsBlobKey("HTTP://cdn.example.com/a.mp4"))
	assert.False(t, IsBlobKey(""))
}
