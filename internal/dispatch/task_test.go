package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_EncodeDecode(t *testing.T) {
	c := NewCodec()
	start := 10.0

	kind, body, err := c.Encode(BurnTask{ClipID: "clip-1", StartTime: &start, StyleName: "Neon"})
	require.NoError(t, err)
	assert.Equal(t, KindBurn, kind)

	env, err := c.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, KindBurn, env.Kind)

	var got BurnTask
	require.NoError(t, c.DecodePayload(env, &got))
	assert.Equal(t, "clip-1", got.ClipID)
	require.NotNil(t, got.StartTime)
	assert.InDelta(t, 10.0, *got.StartTime, 1e-9)
	assert.Nil(t, got.EndTime)
	assert.Equal(t, "Neon", got.StyleName)
}

func TestCodec_Encode_Invalid(t *testing.T) {
	c := NewCodec()
	negative := -1.0

	tests := []struct {
		name string
		task any
	}{
		{name: "video without project", task: VideoTask{}},
		{name: "burn without clip", task: BurnTask{}},
		{name: "burn negative start", task: BurnTask{ClipID: "c", StartTime: &negative}},
		{name: "delete without keys", task: DeleteFilesTask{}},
		{name: "delete with blank key", task: DeleteFilesTask{Keys: []string{"a", ""}}},
		{name: "sweep without age", task: RetentionSweepTask{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := c.Encode(tt.task)
			assert.ErrorIs(t, err, ErrMalformedTask)
		})
	}
}

func TestCodec_Encode_UnknownType(t *testing.T) {
	_, _, err := NewCodec().Encode(struct{}{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCodec_Decode_Malformed(t *testing.T) {
	c := NewCodec()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "hello"},
		{name: "missing kind", body: `{"payload":{}}`},
		{name: "unknown kind", body: `{"kind":"transcode","payload":{}}`},
		{name: "missing payload", body: `{"kind":"video"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tt.body))
			assert.ErrorIs(t, err, ErrMalformedTask)
		})
	}
}

func TestCodec_EnvelopeShape(t *testing.T) {
	_, body, err := NewCodec().Encode(RetentionSweepTask{MaxAgeHours: 24})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, "retention_sweep", raw["kind"])
	assert.Equal(t, map[string]any{"max_age_hours": float64(24)}, raw["payload"])
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "task.video", RoutingKey(KindVideo))
	assert.Equal(t, "task.delete_files", RoutingKey(KindDeleteFiles))
}
