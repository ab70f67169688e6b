package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ProgressFrame(t *testing.T) {
	raw := []byte(`{
		"type": "progress",
		"job_id": "job-1",
		"timestamp": "2025-06-01T12:00:00Z",
		"data": {"progress": {"step": 2, "total_steps": 5, "progress_percent": 40, "phase": "video_generation", "current_subject": "Artist", "message": "Creating morph"}}
	}`)

	msg, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, EventProgress, msg.Event)
	assert.Equal(t, "job-1", msg.JobID)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), msg.Timestamp)
	require.NotNil(t, msg.Progress)
	assert.Equal(t, 2, msg.Progress.Step)
	assert.Equal(t, float64(40), msg.Progress.ProgressPercent)
	assert.Equal(t, "Artist", msg.Progress.CurrentSubject)
}

func TestDecode_FlatProgressPayload(t *testing.T) {
	// older servers put the progress fields directly in data
	raw := []byte(`{"type":"step_progress","job_id":"j","data":{"step":1,"total_steps":3,"progress_percent":33}}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, msg.Progress)
	assert.Equal(t, float64(33), msg.Progress.ProgressPercent)
}

func TestDecode_CompleteFrame(t *testing.T) {
	raw := []byte(`{
		"type": "complete",
		"job_id": "job-1",
		"data": {"output_path": "/renders/demo/final.mp4", "variant_paths": {"16:9": "/renders/demo/final_16x9.mp4"}, "elapsed_seconds": 80.5}
	}`)

	msg, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, EventCompleted, msg.Event)
	assert.Equal(t, "/renders/demo/final.mp4", msg.OutputPath)
	assert.Equal(t, "/renders/demo/final_16x9.mp4", msg.VariantPaths["16:9"])
	assert.Equal(t, 80.5, msg.ElapsedSeconds)
}

func TestDecode_ErrorFrame(t *testing.T) {
	raw := []byte(`{"type":"error","job_id":"j","data":{"message":"pipeline failed"}}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, EventFailed, msg.Event)
	assert.Equal(t, "pipeline failed", msg.ErrorMessage)
}

func TestDecode_ControlFrames(t *testing.T) {
	cases := map[string]EventType{
		`{"type":"cancelled","job_id":"j"}`:        EventCancelled,
		`{"type":"heartbeat"}`:                     EventHeartbeat,
		`{"type":"pong"}`:                          EventPong,
		`{"type":"cancel_requested","job_id":"j"}`: EventCancelRequested,
	}
	for raw, want := range cases {
		msg, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, msg.Event, raw)
	}
}

func TestDecode_UnknownTypeIsForwardCompatible(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"gpu_stats","job_id":"j","data":{"load":0.7}}`))
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, msg.Event)
	assert.Equal(t, "gpu_stats", msg.WireType)
}

func TestDecode_Malformed(t *testing.T) {
	cases := []string{
		`not json at all`,
		`{"job_id":"j"}`,
		`{"type":"progress","timestamp":"yesterday"}`,
		`{"type":"complete","data":"not-an-object"}`,
	}
	for _, raw := range cases {
		_, err := Decode([]byte(raw))
		require.Error(t, err, raw)

		var derr *DecodeError
		assert.ErrorAs(t, err, &derr, raw)
	}
}
