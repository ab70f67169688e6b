package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphreel/api/internal/model"
)

func progressMsg(step, total int, percent float64, subject string) Message {
	return Message{
		Event: EventProgress,
		Progress: &model.RenderProgress{
			Step:            step,
			TotalSteps:      total,
			ProgressPercent: percent,
			CurrentSubject:  subject,
		},
	}
}

func TestReduce_JobStartedResetsCounters(t *testing.T) {
	s := NewState()
	s = Reduce(s, Message{Event: EventJobStarted, TotalSteps: 5})

	assert.Equal(t, model.JobStateRunning, s.State)
	assert.Equal(t, 0, s.Step)
	assert.Equal(t, float64(0), s.Percent)
	assert.Equal(t, 5, s.TotalSteps)
}

func TestReduce_JobStartedWhileRunningKeepsProgress(t *testing.T) {
	s := NewState()
	s = Reduce(s, Message{Event: EventJobStarted, TotalSteps: 3})
	s = Reduce(s, progressMsg(2, 3, 66, ""))

	// duplicate start while already running must not reset counters
	s = Reduce(s, Message{Event: EventJobStarted, TotalSteps: 3})
	assert.Equal(t, 2, s.Step)
	assert.Equal(t, float64(66), s.Percent)
}

func TestReduce_PercentageMonotonicWhileRunning(t *testing.T) {
	s := NewState()
	s = Reduce(s, Message{Event: EventJobStarted, TotalSteps: 3})
	s = Reduce(s, progressMsg(1, 3, 33, "Tourist"))
	s = Reduce(s, progressMsg(2, 3, 10, "Artist"))

	// a reordered frame must not regress the percentage...
	assert.Equal(t, float64(33), s.Percent)
	// ...but still updates context fields
	assert.Equal(t, 2, s.Step)
	assert.Equal(t, "Artist", s.CurrentSubject)
}

func TestReduce_PercentageClamped(t *testing.T) {
	s := NewState()
	s = Reduce(s, progressMsg(1, 2, 250, ""))
	assert.Equal(t, float64(100), s.Percent)

	s = NewState()
	s = Reduce(s, progressMsg(1, 2, -5, ""))
	assert.Equal(t, float64(0), s.Percent)
}

func TestReduce_CompleteSetsOutputsOnce(t *testing.T) {
	s := NewState()
	s = Reduce(s, Message{Event: EventJobStarted})
	s = Reduce(s, Message{
		Event:      EventCompleted,
		OutputPath: "/renders/x/final.mp4",
		VariantPaths: map[string]string{
			"16:9": "/renders/x/final_16x9.mp4",
		},
	})

	require.Equal(t, model.JobStateComplete, s.State)
	assert.Equal(t, float64(100), s.Percent)
	assert.Equal(t, "/renders/x/final.mp4", s.Outputs["default"])
	assert.Equal(t, "/renders/x/final_16x9.mp4", s.Outputs["16:9"])

	// a duplicate terminal message must not touch outputs
	s = Reduce(s, Message{Event: EventCompleted, OutputPath: "/other.mp4"})
	assert.Equal(t, "/renders/x/final.mp4", s.Outputs["default"])
}

func TestReduce_TerminalStateAbsorbsEverything(t *testing.T) {
	terminals := []Message{
		{Event: EventCompleted, OutputPath: "/x.mp4"},
		{Event: EventFailed, ErrorMessage: "render failed"},
		{Event: EventCancelled},
	}
	followups := []Message{
		{Event: EventJobStarted},
		progressMsg(9, 9, 99, "x"),
		{Event: EventCompleted, OutputPath: "/y.mp4"},
		{Event: EventFailed, ErrorMessage: "later"},
		{Event: EventCancelled},
		{Event: EventHeartbeat},
		{Event: EventUnknown},
	}

	for _, terminal := range terminals {
		s := NewState()
		s = Reduce(s, Message{Event: EventJobStarted})
		s = Reduce(s, terminal)
		want := s

		for _, m := range followups {
			s = Reduce(s, m)
			assert.Equal(t, want, s, "terminal %s must absorb %s", terminal.Event, m.Event)
		}
	}
}

func TestReduce_FailedRecordsServerMessage(t *testing.T) {
	s := NewState()
	s = Reduce(s, Message{Event: EventFailed, ErrorMessage: "ffmpeg exited 1"})

	assert.Equal(t, model.JobStateFailed, s.State)
	assert.Equal(t, "ffmpeg exited 1", s.Error)
}

func TestReduce_NonSemanticEventsAreIdentity(t *testing.T) {
	s := NewState()
	s = Reduce(s, Message{Event: EventJobStarted, TotalSteps: 4})
	s = Reduce(s, progressMsg(2, 4, 50, "Artist"))
	want := s

	for _, ev := range []EventType{EventHeartbeat, EventPong, EventCancelRequested, EventUnknown} {
		s = Reduce(s, Message{Event: ev})
		assert.Equal(t, want, s, "event %s must be identity", ev)
	}
}

// The worked sequence from the field: an out-of-order progress frame in
// the middle must not regress the display, and completion must pin the
// final outputs.
func TestReduce_OutOfOrderSequence(t *testing.T) {
	s := NewState()
	s = Reduce(s, Message{Event: EventJobStarted, TotalSteps: 3})
	s = Reduce(s, progressMsg(1, 3, 33, ""))
	s = Reduce(s, progressMsg(2, 3, 10, ""))
	require.Equal(t, float64(33), s.Percent)

	s = Reduce(s, progressMsg(3, 3, 100, ""))
	s = Reduce(s, Message{Event: EventCompleted, OutputPath: "/x.mp4"})

	assert.Equal(t, model.JobStateComplete, s.State)
	assert.Equal(t, 3, s.Step)
	assert.Equal(t, float64(100), s.Percent)
	assert.Equal(t, map[string]string{"default": "/x.mp4"}, s.Outputs)
}
