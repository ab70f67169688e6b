package progress

import "github.com/morphreel/api/internal/model"

// ConnState is the state of the progress channel connection. It is an
// axis independent of the job state: a disconnected channel does not
// invalidate the last known job progress, and a terminal job may still
// have a connected channel until the server closes it.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnError        ConnState = "error"
)

// State is the externally visible render progress aggregate. It is only
// ever produced by folding decoded messages through Reduce.
type State struct {
	State                     model.JobState
	Step                      int
	TotalSteps                int
	Percent                   float64
	Phase                     model.RenderPhase
	Message                   string
	CurrentSubject            string
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64

	// Outputs is populated exactly once, by the message that first
	// transitions the job to complete. Key "default" is the main output.
	Outputs map[string]string

	// Error holds the server-supplied failure message for failed jobs.
	Error string
}

// NewState returns the initial state for a freshly tracked job.
func NewState() State {
	return State{State: model.JobStatePending}
}
