package model

import "encoding/json"

// WebSocket frame types sent by the server
const (
	WSTypeState           = "state"
	WSTypeProgress        = "progress"
	WSTypeStepProgress    = "step_progress"
	WSTypeJobStarted      = "job_started"
	WSTypeComplete        = "complete"
	WSTypeError           = "error"
	WSTypeCancelled       = "cancelled"
	WSTypeHeartbeat       = "heartbeat"
	WSTypePong            = "pong"
	WSTypeCancelRequested = "cancel_requested"
)

// WebSocket frame types sent by the client
const (
	WSTypePing   = "ping"
	WSTypeCancel = "cancel"
)

// WSFrame is the envelope for every frame on the progress channel.
// Timestamp is an ISO-8601 string; Data is the type-specific payload.
type WSFrame struct {
	Type      string          `json:"type"`
	JobID     string          `json:"job_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// WSStateData is the payload of "state" and "progress" frames.
type WSStateData struct {
	State    JobState        `json:"state,omitempty"`
	Progress *RenderProgress `json:"progress,omitempty"`
}

// WSStartedData is the payload of "job_started" frames.
type WSStartedData struct {
	TotalSteps  int    `json:"total_steps"`
	ProjectName string `json:"project_name,omitempty"`
}

// WSCompleteData is the payload of "complete" frames.
type WSCompleteData struct {
	OutputPath     string            `json:"output_path"`
	VariantPaths   map[string]string `json:"variant_paths,omitempty"`
	ElapsedSeconds float64           `json:"elapsed_seconds,omitempty"`
}

// WSErrorData is the payload of "error" frames.
type WSErrorData struct {
	Message string `json:"message"`
}
