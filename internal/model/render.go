package model

import "time"

// Subject is one stop in the morph sequence.
type Subject struct {
	ID           string `json:"id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	VisualPrompt string `json:"visualPrompt" validate:"required"`
}

// RenderSettings holds generation settings for a render.
type RenderSettings struct {
	AspectRatio           AspectRatio   `json:"aspectRatio" validate:"omitempty,oneof=9:16 16:9 1:1"`
	TransitionDurationSec int           `json:"transitionDurationSec" validate:"omitempty,min=2,max=10"`
	ImageModel            string        `json:"imageModel"`
	VideoModel            string        `json:"videoModel"`
	Variants              []AspectRatio `json:"variants" validate:"omitempty,dive,oneof=9:16 16:9 1:1"`
}

// GlobalScene describes the shared scene applied to every subject.
type GlobalScene struct {
	LocationPrompt string `json:"locationPrompt" validate:"required"`
	NegativePrompt string `json:"negativePrompt"`
}

// AudioSettings configures the optional audio track.
type AudioSettings struct {
	Enabled    bool    `json:"enabled"`
	AudioPath  string  `json:"audioPath"`
	Volume     float64 `json:"volume" validate:"omitempty,min=0,max=1"`
	FadeInSec  float64 `json:"fadeInSec" validate:"omitempty,min=0"`
	FadeOutSec float64 `json:"fadeOutSec" validate:"omitempty,min=0"`
	Loop       bool    `json:"loop"`
}

// RenderStartRequest represents the request to start a render job
type RenderStartRequest struct {
	ProjectName string         `json:"projectName" validate:"required,min=1"`
	Settings    RenderSettings `json:"settings"`
	GlobalScene GlobalScene    `json:"globalScene" validate:"required"`
	Sequence    []Subject      `json:"sequence" validate:"required,min=2,dive"`
	Audio       *AudioSettings `json:"audio" validate:"omitempty"`
}

// RenderStartResponse represents the response when starting a render
type RenderStartResponse struct {
	JobID        string    `json:"jobId"`
	Message      string    `json:"message"`
	State        JobState  `json:"state"`
	WebSocketURL string    `json:"websocketUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RenderProgress is a real-time progress snapshot for a running job.
// Field names follow the wire format emitted over the WebSocket channel.
type RenderProgress struct {
	Step                      int         `json:"step"`
	TotalSteps                int         `json:"total_steps"`
	Phase                     RenderPhase `json:"phase"`
	Message                   string      `json:"message"`
	ProgressPercent           float64     `json:"progress_percent"`
	CurrentSubject            string      `json:"current_subject,omitempty"`
	ElapsedSeconds            float64     `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *float64    `json:"estimated_remaining_seconds,omitempty"`
}

// RenderStatusResponse represents the status of a render job
type RenderStatusResponse struct {
	JobID        string            `json:"jobId"`
	ProjectName  string            `json:"projectName"`
	State        JobState          `json:"state"`
	Progress     *RenderProgress   `json:"progress,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	OutputPath   string            `json:"outputPath,omitempty"`
	VariantPaths map[string]string `json:"variantPaths,omitempty"`
	Error        *string           `json:"error,omitempty"`
}

// RenderListItem is a summary entry in the render list.
type RenderListItem struct {
	JobID           string     `json:"jobId"`
	ProjectName     string     `json:"projectName"`
	State           JobState   `json:"state"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	OutputPath      string     `json:"outputPath,omitempty"`
	SubjectsCount   int        `json:"subjectsCount"`
	ProgressPercent float64    `json:"progressPercent"`
}

// RenderListResponse wraps the render list.
type RenderListResponse struct {
	Renders []RenderListItem `json:"renders"`
	Total   int              `json:"total"`
}

// RenderCancelResponse represents the response when canceling a render
type RenderCancelResponse struct {
	Success bool     `json:"success"`
	JobID   string   `json:"jobId"`
	State   JobState `json:"state"`
}
