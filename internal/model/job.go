package model

import "time"

// Job is the server-side record of a render job.
type Job struct {
	ID              string            `json:"id"`
	ProjectName     string            `json:"projectName"`
	State           JobState          `json:"state"`
	Progress        *RenderProgress   `json:"progress,omitempty"`
	Config          RenderStartRequest `json:"config"`
	CreatedAt       time.Time         `json:"createdAt"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	OutputPath      string            `json:"outputPath,omitempty"`
	VariantPaths    map[string]string `json:"variantPaths,omitempty"`
	Error           *string           `json:"error,omitempty"`
	CancelRequested bool              `json:"cancelRequested"`
}

// ToStatus converts the job record into its API status representation.
func (j *Job) ToStatus() *RenderStatusResponse {
	return &RenderStatusResponse{
		JobID:        j.ID,
		ProjectName:  j.ProjectName,
		State:        j.State,
		Progress:     j.Progress,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		OutputPath:   j.OutputPath,
		VariantPaths: j.VariantPaths,
		Error:        j.Error,
	}
}

// ToListItem converts the job record into its list representation.
func (j *Job) ToListItem() RenderListItem {
	var percent float64
	if j.Progress != nil {
		percent = j.Progress.ProgressPercent
	}
	if j.State == JobStateComplete {
		percent = 100
	}
	return RenderListItem{
		JobID:           j.ID,
		ProjectName:     j.ProjectName,
		State:           j.State,
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
		OutputPath:      j.OutputPath,
		SubjectsCount:   len(j.Config.Sequence),
		ProgressPercent: percent,
	}
}

// RenderJobPayload is the task payload enqueued for the render worker.
type RenderJobPayload struct {
	JobID  string             `json:"jobId"`
	Config RenderStartRequest `json:"config"`
}
