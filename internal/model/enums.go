package model

// JobState is the lifecycle state of a render job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateComplete  JobState = "complete"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

var ValidJobStates = []JobState{
	JobStatePending, JobStateRunning, JobStateComplete,
	JobStateFailed, JobStateCancelled,
}

// Terminal reports whether no further state transitions are possible.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateComplete, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// Render pipeline phases, in execution order.
type RenderPhase string

const (
	PhaseImageGeneration RenderPhase = "image_generation"
	PhaseVideoGeneration RenderPhase = "video_generation"
	PhaseConcatenation   RenderPhase = "concatenation"
	PhaseAudio           RenderPhase = "audio"
	PhaseVariants        RenderPhase = "variants"
)

var ValidPhases = []RenderPhase{
	PhaseImageGeneration, PhaseVideoGeneration, PhaseConcatenation,
	PhaseAudio, PhaseVariants,
}

// Output aspect ratios
type AspectRatio string

const (
	AspectPortrait  AspectRatio = "9:16"
	AspectLandscape AspectRatio = "16:9"
	AspectSquare    AspectRatio = "1:1"
)

var ValidAspectRatios = []AspectRatio{
	AspectPortrait, AspectLandscape, AspectSquare,
}
