package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphreel/api/internal/model"
)

func renderConfig() *model.RenderStartRequest {
	return &model.RenderStartRequest{
		ProjectName: "city-morph",
		GlobalScene: model.GlobalScene{LocationPrompt: "a rainy alley"},
		Sequence: []model.Subject{
			{ID: "a", Name: "Tourist", VisualPrompt: "a tourist"},
			{ID: "b", Name: "Artist", VisualPrompt: "an artist"},
			{ID: "c", Name: "Chef", VisualPrompt: "a chef"},
		},
	}
}

func TestBuildPipeline_BaseSteps(t *testing.T) {
	cfg := renderConfig()

	steps := buildPipeline(cfg)

	// 3 images + 2 morphs + concatenation
	require.Len(t, steps, 6)
	assert.Equal(t, model.PhaseImageGeneration, steps[0].phase)
	assert.Equal(t, "Tourist", steps[0].subject)
	assert.Equal(t, model.PhaseVideoGeneration, steps[3].phase)
	assert.Equal(t, "Creating morph: Tourist -> Artist", steps[3].message)
	assert.Equal(t, model.PhaseConcatenation, steps[5].phase)
}

func TestBuildPipeline_AudioAndVariants(t *testing.T) {
	cfg := renderConfig()
	cfg.Audio = &model.AudioSettings{Enabled: true, AudioPath: "tracks/beat.mp3"}
	cfg.Settings.Variants = []model.AspectRatio{model.AspectPortrait, model.AspectSquare}

	steps := buildPipeline(cfg)

	// 6 base steps + audio + 2 variant encodes
	require.Len(t, steps, 9)
	assert.Equal(t, model.PhaseAudio, steps[6].phase)
	assert.Equal(t, model.PhaseVariants, steps[7].phase)
	assert.Equal(t, "Encoding 9:16 variant", steps[7].message)
	assert.Equal(t, "Encoding 1:1 variant", steps[8].message)
}

func TestBuildPipeline_DisabledAudioAddsNoStep(t *testing.T) {
	cfg := renderConfig()
	cfg.Audio = &model.AudioSettings{Enabled: false, AudioPath: "tracks/beat.mp3"}

	steps := buildPipeline(cfg)
	for _, step := range steps {
		assert.NotEqual(t, model.PhaseAudio, step.phase)
	}
}

func TestOutputPaths(t *testing.T) {
	cfg := renderConfig()
	cfg.Settings.Variants = []model.AspectRatio{model.AspectLandscape}

	outputPath, variantPaths := outputPaths("job-7", cfg)

	assert.Equal(t, "renders/city-morph/job-7/final.mp4", outputPath)
	require.Len(t, variantPaths, 1)
	assert.Equal(t, "renders/city-morph/job-7/final_16x9.mp4", variantPaths["16:9"])
}

func TestEstimateRemaining(t *testing.T) {
	// no estimate before the first step has finished
	assert.Nil(t, estimateRemaining(0, 0, 10))
	assert.Nil(t, estimateRemaining(5, 0, 10))

	// 4 steps done in 8s -> 2s per step, 6 steps left
	got := estimateRemaining(8, 4, 10)
	require.NotNil(t, got)
	assert.InDelta(t, 12.0, *got, 0.001)
}
