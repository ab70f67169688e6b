package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/morphreel/api/internal/model"
	"github.com/morphreel/api/internal/service"
	"github.com/morphreel/api/internal/websocket"
)

// RenderWorker processes render jobs: it walks the morph pipeline
// phases, persists progress and streams it to channel subscribers, and
// honors cancel-requested marks between steps.
type RenderWorker struct {
	renderService *service.RenderService
	hub           *websocket.Hub
	logger        *zap.Logger

	// StepDelay throttles simulated pipeline steps; tests set it to zero.
	StepDelay time.Duration
}

// NewRenderWorker creates a new render worker
func NewRenderWorker(renderService *service.RenderService, hub *websocket.Hub, logger *zap.Logger) *RenderWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderWorker{
		renderService: renderService,
		hub:           hub,
		logger:        logger,
		StepDelay:     2 * time.Second,
	}
}

type pipelineStep struct {
	phase   model.RenderPhase
	subject string
	message string
}

// ProcessTask handles one queued render job.
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.RenderJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal render payload: %w", err)
	}
	jobID := payload.JobID
	w.logger.Info("starting render job", zap.String("job_id", jobID))

	job, err := w.renderService.MarkRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if job.State == model.JobStateCancelled {
		// cancelled while still queued
		return nil
	}

	steps := buildPipeline(&payload.Config)
	w.hub.BroadcastStarted(jobID, len(steps), payload.Config.ProjectName)

	started := time.Now()
	for i, step := range steps {
		cancelled, err := w.cancelRequested(ctx, jobID)
		if err != nil {
			w.logger.Warn("cancel check failed", zap.String("job_id", jobID), zap.Error(err))
		}
		if cancelled {
			if err := w.renderService.MarkCancelled(ctx, jobID); err != nil {
				return err
			}
			w.hub.BroadcastCancelled(jobID)
			w.logger.Info("render job cancelled", zap.String("job_id", jobID))
			return nil
		}

		elapsed := time.Since(started).Seconds()
		remaining := estimateRemaining(elapsed, i, len(steps))
		progress := &model.RenderProgress{
			Step:                      i + 1,
			TotalSteps:                len(steps),
			Phase:                     step.phase,
			Message:                   step.message,
			ProgressPercent:           float64(i+1) / float64(len(steps)) * 100,
			CurrentSubject:            step.subject,
			ElapsedSeconds:            elapsed,
			EstimatedRemainingSeconds: remaining,
		}

		if err := w.renderService.UpdateJobProgress(ctx, jobID, progress); err != nil {
			w.logger.Warn("failed to persist progress",
				zap.String("job_id", jobID), zap.Error(err))
		}
		w.hub.BroadcastProgress(jobID, progress)

		select {
		case <-ctx.Done():
			if err := w.renderService.MarkCancelled(ctx, jobID); err == nil {
				w.hub.BroadcastCancelled(jobID)
			}
			return ctx.Err()
		case <-time.After(w.StepDelay):
		}
	}

	outputPath, variantPaths := outputPaths(jobID, &payload.Config)
	if err := w.renderService.CompleteJob(ctx, jobID, outputPath, variantPaths); err != nil {
		w.failJob(ctx, jobID, "Failed to save result")
		return err
	}
	w.hub.BroadcastComplete(jobID, outputPath, variantPaths, time.Since(started).Seconds())

	w.logger.Info("render job completed",
		zap.String("job_id", jobID), zap.String("output", outputPath))
	return nil
}

func (w *RenderWorker) cancelRequested(ctx context.Context, jobID string) (bool, error) {
	job, err := w.renderService.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.CancelRequested || job.State == model.JobStateCancelled, nil
}

func (w *RenderWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.renderService.FailJob(ctx, jobID, errMsg); err != nil {
		w.logger.Error("failed to mark job as failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
	w.hub.BroadcastError(jobID, errMsg)
}

// buildPipeline expands a render config into the ordered pipeline steps:
// one image per subject, one morph per transition, concatenation, the
// optional audio pass and one encode per variant.
func buildPipeline(cfg *model.RenderStartRequest) []pipelineStep {
	var steps []pipelineStep

	for _, subject := range cfg.Sequence {
		steps = append(steps, pipelineStep{
			phase:   model.PhaseImageGeneration,
			subject: subject.Name,
			message: fmt.Sprintf("Generating image: %s", subject.Name),
		})
	}
	for i := 1; i < len(cfg.Sequence); i++ {
		from, to := cfg.Sequence[i-1], cfg.Sequence[i]
		steps = append(steps, pipelineStep{
			phase:   model.PhaseVideoGeneration,
			subject: to.Name,
			message: fmt.Sprintf("Creating morph: %s -> %s", from.Name, to.Name),
		})
	}
	steps = append(steps, pipelineStep{
		phase:   model.PhaseConcatenation,
		message: "Concatenating transitions",
	})
	if cfg.Audio != nil && cfg.Audio.Enabled {
		steps = append(steps, pipelineStep{
			phase:   model.PhaseAudio,
			message: "Adding audio track",
		})
	}
	for _, variant := range cfg.Settings.Variants {
		steps = append(steps, pipelineStep{
			phase:   model.PhaseVariants,
			message: fmt.Sprintf("Encoding %s variant", variant),
		})
	}
	return steps
}

func outputPaths(jobID string, cfg *model.RenderStartRequest) (string, map[string]string) {
	base := fmt.Sprintf("renders/%s/%s", cfg.ProjectName, jobID)
	outputPath := base + "/final.mp4"
	variantPaths := make(map[string]string, len(cfg.Settings.Variants))
	for _, variant := range cfg.Settings.Variants {
		variantPaths[string(variant)] = fmt.Sprintf("%s/final_%s.mp4", base, variantSuffix(variant))
	}
	return outputPath, variantPaths
}

func variantSuffix(v model.AspectRatio) string {
	switch v {
	case model.AspectPortrait:
		return "9x16"
	case model.AspectLandscape:
		return "16x9"
	case model.AspectSquare:
		return "1x1"
	}
	return string(v)
}

func estimateRemaining(elapsed float64, stepIndex, totalSteps int) *float64 {
	if stepIndex == 0 || elapsed <= 0 {
		return nil
	}
	perStep := elapsed / float64(stepIndex)
	remaining := perStep * float64(totalSteps-stepIndex)
	return &remaining
}
