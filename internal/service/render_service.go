package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/morphreel/api/internal/model"
)

const (
	TaskTypeRender = "render:process"

	jobKeyPrefix = "job:"
	jobIndexKey  = "jobs:index"
	jobTTL       = 24 * time.Hour
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when an operation is not valid for a job
	// that already reached complete or failed.
	ErrJobFinished = errors.New("job already finished")
)

// ProgressNotifier pushes job lifecycle frames to channel subscribers.
// Wired after construction to break the hub/service dependency loop.
type ProgressNotifier interface {
	BroadcastCancelled(jobID string)
}

// RenderService handles render job management
type RenderService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	notifier    ProgressNotifier
	logger      *zap.Logger
}

func NewRenderService(redisClient *redis.Client, asynqClient *asynq.Client, logger *zap.Logger) *RenderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderService{
		redis:       redisClient,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

// SetNotifier attaches the progress channel notifier.
func (s *RenderService) SetNotifier(n ProgressNotifier) { s.notifier = n }

// StartRender creates a job record and queues it for processing.
func (s *RenderService) StartRender(ctx context.Context, req *model.RenderStartRequest, wsURL func(jobID string) string) (*model.RenderStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now().UTC()

	job := &model.Job{
		ID:          jobID,
		ProjectName: req.ProjectName,
		State:       model.JobStatePending,
		Config:      *req,
		CreatedAt:   now,
	}

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	if err := s.redis.SAdd(ctx, jobIndexKey, jobID).Err(); err != nil {
		return nil, fmt.Errorf("failed to index job: %w", err)
	}

	payload, err := json.Marshal(model.RenderJobPayload{JobID: jobID, Config: *req})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.asynqClient.Enqueue(asynq.NewTask(TaskTypeRender, payload),
		asynq.Queue("render"),
		asynq.MaxRetry(0),
		asynq.Retention(jobTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("render job queued",
		zap.String("job_id", jobID), zap.String("project", req.ProjectName))

	return &model.RenderStartResponse{
		JobID:        jobID,
		Message:      fmt.Sprintf("Render job queued for project %q", req.ProjectName),
		State:        model.JobStatePending,
		WebSocketURL: wsURL(jobID),
		CreatedAt:    now,
	}, nil
}

// GetStatus returns the current status of a render job
func (s *RenderService) GetStatus(ctx context.Context, jobID string) (*model.RenderStatusResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job.ToStatus(), nil
}

// ListRenders returns all known jobs, newest first.
func (s *RenderService) ListRenders(ctx context.Context) (*model.RenderListResponse, error) {
	ids, err := s.redis.SMembers(ctx, jobIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	items := make([]model.RenderListItem, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				// record expired; drop it from the index
				s.redis.SRem(ctx, jobIndexKey, id)
				continue
			}
			return nil, err
		}
		items = append(items, job.ToListItem())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return &model.RenderListResponse{Renders: items, Total: len(items)}, nil
}

// CancelJob requests cancellation. Pending jobs move to cancelled
// immediately; running jobs get a cancel-requested mark the worker
// observes between steps; an already cancelled job is a successful
// no-op; complete and failed jobs cannot be cancelled.
func (s *RenderService) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.State {
	case model.JobStateCancelled:
		return nil
	case model.JobStateComplete, model.JobStateFailed:
		return ErrJobFinished
	}

	job.CancelRequested = true
	if job.State == model.JobStatePending {
		job.State = model.JobStateCancelled
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}

	if job.State == model.JobStateCancelled && s.notifier != nil {
		s.notifier.BroadcastCancelled(jobID)
	}

	s.logger.Info("cancellation requested",
		zap.String("job_id", jobID), zap.String("state", string(job.State)))
	return nil
}

// DeleteJob removes a job record. Running jobs must be cancelled first.
func (s *RenderService) DeleteJob(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State == model.JobStateRunning {
		return ErrJobFinished
	}

	if err := s.redis.Del(ctx, jobKeyPrefix+jobID).Err(); err != nil {
		return err
	}
	return s.redis.SRem(ctx, jobIndexKey, jobID).Err()
}

// MarkRunning transitions a pending job to running (called by worker).
func (s *RenderService) MarkRunning(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != model.JobStatePending {
		return job, nil
	}
	job.State = model.JobStateRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	return job, s.saveJob(ctx, job)
}

// UpdateJobProgress persists a progress snapshot (called by worker).
func (s *RenderService) UpdateJobProgress(ctx context.Context, jobID string, p *model.RenderProgress) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Progress = p
	return s.saveJob(ctx, job)
}

// CompleteJob marks the job complete with its outputs (called by worker).
func (s *RenderService) CompleteJob(ctx context.Context, jobID, outputPath string, variantPaths map[string]string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.State = model.JobStateComplete
	job.OutputPath = outputPath
	job.VariantPaths = variantPaths
	now := time.Now().UTC()
	job.CompletedAt = &now
	if job.Progress != nil {
		job.Progress.ProgressPercent = 100
	}
	return s.saveJob(ctx, job)
}

// FailJob marks the job failed (called by worker).
func (s *RenderService) FailJob(ctx context.Context, jobID, errMsg string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.State = model.JobStateFailed
	job.Error = &errMsg
	now := time.Now().UTC()
	job.CompletedAt = &now
	return s.saveJob(ctx, job)
}

// MarkCancelled finalizes a running job the worker stopped (called by worker).
func (s *RenderService) MarkCancelled(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return nil
	}
	job.State = model.JobStateCancelled
	now := time.Now().UTC()
	job.CompletedAt = &now
	return s.saveJob(ctx, job)
}

// GetJob loads a job record.
func (s *RenderService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *RenderService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL).Err()
}
