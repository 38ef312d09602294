package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"person-id-backend/internal/database"
	"person-id-backend/internal/ids"
	"person-id-backend/internal/messaging"
	"person-id-backend/internal/storage"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskProcessor runs queued training jobs one at a time. Stop cancels the job
// in progress, which also ends its wait on the remote training run. The
// interrupted job goes back to QUEUED and is picked up by RequeuePendingJobs
// on the next start.
type TaskProcessor struct {
	db        *gorm.DB
	blobs     storage.BlobStore
	trainer   *TrainingOrchestrator
	publisher messaging.Publisher
	reciever  messaging.Reciever
	urlTTL    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewTaskProcessor(db *gorm.DB, blobs storage.BlobStore, trainer *TrainingOrchestrator, publisher messaging.Publisher, reciever messaging.Reciever, urlTTL time.Duration) *TaskProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskProcessor{
		db:        db,
		blobs:     blobs,
		trainer:   trainer,
		publisher: publisher,
		reciever:  reciever,
		urlTTL:    urlTTL,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.cancel()
	proc.publisher.Close()
	proc.reciever.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	var err error
	switch task.Type() {

	case messaging.TrainingQueue:
		var payload messaging.TrainTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling training task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processTrainingTask(proc.ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) processTrainingTask(ctx context.Context, payload messaging.TrainTaskPayload) error {
	jobId := payload.JobId

	var job database.TrainingJob
	if err := proc.db.WithContext(ctx).First(&job, "id = ?", jobId).Error; err != nil {
		slog.Error("error fetching training job", "job_id", jobId, "error", err)
		return fmt.Errorf("error getting training job: %w", err)
	}

	if job.Status != database.JobQueued {
		slog.Info("training job is not queued, skipping", "job_id", jobId, "status", job.Status)
		return nil
	}

	if err := database.UpdateTrainingJobStatus(ctx, proc.db, jobId, database.JobRunning); err != nil {
		return fmt.Errorf("error marking training job as running: %w", err)
	}

	req, err := proc.buildTrainRequest(ctx, job)
	if err == nil {
		var result TrainResult
		if result, err = proc.trainer.Train(ctx, req); err == nil {
			if err := database.CompleteTrainingJob(ctx, proc.db, jobId, result.GroupId.UUID, result.AcceptedFaces); err != nil {
				return fmt.Errorf("error completing training job: %w", err)
			}
			slog.Info("training job completed", "job_id", jobId, "group_id", result.GroupId, "accepted_faces", result.AcceptedFaces)
			return nil
		}
	}

	if errors.Is(err, context.Canceled) && proc.ctx.Err() != nil {
		slog.Info("training job interrupted by shutdown, returning it to the queue", "job_id", jobId)
		if err := database.UpdateTrainingJobStatus(context.Background(), proc.db, jobId, database.JobQueued); err != nil {
			slog.Error("error returning interrupted training job to the queue", "job_id", jobId, "error", err)
		}
		return err
	}

	slog.Error("training job failed", "job_id", jobId, "error", err)
	// The job context may already be cancelled, the failure is recorded regardless.
	if err := database.FailTrainingJob(context.Background(), proc.db, jobId, err.Error()); err != nil {
		slog.Error("error recording training job failure", "job_id", jobId, "error", err)
	}
	return err
}

// buildTrainRequest resolves read urls for the job's images. Images that no
// longer exist are skipped.
func (proc *TaskProcessor) buildTrainRequest(ctx context.Context, job database.TrainingJob) (TrainRequest, error) {
	mode, err := ParseTrainMode(job.Mode)
	if err != nil {
		return TrainRequest{}, err
	}

	req := TrainRequest{
		Mode:       mode,
		GroupName:  job.GroupName,
		PersonName: job.PersonName,
	}
	if mode == ExtendGroup && job.GroupId.Valid {
		req.GroupId = ids.GroupId{UUID: job.GroupId.UUID}
	}

	for _, name := range database.SplitImages(job.Images) {
		url, err := proc.blobs.GetReadURL(ctx, name, proc.urlTTL)
		if err != nil {
			return TrainRequest{}, fmt.Errorf("error getting read url for %s: %w", name, err)
		}
		if url == "" {
			slog.Warn("training image no longer exists, skipping", "job_id", job.Id, "image", name)
			continue
		}
		req.SourceImages = append(req.SourceImages, SourceImage{Name: name, Url: url})
	}

	return req, nil
}

// RequeuePendingJobs publishes every job that has not finished. Jobs left
// running by a previous process are reset to queued first.
func (proc *TaskProcessor) RequeuePendingJobs(ctx context.Context) error {
	if err := proc.db.WithContext(ctx).
		Model(&database.TrainingJob{}).
		Where("status = ?", database.JobRunning).
		Update("status", database.JobQueued).Error; err != nil {
		return fmt.Errorf("error resetting interrupted training jobs: %w", err)
	}

	var jobs []database.TrainingJob
	if err := proc.db.WithContext(ctx).
		Where("status = ?", database.JobQueued).
		Order("creation_time").
		Find(&jobs).Error; err != nil {
		return fmt.Errorf("error listing queued training jobs: %w", err)
	}

	var errs []error
	for _, job := range jobs {
		if err := proc.publisher.PublishTrainTask(ctx, messaging.TrainTaskPayload{JobId: job.Id}); err != nil {
			errs = append(errs, fmt.Errorf("error requeueing training job %s: %w", job.Id, err))
		}
	}

	slog.Info("requeued pending training jobs", "jobs", len(jobs))
	return errors.Join(errs...)
}

// EnqueueTrainingJob stores a training job and publishes it.
func EnqueueTrainingJob(ctx context.Context, db *gorm.DB, publisher messaging.Publisher, job database.TrainingJob) (uuid.UUID, error) {
	job.Id = uuid.New()
	job.Status = database.JobQueued
	job.CreationTime = time.Now().UTC()

	if err := db.WithContext(ctx).Create(&job).Error; err != nil {
		slog.Error("error creating training job", "error", err)
		return uuid.Nil, fmt.Errorf("%w: error creating training job: %w", ErrPersistence, err)
	}

	if err := publisher.PublishTrainTask(ctx, messaging.TrainTaskPayload{JobId: job.Id}); err != nil {
		slog.Error("error publishing training task", "job_id", job.Id, "error", err)
		if err := database.FailTrainingJob(ctx, db, job.Id, "unable to queue training job"); err != nil {
			slog.Error("error marking unqueued training job as failed", "job_id", job.Id, "error", err)
		}
		return uuid.Nil, fmt.Errorf("error queueing training job: %w", err)
	}

	slog.Info("queued training job", "job_id", job.Id, "mode", job.Mode)
	return job.Id, nil
}
