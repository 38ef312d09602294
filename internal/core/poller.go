package core

import (
	"context"
	"errors"
	"log/slog"
	"person-id-backend/internal/config"
	"person-id-backend/internal/faceapi"
	"person-id-backend/internal/ids"
	"person-id-backend/internal/observability"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errTrainingPending = errors.New("training has not reached a terminal state")

// TrainingPoller waits for a remote training run to finish. The wait is
// bounded by MaxPollAttempts and stops as soon as the context is done.
type TrainingPoller struct {
	faces FaceService
	cfg   config.PipelineConfig
}

func NewTrainingPoller(faces FaceService, cfg config.PipelineConfig) *TrainingPoller {
	return &TrainingPoller{faces: faces, cfg: cfg}
}

func (p *TrainingPoller) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.PollInterval
	b.MaxInterval = max(p.cfg.PollMaxInterval, p.cfg.PollInterval)
	b.Multiplier = 1.5
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	retries := uint64(0)
	if p.cfg.MaxPollAttempts > 0 {
		retries = p.cfg.MaxPollAttempts - 1
	}

	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

// Wait returns the first terminal status reported for the group. Errors from
// the face service end the wait immediately.
func (p *TrainingPoller) Wait(ctx context.Context, groupId ids.GroupId) (faceapi.TrainingStatus, error) {
	start := time.Now()

	var (
		attempts uint64
		last     faceapi.TrainingStatus
	)

	checkStatus := func() error {
		attempts++

		status, err := p.faces.GetTrainingStatus(ctx, groupId)
		if err != nil {
			return backoff.Permanent(err)
		}

		if status.Status != last.Status {
			slog.Info("training status changed", "group_id", groupId, "status", status.Status, "attempt", attempts)
		}
		last = status

		if !status.Status.IsTerminal() {
			return errTrainingPending
		}
		return nil
	}

	err := backoff.Retry(checkStatus, p.newBackOff(ctx))
	observability.TrainingDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return last, nil
	case ctx.Err() != nil:
		slog.Warn("stopped waiting for training", "group_id", groupId, "attempts", attempts, "error", ctx.Err())
		return last, ctx.Err()
	case errors.Is(err, errTrainingPending):
		slog.Error("training did not finish in time", "group_id", groupId, "attempts", attempts, "last_status", last.Status)
		return last, &TrainingTimeoutError{GroupId: groupId, Attempts: attempts}
	default:
		slog.Error("error checking training status", "group_id", groupId, "error", err)
		return last, err
	}
}
