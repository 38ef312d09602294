package core_test

import (
	"context"
	"person-id-backend/internal/core"
	"person-id-backend/internal/database"
	"person-id-backend/internal/faceapi"
	"person-id-backend/internal/messaging"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTask struct {
	queue   string
	payload []byte

	acked, nacked, rejected bool
}

func (t *recordingTask) Type() string    { return t.queue }
func (t *recordingTask) Payload() []byte { return t.payload }
func (t *recordingTask) Ack() error      { t.acked = true; return nil }
func (t *recordingTask) Nack() error     { t.nacked = true; return nil }
func (t *recordingTask) Reject() error   { t.rejected = true; return nil }

type processorEnv struct {
	*trainingEnv
	queue     *messaging.InMemoryQueue
	processor *core.TaskProcessor
}

func newProcessorEnv(t *testing.T, create ...any) *processorEnv {
	env := newTrainingEnv(t, create...)
	queue := messaging.NewInMemoryQueue()
	processor := core.NewTaskProcessor(env.db, env.blobs, env.trainer, queue, queue, time.Hour)
	t.Cleanup(processor.Stop)

	return &processorEnv{trainingEnv: env, queue: queue, processor: processor}
}

func (env *processorEnv) nextTask(t *testing.T) messaging.Task {
	select {
	case task := <-env.queue.Tasks():
		return task
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task")
		return nil
	}
}

func (env *processorEnv) job(t *testing.T, jobId uuid.UUID) database.TrainingJob {
	var job database.TrainingJob
	require.NoError(t, env.db.First(&job, "id = ?", jobId).Error)
	return job
}

func TestProcessTrainingJob(t *testing.T) {
	env := newProcessorEnv(t)
	env.faces.detect("face-one", faceapi.QualityHigh)
	env.faces.detect("face-two", faceapi.QualityHigh)
	env.sources(t, map[string]string{"a.jpg": "face-one", "b.jpg": "face-two"})

	jobId, err := core.EnqueueTrainingJob(context.Background(), env.db, env.queue, database.TrainingJob{
		GroupName:  "G",
		PersonName: "alice",
		Mode:       database.ModeCreateGroup,
		Images:     "a.jpg,b.jpg,deleted.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, database.JobQueued, env.job(t, jobId).Status)

	env.processor.ProcessTask(env.nextTask(t))

	job := env.job(t, jobId)
	assert.Equal(t, database.JobSucceeded, job.Status)
	assert.True(t, job.GroupId.Valid)
	assert.Equal(t, 2, job.AcceptedFaces)
	assert.True(t, job.CompletionTime.Valid)

	var group database.PersonGroup
	require.NoError(t, env.db.First(&group, "id = ?", job.GroupId.UUID).Error)
	assert.True(t, group.IsTrained)
}

func TestProcessFailedTrainingJob(t *testing.T) {
	env := newProcessorEnv(t)
	env.faces.detect("face", faceapi.QualityHigh)
	env.faces.statuses = []faceapi.TrainingStatus{{Status: faceapi.TrainingFailed, Message: "model error"}}
	env.sources(t, map[string]string{"a.jpg": "face"})

	jobId, err := core.EnqueueTrainingJob(context.Background(), env.db, env.queue, database.TrainingJob{
		GroupName:  "G",
		PersonName: "alice",
		Mode:       database.ModeCreateGroup,
		Images:     "a.jpg",
	})
	require.NoError(t, err)

	task := &recordingTask{}
	queued := env.nextTask(t)
	task.queue, task.payload = queued.Type(), queued.Payload()

	env.processor.ProcessTask(task)
	assert.True(t, task.nacked)
	assert.False(t, task.acked)

	job := env.job(t, jobId)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Contains(t, job.Error, "model error")
	assert.False(t, job.GroupId.Valid)
}

func TestProcessSkipsFinishedJobs(t *testing.T) {
	jobId := uuid.New()
	env := newProcessorEnv(t, &database.TrainingJob{Id: jobId, Mode: database.ModeCreateGroup, Status: database.JobSucceeded, CreationTime: time.Now().UTC()})

	task := &recordingTask{queue: messaging.TrainingQueue, payload: []byte(`{"JobId":"` + jobId.String() + `"}`)}
	env.processor.ProcessTask(task)

	assert.True(t, task.acked)
	assert.Equal(t, database.JobSucceeded, env.job(t, jobId).Status)
	assert.Zero(t, env.faces.trainCalls)
}

func TestProcessRejectsBadTasks(t *testing.T) {
	env := newProcessorEnv(t)

	malformed := &recordingTask{queue: messaging.TrainingQueue, payload: []byte("{")}
	env.processor.ProcessTask(malformed)
	assert.True(t, malformed.rejected)

	unknown := &recordingTask{queue: "inference_queue", payload: []byte("{}")}
	env.processor.ProcessTask(unknown)
	assert.True(t, unknown.rejected)

	missing := &recordingTask{queue: messaging.TrainingQueue, payload: []byte(`{"JobId":"` + uuid.NewString() + `"}`)}
	env.processor.ProcessTask(missing)
	assert.True(t, missing.nacked)
}

func TestRequeuePendingJobs(t *testing.T) {
	now := time.Now().UTC()
	queued := database.TrainingJob{Id: uuid.New(), Mode: database.ModeCreateGroup, Status: database.JobQueued, CreationTime: now}
	running := database.TrainingJob{Id: uuid.New(), Mode: database.ModeCreateGroup, Status: database.JobRunning, CreationTime: now.Add(time.Second)}
	done := database.TrainingJob{Id: uuid.New(), Mode: database.ModeCreateGroup, Status: database.JobFailed, CreationTime: now}

	env := newProcessorEnv(t, &queued, &running, &done)

	require.NoError(t, env.processor.RequeuePendingJobs(context.Background()))
	assert.Equal(t, database.JobQueued, env.job(t, running.Id).Status)
	assert.Equal(t, database.JobFailed, env.job(t, done.Id).Status)

	var requeued []string
	for range 2 {
		requeued = append(requeued, string(env.nextTask(t).Payload()))
	}
	assert.Equal(t, []string{`{"JobId":"` + queued.Id.String() + `"}`, `{"JobId":"` + running.Id.String() + `"}`}, requeued)
}

func TestStopReturnsInterruptedJobToQueue(t *testing.T) {
	env := newProcessorEnv(t)
	env.faces.detect("face", faceapi.QualityHigh)
	env.faces.statuses = statuses(faceapi.TrainingRunning)
	env.sources(t, map[string]string{"a.jpg": "face"})

	cfg := testPipelineConfig()
	cfg.PollInterval = time.Hour
	trainer := core.NewTrainingOrchestrator(env.faces, env.blobs, database.NewCoordinator(env.db), cfg)
	processor := core.NewTaskProcessor(env.db, env.blobs, trainer, env.queue, env.queue, time.Hour)

	jobId, err := core.EnqueueTrainingJob(context.Background(), env.db, env.queue, database.TrainingJob{
		GroupName:  "G",
		PersonName: "alice",
		Mode:       database.ModeCreateGroup,
		Images:     "a.jpg",
	})
	require.NoError(t, err)

	queued := env.nextTask(t)
	task := &recordingTask{queue: queued.Type(), payload: queued.Payload()}

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.ProcessTask(task)
	}()

	require.Eventually(t, func() bool { return env.faces.trainCount() == 1 }, time.Second, 5*time.Millisecond)
	processor.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("training job did not stop")
	}

	assert.True(t, task.nacked)
	job := env.job(t, jobId)
	assert.Equal(t, database.JobQueued, job.Status)
	assert.Empty(t, job.Error)
	assert.False(t, job.CompletionTime.Valid)

	restartQueue := messaging.NewInMemoryQueue()
	restarted := core.NewTaskProcessor(env.db, env.blobs, env.trainer, restartQueue, restartQueue, time.Hour)
	t.Cleanup(restarted.Stop)

	require.NoError(t, restarted.RequeuePendingJobs(context.Background()))
	select {
	case task := <-restartQueue.Tasks():
		assert.Equal(t, `{"JobId":"`+jobId.String()+`"}`, string(task.Payload()))
	case <-time.After(time.Second):
		t.Fatal("interrupted job was not requeued")
	}
}
