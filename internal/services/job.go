package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/db/repos"
	"github.com/labmate/labmate/internal/events"
	"github.com/labmate/labmate/internal/logger"
	"github.com/labmate/labmate/internal/sandbox"
	"github.com/labmate/labmate/internal/storage"
	"github.com/labmate/labmate/internal/types"
)

// Job executes the extracted tasks of a document
type Job struct {
	jobs   *repos.JobRepository
	runner sandbox.Runner
	store  storage.Store
}

// NewJobService creates a new job service instance
func NewJobService(jobs *repos.JobRepository, runner sandbox.Runner, store storage.Store) *Job {
	return &Job{jobs: jobs, runner: runner, store: store}
}

// Get retrieves a job by ID
func (s *Job) Get(ctx context.Context, id uint) (*models.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListByUpload retrieves the latest attempt of every job of an upload
func (s *Job) ListByUpload(ctx context.Context, uploadID uint) ([]models.Job, error) {
	return s.jobs.ListByUpload(ctx, uploadID)
}

// RunUpload executes every pending job with code, one after another in task
// index order. A failed job does not stop the others.
func (s *Job) RunUpload(ctx context.Context, uploadID uint) ([]models.Job, error) {
	jobs, err := s.jobs.ListByUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].Status != models.StatusPending || !jobs[i].Executable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return jobs, err
		}
		if err := s.execute(ctx, &jobs[i]); err != nil {
			logger.WarnWithFields("job skipped", map[string]interface{}{
				"upload_id": uploadID,
				"job_id":    jobs[i].ID,
				"error":     err.Error(),
			})
		}
	}
	return jobs, nil
}

// Run executes a single pending job
func (s *Job) Run(ctx context.Context, id uint) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Rerun records a new attempt of a finished job and executes it
func (s *Job) Rerun(ctx context.Context, id uint) (*models.Job, error) {
	prev, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !prev.Status.IsTerminal() {
		return nil, types.NewError(types.KindConflict, "rerun job", fmt.Errorf("%w: job %d is %s", types.ErrNotTerminal, prev.ID, prev.Status))
	}

	next := &models.Job{
		UploadID:           prev.UploadID,
		TaskIndex:          prev.TaskIndex,
		Attempt:            prev.Attempt + 1,
		PreviousID:         &prev.ID,
		RawNumber:          prev.RawNumber,
		Section:            prev.Section,
		Question:           prev.Question,
		Code:               prev.Code,
		RequiresScreenshot: prev.RequiresScreenshot,
		Theme:              prev.Theme,
		Insertion:          prev.Insertion,
	}
	if err := s.jobs.Create(ctx, next); err != nil {
		return nil, busyOnDuplicate("rerun job", err)
	}
	if err := s.execute(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// execute moves job through running to a terminal status. Only errors that
// prevent the job from starting or being recorded are returned.
func (s *Job) execute(ctx context.Context, job *models.Job) error {
	if !job.Executable() {
		return types.NewError(types.KindValidation, "run job", types.ErrNoCode)
	}
	if err := startGuard("run job", job.Status); err != nil {
		return err
	}

	job.Status = models.StatusRunning
	if err := s.jobs.Transition(ctx, job, models.StatusPending); err != nil {
		job.Status = models.StatusPending
		return err
	}
	fields := map[string]interface{}{"upload_id": job.UploadID, "job_id": job.ID, "task_index": job.TaskIndex}
	logger.InfoWithFields("job running", fields)
	events.Publish(events.Event{Type: events.EventTaskRunning, UploadID: job.UploadID, JobID: job.ID, TaskIndex: job.TaskIndex})

	res := s.runner.Run(ctx, sandbox.Request{
		Code:      job.Code,
		Theme:     job.Theme,
		Title:     fmt.Sprintf("task_%d.py", job.TaskIndex),
		TaskIndex: job.TaskIndex,
	})

	// the outcome is recorded even when the caller has gone away
	saveCtx := context.WithoutCancel(ctx)
	var shot *models.Screenshot
	if res.Completed {
		shot, res.Err = s.storeScreenshot(saveCtx, job, res.Screenshot)
	} else if res.Screenshot != nil {
		_ = os.Remove(res.Screenshot.Path)
	}
	job.DurationMS = res.Duration.Milliseconds()

	if res.Err != nil {
		job.Status = models.StatusFailed
		job.Error = res.Err.Error()
		if err := s.jobs.Transition(saveCtx, job, models.StatusRunning); err != nil {
			return err
		}
		fields["error"] = job.Error
		logger.WarnWithFields("job failed", fields)
		events.Publish(events.Event{Type: events.EventTaskFailed, UploadID: job.UploadID, JobID: job.ID, TaskIndex: job.TaskIndex, Message: job.Error})
		return nil
	}

	exitCode := res.ExitCode
	job.Status = models.StatusCompleted
	job.Output = res.Output
	job.ExitCode = &exitCode
	if err := s.jobs.CompleteWithScreenshot(saveCtx, job, shot); err != nil {
		return err
	}
	fields["exit_code"] = exitCode
	logger.InfoWithFields("job completed", fields)
	events.Publish(events.Event{Type: events.EventTaskCompleted, UploadID: job.UploadID, JobID: job.ID, TaskIndex: job.TaskIndex})
	return nil
}

func (s *Job) storeScreenshot(ctx context.Context, job *models.Job, img *sandbox.Image) (*models.Screenshot, error) {
	if img == nil {
		return nil, types.NewError(types.KindEnvironment, "store screenshot", errors.New("execution produced no screenshot"))
	}
	defer os.Remove(img.Path)

	key := fmt.Sprintf("screenshots/upload-%d/task-%d-attempt-%d.png", job.UploadID, job.TaskIndex, job.Attempt)
	path, err := storage.PutFile(ctx, s.store, key, img.Path, "image/png")
	if err != nil {
		return nil, types.NewRetryableError(types.KindEnvironment, "store screenshot", err)
	}
	return &models.Screenshot{
		StoragePath: path,
		Size:        img.Size,
		Width:       img.Width,
		Height:      img.Height,
		CreatedAt:   time.Now(),
	}, nil
}
