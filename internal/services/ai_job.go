package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/db/repos"
	"github.com/labmate/labmate/internal/events"
	"github.com/labmate/labmate/internal/extract"
	"github.com/labmate/labmate/internal/logger"
	"github.com/labmate/labmate/internal/suggest"
	"github.com/labmate/labmate/internal/types"
)

// SubmitOptions are the job-wide preferences of an AI job
type SubmitOptions struct {
	Theme     types.Theme
	Insertion types.InsertionPoint
}

// AIJob creates AI jobs for uploads and aggregates the state of their tasks
type AIJob struct {
	aiJobs      *repos.AIJobRepository
	aiTasks     *repos.AITaskRepository
	docs        *Document
	orch        *AITask
	provider    suggest.Provider
	concurrency int
}

// NewAIJobService creates a new AI job service
func NewAIJobService(aiJobs *repos.AIJobRepository, aiTasks *repos.AITaskRepository, docs *Document, orch *AITask, provider suggest.Provider, concurrency int) *AIJob {
	if concurrency < 1 {
		concurrency = 1
	}
	return &AIJob{
		aiJobs:      aiJobs,
		aiTasks:     aiTasks,
		docs:        docs,
		orch:        orch,
		provider:    provider,
		concurrency: concurrency,
	}
}

// Submit creates a pending AI job for an upload. When candidates is empty the
// provider analyses the document and proposes them.
func (s *AIJob) Submit(ctx context.Context, uploadID uint, opts SubmitOptions, candidates []suggest.Candidate) (*models.AIJob, error) {
	upload, err := s.docs.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	_, tasks, err := s.docs.Structure(ctx, upload)
	if err != nil {
		return nil, err
	}
	byIndex := make(map[int]extract.Task, len(tasks))
	for _, t := range tasks {
		byIndex[t.Index] = t
	}

	if len(candidates) == 0 {
		req := suggest.AnalyzeRequest{Filename: upload.Filename}
		for _, t := range tasks {
			req.Tasks = append(req.Tasks, suggest.TaskContext{
				Index:    t.Index,
				Section:  t.Section,
				Question: t.Question,
				Code:     t.Code,
			})
		}
		candidates, err = s.provider.Analyze(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	theme := opts.Theme
	if theme == "" {
		theme = types.ThemePlain
	}
	insertion := opts.Insertion
	if insertion == "" {
		insertion = s.docs.defaultInsertion
	}
	job := &models.AIJob{
		UploadID:  upload.ID,
		Theme:     theme,
		Insertion: insertion,
	}

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		task, err := buildAITask(c, byIndex)
		if err != nil {
			return nil, err
		}
		if seen[task.Key] {
			return nil, types.NewError(types.KindValidation, "submit ai job", fmt.Errorf("duplicate task key %q", task.Key))
		}
		seen[task.Key] = true
		job.Tasks = append(job.Tasks, task)
	}

	if err := s.aiJobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create ai job: %w", err)
	}
	logger.InfoWithFields("ai job submitted", map[string]interface{}{
		"upload_id": upload.ID,
		"ai_job_id": job.ID,
		"tasks":     len(job.Tasks),
	})
	return job, nil
}

func buildAITask(c suggest.Candidate, byIndex map[int]extract.Task) (models.AITask, error) {
	src, ok := byIndex[c.TaskIndex]
	if !ok {
		return models.AITask{}, types.NewError(types.KindValidation, "submit ai job", fmt.Errorf("task index %d does not exist in the document", c.TaskIndex))
	}
	taskType, err := types.ParseTaskType(string(c.Type))
	if err != nil {
		return models.AITask{}, types.NewError(types.KindValidation, "submit ai job", err)
	}
	confidence, err := suggest.NormalizeConfidence(c.Confidence, c.ConfidenceScale)
	if err != nil {
		return models.AITask{}, types.NewError(types.KindValidation, "submit ai job", err)
	}

	key := c.Key
	if key == "" {
		key = uuid.NewString()
	}
	question := c.Question
	if question == "" {
		question = src.Question
	}
	extracted := c.ExtractedCode
	if extracted == "" {
		extracted = src.Code
	}

	task := models.NewAITask(key, taskType, question, extracted)
	task.TaskIndex = c.TaskIndex
	task.Confidence = int(math.Round(confidence))
	task.SuggestedInsertion = c.SuggestedInsertion
	task.Description = c.Description
	task.FollowUp = c.FollowUp
	if task.Code != nil {
		task.Code.Suggested = c.SuggestedCode
	}
	return task, nil
}

// Process executes every pending task of an AI job. Tasks run with bounded
// parallelism; the sandbox serialises the executions themselves. A failing
// task never cancels its siblings.
func (s *AIJob) Process(ctx context.Context, id uint) (*models.AIJob, error) {
	job, err := s.aiJobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"upload_id": job.UploadID, "ai_job_id": job.ID}

	if _, err := s.docs.Get(ctx, job.UploadID); err != nil {
		if types.KindOf(err) != types.KindNotFound {
			return nil, err
		}
		msg := fmt.Sprintf("upload %d no longer exists", job.UploadID)
		if err := s.aiJobs.UpdateStatus(ctx, job.ID, models.StatusFailed, msg); err != nil {
			return nil, err
		}
		logger.WarnWithFields("ai job failed", mergeFields(fields, "error", msg))
		job.Status = models.StatusFailed
		job.Error = msg
		return job, nil
	}

	tasks, err := s.aiTasks.ListByAIJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if err := s.aiJobs.UpdateStatus(ctx, job.ID, models.StatusRunning, ""); err != nil {
		return nil, err
	}
	logger.InfoWithFields("ai job processing", mergeFields(fields, "tasks", len(tasks)))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range tasks {
		task := &tasks[i]
		if task.Status != models.StatusPending {
			continue
		}
		g.Go(func() error {
			if err := s.orch.Execute(ctx, job, task); err != nil && !errors.Is(err, types.ErrTaskBusy) {
				logger.ErrorWithFields("ai task not executed", mergeFields(taskFields(job, task), "error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	return s.Refresh(ctx, job.ID)
}

// Refresh recomputes the status of an AI job from its tasks and persists it
func (s *AIJob) Refresh(ctx context.Context, id uint) (*models.AIJob, error) {
	job, err := s.aiJobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.aiTasks.ListByAIJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Tasks = tasks
	if job.Status == models.StatusFailed {
		return job, nil
	}

	prev := job.Status
	job.Status = models.DeriveAIJobStatus(tasks)
	if job.Status == prev {
		return job, nil
	}
	if err := s.aiJobs.UpdateStatus(ctx, id, job.Status, ""); err != nil {
		return nil, err
	}
	if job.Status == models.StatusCompleted {
		logger.InfoWithFields("ai job completed", map[string]interface{}{"upload_id": job.UploadID, "ai_job_id": job.ID})
		events.Publish(events.Event{Type: events.EventAIJobCompleted, UploadID: job.UploadID, AIJobID: job.ID})
	}
	return job, nil
}

// Get retrieves an AI job with the latest attempt of each task. The status
// is derived from the tasks at read time.
func (s *AIJob) Get(ctx context.Context, id uint) (*models.AIJob, error) {
	job, err := s.aiJobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.aiTasks.ListByAIJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Tasks = tasks
	if job.Status != models.StatusFailed {
		job.Status = models.DeriveAIJobStatus(tasks)
	}
	return job, nil
}

// ListPending retrieves AI jobs waiting to be processed, oldest first
func (s *AIJob) ListPending(ctx context.Context, limit int) ([]models.AIJob, error) {
	return s.aiJobs.ListByStatus(ctx, models.StatusPending, limit)
}

// Delete removes an AI job with all of its tasks
func (s *AIJob) Delete(ctx context.Context, id uint) error {
	if err := s.aiJobs.Delete(ctx, id); err != nil {
		return err
	}
	logger.InfoWithFields("ai job deleted", map[string]interface{}{"ai_job_id": id})
	return nil
}

// SetUserCode records user code for a task of the job
func (s *AIJob) SetUserCode(ctx context.Context, id uint, key, code string) (*models.AITask, error) {
	task, err := s.orch.SetUserCode(ctx, id, key, code)
	if err != nil {
		return nil, err
	}
	if _, err := s.Refresh(ctx, id); err != nil {
		return nil, err
	}
	return task, nil
}

// AnswerFollowUp answers the follow-up question of a task of the job
func (s *AIJob) AnswerFollowUp(ctx context.Context, id uint, key, answer string) (*models.AITask, error) {
	return s.orch.AnswerFollowUp(ctx, id, key, answer)
}

// Retry runs a new attempt of a task of the job
func (s *AIJob) Retry(ctx context.Context, id uint, key string) (*models.AITask, error) {
	job, err := s.aiJobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == models.StatusFailed {
		return nil, types.NewError(types.KindConflict, "retry ai task", fmt.Errorf("ai job %d failed: %s", job.ID, job.Error))
	}
	task, err := s.orch.Retry(ctx, job, key)
	if err != nil {
		return nil, err
	}
	if _, err := s.Refresh(ctx, id); err != nil {
		return nil, err
	}
	return task, nil
}
