package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/db/repos"
	"github.com/labmate/labmate/internal/events"
	"github.com/labmate/labmate/internal/logger"
	"github.com/labmate/labmate/internal/sandbox"
	"github.com/labmate/labmate/internal/storage"
	"github.com/labmate/labmate/internal/suggest"
	"github.com/labmate/labmate/internal/types"
)

const answerCaption = "Answer"

// AITask drives single AI tasks through their lifecycle
type AITask struct {
	tasks    *repos.AITaskRepository
	provider suggest.Provider
	runner   sandbox.Runner
	store    storage.Store
	// threshold < 0 leaves confidence informational
	threshold int
}

// NewAITaskService creates a new AI task orchestrator
func NewAITaskService(tasks *repos.AITaskRepository, provider suggest.Provider, runner sandbox.Runner, store storage.Store, threshold int) *AITask {
	return &AITask{
		tasks:     tasks,
		provider:  provider,
		runner:    runner,
		store:     store,
		threshold: threshold,
	}
}

// Get retrieves the latest attempt of a task
func (s *AITask) Get(ctx context.Context, aiJobID uint, key string) (*models.AITask, error) {
	return s.tasks.GetByKey(ctx, aiJobID, key)
}

// History retrieves every attempt of a task, oldest first
func (s *AITask) History(ctx context.Context, aiJobID uint, key string) ([]models.AITask, error) {
	return s.tasks.ListHistory(ctx, aiJobID, key)
}

// Execute runs a pending task to a terminal status. A task failure is
// recorded on the task and is not returned; errors are returned only when the
// task could not be started or its outcome could not be saved.
func (s *AITask) Execute(ctx context.Context, job *models.AIJob, task *models.AITask) error {
	if err := startGuard("execute ai task", task.Status); err != nil {
		return err
	}

	task.Status = models.StatusRunning
	task.Error = ""
	task.Retryable = false
	if err := s.tasks.Transition(ctx, task, models.StatusPending); err != nil {
		task.Status = models.StatusPending
		return err
	}
	s.publish(events.EventTaskRunning, job, task, "")
	logger.InfoWithFields("ai task running", taskFields(job, task))

	var runErr error
	if task.Type.ExecutesCode() {
		runErr = s.executeCode(ctx, job, task)
	} else {
		runErr = s.answer(ctx, task)
	}

	saveCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		return s.fail(saveCtx, job, task, runErr)
	}
	task.Status = models.StatusCompleted
	if err := s.tasks.Transition(saveCtx, task, models.StatusRunning); err != nil {
		return err
	}
	logger.InfoWithFields("ai task completed", taskFields(job, task))
	s.publish(events.EventTaskCompleted, job, task, "")
	return nil
}

// executeCode fills the code payload. Artifacts are assigned only once every
// step has succeeded so a failed task never carries partial evidence.
func (s *AITask) executeCode(ctx context.Context, job *models.AIJob, task *models.AITask) error {
	payload := task.Code
	if strings.TrimSpace(payload.User) == "" && strings.TrimSpace(payload.Suggested) == "" {
		sug, err := s.provider.Suggest(ctx, suggest.Request{
			Type:           task.Type,
			Question:       task.Question,
			ExtractedCode:  payload.Extracted,
			FollowUpAnswer: task.FollowUpAnswer,
		})
		switch {
		case err != nil && strings.TrimSpace(payload.Extracted) == "":
			return err
		case err != nil:
			logger.WarnWithFields("suggestion unavailable, using extracted code", mergeFields(taskFields(job, task), "error", err.Error()))
		default:
			payload.Suggested = sug.Code
		}
	}

	code := s.resolve(payload, task.Confidence)
	if code == "" {
		if s.belowThreshold(payload, task.Confidence) {
			return types.NewError(types.KindValidation, "resolve code",
				fmt.Errorf("%w: suggestion confidence %d is below %d, supply code to run", types.ErrNoCode, task.Confidence, s.threshold))
		}
		return types.NewError(types.KindValidation, "resolve code", types.ErrNoCode)
	}

	res := s.runner.Run(ctx, sandbox.Request{
		Code:      code,
		Theme:     job.Theme,
		Title:     task.Key + ".py",
		TaskIndex: task.TaskIndex,
	})
	if res.Err != nil {
		return res.Err
	}
	if res.Screenshot == nil {
		return types.NewError(types.KindEnvironment, "capture screenshot", errors.New("execution produced no screenshot"))
	}
	defer os.Remove(res.Screenshot.Path)

	key := fmt.Sprintf("screenshots/ai-job-%d/task-%d.png", job.ID, task.ID)
	path, err := storage.PutFile(context.WithoutCancel(ctx), s.store, key, res.Screenshot.Path, "image/png")
	if err != nil {
		return types.NewRetryableError(types.KindEnvironment, "store screenshot", err)
	}

	exitCode := res.ExitCode
	caption, err := s.provider.Caption(ctx, suggest.CaptionRequest{
		Type:           task.Type,
		Code:           code,
		Output:         res.Output,
		ExitCode:       exitCode,
		FollowUpAnswer: task.FollowUpAnswer,
	})
	if err != nil || strings.TrimSpace(caption) == "" {
		caption = suggest.DefaultCaption(exitCode)
	}

	payload.Executed = code
	payload.Stdout = res.Output
	payload.ExitCode = &exitCode
	payload.DurationMS = res.Duration.Milliseconds()
	payload.ScreenshotPath = path
	payload.Width = res.Screenshot.Width
	payload.Height = res.Screenshot.Height
	payload.Caption = caption
	return nil
}

func (s *AITask) answer(ctx context.Context, task *models.AITask) error {
	sug, err := s.provider.Suggest(ctx, suggest.Request{
		Type:           task.Type,
		Question:       task.Question,
		FollowUpAnswer: task.FollowUpAnswer,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(sug.Answer) == "" {
		return types.NewRetryableError(types.KindProvider, "suggest answer", errors.New("provider returned an empty answer"))
	}
	task.Answer.Text = sug.Answer
	task.Answer.Caption = s.answerCaption(ctx, task)
	return nil
}

func (s *AITask) answerCaption(ctx context.Context, task *models.AITask) string {
	caption, err := s.provider.Caption(ctx, suggest.CaptionRequest{
		Type:           task.Type,
		Answer:         task.Answer.Text,
		FollowUpAnswer: task.FollowUpAnswer,
	})
	if err != nil || strings.TrimSpace(caption) == "" {
		return answerCaption
	}
	return caption
}

// resolve applies user > suggested > extracted, skipping a suggestion that
// has not reached the acceptance threshold
func (s *AITask) resolve(p *models.CodePayload, confidence int) string {
	if !s.belowThreshold(p, confidence) {
		return p.Resolve()
	}
	candidate := *p
	candidate.Suggested = ""
	return candidate.Resolve()
}

func (s *AITask) belowThreshold(p *models.CodePayload, confidence int) bool {
	return s.threshold >= 0 && strings.TrimSpace(p.User) == "" && confidence < s.threshold
}

func (s *AITask) fail(ctx context.Context, job *models.AIJob, task *models.AITask, cause error) error {
	task.Status = models.StatusFailed
	task.Error = cause.Error()
	task.Retryable = types.IsRetryable(cause)
	if err := s.tasks.Transition(ctx, task, models.StatusRunning); err != nil {
		return err
	}
	logger.WarnWithFields("ai task failed", mergeFields(taskFields(job, task), "error", task.Error))
	s.publish(events.EventTaskFailed, job, task, task.Error)
	return nil
}

// SetUserCode records the user's own code for a task. A finished task gets a
// new pending attempt carrying the code.
func (s *AITask) SetUserCode(ctx context.Context, aiJobID uint, key, code string) (*models.AITask, error) {
	task, err := s.tasks.GetByKey(ctx, aiJobID, key)
	if err != nil {
		return nil, err
	}
	if !task.Type.ExecutesCode() {
		return nil, types.NewError(types.KindValidation, "set user code", fmt.Errorf("task %s is an %s", key, task.Type))
	}

	switch {
	case task.Status == models.StatusRunning:
		return nil, types.NewError(types.KindConflict, "set user code", types.ErrTaskBusy)
	case task.Status == models.StatusPending:
		task.Code.User = code
		if err := s.tasks.Update(ctx, task); err != nil {
			return nil, err
		}
		return task, nil
	default:
		next := nextAttempt(task)
		next.Code.User = code
		if err := s.tasks.Create(ctx, &next); err != nil {
			return nil, busyOnDuplicate("set user code", err)
		}
		return &next, nil
	}
}

// AnswerFollowUp stores the user's answer to the task's follow-up question.
// A completed task has its caption regenerated.
func (s *AITask) AnswerFollowUp(ctx context.Context, aiJobID uint, key, answer string) (*models.AITask, error) {
	task, err := s.tasks.GetByKey(ctx, aiJobID, key)
	if err != nil {
		return nil, err
	}
	if task.FollowUp == "" {
		return nil, types.NewError(types.KindValidation, "answer follow-up", fmt.Errorf("task %s has no follow-up question", key))
	}
	if task.Status == models.StatusRunning {
		return nil, types.NewError(types.KindConflict, "answer follow-up", types.ErrTaskBusy)
	}

	task.FollowUpAnswer = answer
	if task.Status == models.StatusCompleted {
		if task.Answer != nil {
			task.Answer.Caption = s.answerCaption(ctx, task)
		} else if task.Code != nil && task.Code.ExitCode != nil {
			caption, err := s.provider.Caption(ctx, suggest.CaptionRequest{
				Type:           task.Type,
				Code:           task.Code.Executed,
				Output:         task.Code.Stdout,
				ExitCode:       *task.Code.ExitCode,
				FollowUpAnswer: answer,
			})
			if err == nil && strings.TrimSpace(caption) != "" {
				task.Code.Caption = caption
			}
		}
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Retry records a new attempt of a finished task and executes it
func (s *AITask) Retry(ctx context.Context, job *models.AIJob, key string) (*models.AITask, error) {
	prev, err := s.tasks.GetByKey(ctx, job.ID, key)
	if err != nil {
		return nil, err
	}
	switch {
	case prev.Status == models.StatusRunning:
		return nil, types.NewError(types.KindConflict, "retry ai task", types.ErrTaskBusy)
	case prev.Status == models.StatusPending:
		// an edited attempt is already waiting
		if err := s.Execute(ctx, job, prev); err != nil {
			return nil, err
		}
		return prev, nil
	}

	next := nextAttempt(prev)
	if err := s.tasks.Create(ctx, &next); err != nil {
		return nil, busyOnDuplicate("retry ai task", err)
	}
	logger.InfoWithFields("ai task retried", mergeFields(taskFields(job, &next), "previous_id", prev.ID))
	if err := s.Execute(ctx, job, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// nextAttempt copies the envelope and inputs of prev into a fresh pending record
func nextAttempt(prev *models.AITask) models.AITask {
	next := models.NewAITask(prev.Key, prev.Type, prev.Question, "")
	next.AIJobID = prev.AIJobID
	next.Attempt = prev.Attempt + 1
	next.PreviousID = &prev.ID
	next.TaskIndex = prev.TaskIndex
	next.Confidence = prev.Confidence
	next.SuggestedInsertion = prev.SuggestedInsertion
	next.Description = prev.Description
	next.FollowUp = prev.FollowUp
	next.FollowUpAnswer = prev.FollowUpAnswer
	if prev.Code != nil {
		next.Code.Extracted = prev.Code.Extracted
		next.Code.Suggested = prev.Code.Suggested
		next.Code.User = prev.Code.User
	}
	return next
}

func (s *AITask) publish(t events.EventType, job *models.AIJob, task *models.AITask, msg string) {
	events.Publish(events.Event{
		Type:      t,
		UploadID:  job.UploadID,
		AIJobID:   job.ID,
		TaskKey:   task.Key,
		TaskIndex: task.TaskIndex,
		Message:   msg,
	})
}

func taskFields(job *models.AIJob, task *models.AITask) map[string]interface{} {
	return map[string]interface{}{
		"upload_id":  job.UploadID,
		"ai_job_id":  job.ID,
		"task_key":   task.Key,
		"attempt":    task.Attempt,
		"task_index": task.TaskIndex,
		"status":     task.Status,
	}
}

func mergeFields(fields map[string]interface{}, key string, value interface{}) map[string]interface{} {
	fields[key] = value
	return fields
}
