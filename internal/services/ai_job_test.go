package services

import (
	"errors"

	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/suggest"
	"github.com/labmate/labmate/internal/types"
)

func (s *ServiceTestSuite) submit(candidates ...suggest.Candidate) *models.AIJob {
	uploadID := s.ingest(twoTaskLab)
	job, err := s.aiJobs.Submit(s.ctx, uploadID, SubmitOptions{Theme: types.ThemeEditor}, candidates)
	s.Require().NoError(err)
	return job
}

func codeCandidate(key string, index int) suggest.Candidate {
	return suggest.Candidate{Key: key, TaskIndex: index, Type: types.TaskTypeCodeExecution, Confidence: 90}
}

func answerCandidate(key string, index int) suggest.Candidate {
	return suggest.Candidate{Key: key, TaskIndex: index, Type: types.TaskTypeAnswerRequest, Confidence: 0.75}
}

func (s *ServiceTestSuite) TestSubmitBuildsTasksFromCandidates() {
	job := s.submit(codeCandidate("q1", 1), answerCandidate("q2", 2))
	s.Equal(models.StatusPending, job.Status)
	s.Equal(types.ThemeEditor, job.Theme)
	s.Equal(types.InsertBelowQuestion, job.Insertion)
	s.Require().Len(job.Tasks, 2)

	q1 := job.Tasks[0]
	s.Equal("1. Print a greeting", q1.Question)
	s.Equal("print(\"hello\")", q1.Code.Extracted)
	s.Equal(90, q1.Confidence)

	q2 := job.Tasks[1]
	s.NotNil(q2.Answer)
	s.Equal(75, q2.Confidence)
}

func (s *ServiceTestSuite) TestSubmitAnalysesDocumentWithoutCandidates() {
	job := s.submit()
	s.Require().Len(job.Tasks, 2)
	s.Equal("task_1", job.Tasks[0].Key)
	s.Equal(types.TaskTypeCodeExecution, job.Tasks[0].Type)
	s.Equal(types.TaskTypeAnswerRequest, job.Tasks[1].Type)
}

func (s *ServiceTestSuite) TestSubmitRejectsInvalidCandidates() {
	uploadID := s.ingest(twoTaskLab)
	tests := []struct {
		name       string
		candidates []suggest.Candidate
	}{
		{"unknown task index", []suggest.Candidate{codeCandidate("q1", 7)}},
		{"duplicate key", []suggest.Candidate{codeCandidate("q1", 1), codeCandidate("q1", 2)}},
		{"confidence out of range", []suggest.Candidate{{Key: "q1", TaskIndex: 1, Type: types.TaskTypeCodeExecution, Confidence: 140}}},
		{"unknown type", []suggest.Candidate{{Key: "q1", TaskIndex: 1, Type: "essay"}}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.aiJobs.Submit(s.ctx, uploadID, SubmitOptions{}, tt.candidates)
			s.Require().Error(err)
			s.Equal(types.KindValidation, types.KindOf(err))
		})
	}

	_, err := s.aiJobs.Submit(s.ctx, uploadID+100, SubmitOptions{}, []suggest.Candidate{codeCandidate("q1", 1)})
	s.Equal(types.KindNotFound, types.KindOf(err))
}

func (s *ServiceTestSuite) TestProcessCompletesJobAndComposesReport() {
	job := s.submit(codeCandidate("q1", 1), answerCandidate("q2", 2))

	processed, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, processed.Status)
	s.Require().Len(processed.Tasks, 2)

	q1 := processed.Tasks[0]
	s.Equal(models.StatusCompleted, q1.Status)
	s.Equal("print(\"hello\")", q1.Code.Executed)
	s.Equal("Greeting printed", q1.Code.Caption)
	s.NotEmpty(q1.Code.ScreenshotPath)

	q2 := processed.Tasks[1]
	s.Equal(models.StatusCompleted, q2.Status)
	s.Equal("A loop repeats a block", q2.Answer.Text)

	stored, err := s.aiJobRepo.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, stored.Status)

	report, err := s.composer.ComposeAIJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.ReportSourceAIJob, report.Source)
	s.Require().NotNil(report.AIJobID)
	s.Equal(job.ID, *report.AIJobID)
	s.Equal([]string{"q1"}, report.ScreenshotOrder)

	content := s.readStored(report.StoragePath)
	s.Contains(content, "1. Print a greeting\n![Greeting printed](")
	s.Equal(twoTaskLab, stripImages(content))
}

func (s *ServiceTestSuite) TestCodePrecedenceUserOverSuggestedOverExtracted() {
	suggested := codeCandidate("q1", 1)
	suggested.SuggestedCode = "print('ai')"
	job := s.submit(suggested, codeCandidate("q2", 1), codeCandidate("q3", 1))

	_, err := s.aiJobs.SetUserCode(s.ctx, job.ID, "q1", "print('user')")
	s.Require().NoError(err)
	s.provider.code = "print('generated')"

	processed, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)

	executed := map[string]string{}
	for _, task := range processed.Tasks {
		executed[task.Key] = task.Code.Executed
	}
	s.Equal("print('user')", executed["q1"])
	s.Equal("print('generated')", executed["q2"])
	s.Equal("print('generated')", executed["q3"])
}

func (s *ServiceTestSuite) TestExtractedCodeUsedWhenProviderFails() {
	s.provider.suggestErr = types.NewRetryableError(types.KindProvider, "suggest", errors.New("quota exceeded"))
	job := s.submit(codeCandidate("q1", 1), answerCandidate("q2", 2))

	processed, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)

	q1, q2 := processed.Tasks[0], processed.Tasks[1]
	s.Equal(models.StatusCompleted, q1.Status)
	s.Equal("print(\"hello\")", q1.Code.Executed)

	s.Equal(models.StatusFailed, q2.Status)
	s.True(q2.Retryable)
	s.Contains(q2.Error, "quota exceeded")
	s.Empty(q2.Answer.Text)

	// failures never fail the parent
	s.Equal(models.StatusCompleted, processed.Status)
}

func (s *ServiceTestSuite) TestTaskFailureIsIsolated() {
	s.runner.fail["print('boom')"] = types.NewError(types.KindEnvironment, "run", errors.New("sandbox unavailable"))
	broken := codeCandidate("q1", 1)
	broken.SuggestedCode = "print('boom')"
	job := s.submit(broken, codeCandidate("q2", 1))

	processed, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)

	q1, q2 := processed.Tasks[0], processed.Tasks[1]
	s.Equal(models.StatusFailed, q1.Status)
	s.Contains(q1.Error, "sandbox unavailable")
	s.Empty(q1.Code.ScreenshotPath)
	s.Nil(q1.Code.ExitCode)
	s.Equal(models.StatusCompleted, q2.Status)
	s.Equal(models.StatusCompleted, processed.Status)
}

func (s *ServiceTestSuite) TestConfidenceThreshold() {
	s.wire(80)
	low := codeCandidate("q1", 2)
	low.Confidence = 40
	low.SuggestedCode = "print('unsure')"
	high := codeCandidate("q2", 1)
	high.SuggestedCode = "print('sure')"
	job := s.submit(low, high)

	processed, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)

	byKey := map[string]models.AITask{}
	for _, task := range processed.Tasks {
		byKey[task.Key] = task
	}
	s.Equal(models.StatusFailed, byKey["q1"].Status)
	s.Contains(byKey["q1"].Error, "below 80")
	s.Equal(models.StatusCompleted, byKey["q2"].Status)
	s.Equal("print('sure')", byKey["q2"].Code.Executed)
	s.Equal([]string{"print('sure')"}, s.runner.executed())

	// user code is accepted regardless of confidence
	_, err = s.aiJobs.SetUserCode(s.ctx, job.ID, "q1", "print('mine')")
	s.Require().NoError(err)
	retried, err := s.aiJobs.Retry(s.ctx, job.ID, "q1")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, retried.Status)
	s.Equal("print('mine')", retried.Code.Executed)
}

func (s *ServiceTestSuite) TestEditedTaskRequeuesJob() {
	job := s.submit(codeCandidate("q1", 1))
	processed, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, processed.Status)

	_, err = s.aiJobs.SetUserCode(s.ctx, job.ID, "q1", "print('mine')")
	s.Require().NoError(err)

	edited, err := s.aiJobs.Get(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, edited.Status)

	pending, err := s.aiJobs.ListPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(job.ID, pending[0].ID)

	processed, err = s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, processed.Status)
	s.Equal("print('mine')", processed.Tasks[0].Code.Executed)
}

func (s *ServiceTestSuite) TestRunningTaskRejectsConcurrentChanges() {
	job := s.submit(codeCandidate("q1", 1))
	task, err := s.aiTasks.Get(s.ctx, job.ID, "q1")
	s.Require().NoError(err)
	task.Status = models.StatusRunning
	s.Require().NoError(s.aiTaskRepo.Transition(s.ctx, task, models.StatusPending))

	stale, err := s.aiTaskRepo.GetByID(s.ctx, task.ID)
	s.Require().NoError(err)
	stale.Status = models.StatusPending
	err = s.aiTasks.Execute(s.ctx, job, stale)
	s.True(errors.Is(err, types.ErrTaskBusy))

	running, err := s.aiTasks.Get(s.ctx, job.ID, "q1")
	s.Require().NoError(err)
	err = s.aiTasks.Execute(s.ctx, job, running)
	s.True(errors.Is(err, types.ErrTaskBusy))

	_, err = s.aiJobs.SetUserCode(s.ctx, job.ID, "q1", "print(2)")
	s.True(errors.Is(err, types.ErrTaskBusy))
	_, err = s.aiJobs.Retry(s.ctx, job.ID, "q1")
	s.True(errors.Is(err, types.ErrTaskBusy))
	s.Empty(s.runner.executed())

	history, err := s.aiTasks.History(s.ctx, job.ID, "q1")
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *ServiceTestSuite) TestRetryKeepsHistory() {
	s.runner.fail["print(\"hello\")"] = types.NewRetryableError(types.KindEnvironment, "run", types.ErrTimeout)
	job := s.submit(codeCandidate("q1", 1))
	_, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)

	failed, err := s.aiTasks.Get(s.ctx, job.ID, "q1")
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, failed.Status)
	s.True(failed.Retryable)

	delete(s.runner.fail, "print(\"hello\")")
	retried, err := s.aiJobs.Retry(s.ctx, job.ID, "q1")
	s.Require().NoError(err)
	s.Equal(2, retried.Attempt)
	s.Equal(failed.ID, *retried.PreviousID)
	s.Equal(models.StatusCompleted, retried.Status)

	history, err := s.aiTasks.History(s.ctx, job.ID, "q1")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.StatusFailed, history[0].Status)
	s.Equal(models.StatusCompleted, history[1].Status)

	got, err := s.aiJobs.Get(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(got.Tasks, 1)
	s.Equal(retried.ID, got.Tasks[0].ID)
}

func (s *ServiceTestSuite) TestFollowUpBlocksComposition() {
	question := answerCandidate("q2", 2)
	question.FollowUp = "Which loop construct?"
	job := s.submit(codeCandidate("q1", 1), question)

	processed, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, processed.Status)

	_, err = s.composer.ComposeAIJob(s.ctx, job.ID)
	s.Require().Error(err)
	s.True(errors.Is(err, types.ErrNotTerminal))
	s.Contains(err.Error(), "follow-up")

	answered, err := s.aiJobs.AnswerFollowUp(s.ctx, job.ID, "q2", "for loops")
	s.Require().NoError(err)
	s.Equal("for loops", answered.FollowUpAnswer)
	s.Equal("Greeting printed for for loops", answered.Answer.Caption)

	report, err := s.composer.ComposeAIJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal([]string{"q1"}, report.ScreenshotOrder)

	_, err = s.aiJobs.AnswerFollowUp(s.ctx, job.ID, "q1", "nothing asked")
	s.Equal(types.KindValidation, types.KindOf(err))
}

func (s *ServiceTestSuite) TestTaskInsertionOverridesJobPreference() {
	first := codeCandidate("q1", 1)
	first.SuggestedInsertion = types.InsertBottomOfPage
	job := s.submit(first)
	_, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)

	report, err := s.composer.ComposeAIJob(s.ctx, job.ID)
	s.Require().NoError(err)
	content := s.readStored(report.StoragePath)
	s.Contains(content, "Use your own words.\n\n![Greeting printed](")
}

func (s *ServiceTestSuite) TestProcessFailsJobWhenUploadIsGone() {
	job := &models.AIJob{UploadID: 4242, Theme: types.ThemePlain}
	job.Tasks = append(job.Tasks, models.NewAITask("q1", types.TaskTypeCodeExecution, "Orphan", "print(1)"))
	s.Require().NoError(s.aiJobRepo.Create(s.ctx, job))

	processed, err := s.aiJobs.Process(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, processed.Status)
	s.Contains(processed.Error, "no longer exists")
	s.Empty(s.runner.executed())

	got, err := s.aiJobs.Get(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, got.Status)

	_, err = s.aiJobs.Retry(s.ctx, job.ID, "q1")
	s.Equal(types.KindConflict, types.KindOf(err))
}

func (s *ServiceTestSuite) TestDeleteAIJobRemovesTasks() {
	job := s.submit(codeCandidate("q1", 1))
	s.Require().NoError(s.aiJobs.Delete(s.ctx, job.ID))

	_, err := s.aiJobs.Get(s.ctx, job.ID)
	s.Equal(types.KindNotFound, types.KindOf(err))
	tasks, err := s.aiTaskRepo.ListByAIJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Empty(tasks)
}
