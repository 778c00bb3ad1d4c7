package services

import (
	"context"
	"sync"
	"time"

	"github.com/labmate/labmate/internal/db/models"
)

func (s *ServiceTestSuite) TestWorkerProcessesPendingAIJobs() {
	job := s.submit(codeCandidate("q1", 1), answerCandidate("q2", 2))

	ctx, cancel := context.WithCancel(s.ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go LaunchWorker(ctx, &wg, s.aiJobs, 10*time.Millisecond)

	s.Eventually(func() bool {
		stored, err := s.aiJobRepo.GetByID(s.ctx, job.ID)
		return err == nil && stored.Status == models.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.Fail("worker did not stop after cancellation")
	}

	pending, err := s.aiJobs.ListPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
	s.Len(s.runner.executed(), 1)
}
