package services

import (
	"context"
	"sync"
	"time"

	"github.com/labmate/labmate/internal/logger"
)

// DefaultWorkerBackoff is how long the worker waits when there is nothing to do
const DefaultWorkerBackoff = time.Second

// LaunchWorker processes pending AI jobs until ctx is cancelled
func LaunchWorker(ctx context.Context, wg *sync.WaitGroup, aiJobService *AIJob, backoff time.Duration) {
	defer wg.Done()
	const jobLimit = 10
	if backoff <= 0 {
		backoff = DefaultWorkerBackoff
	}

	logger.Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker received shutdown signal, stopping...")
			return
		default:
		}

		jobs, err := aiJobService.ListPending(ctx, jobLimit)
		if err != nil {
			logger.Errorf("Worker error fetching ai jobs: %v", err)
			// Wait before retrying to avoid spamming logs on persistent DB errors
			sleep(ctx, backoff)
			continue
		}

		if len(jobs) == 0 {
			logger.Debug("Worker: No ai jobs to process")
			sleep(ctx, backoff)
			continue
		}

		jobIDs := make([]uint, len(jobs))
		for i, job := range jobs {
			jobIDs[i] = job.ID
		}
		logger.Infof("Worker fetched %d ai jobs: %v", len(jobs), jobIDs)

		failed := false
		for _, id := range jobIDs {
			if ctx.Err() != nil {
				break
			}
			if _, err := aiJobService.Process(ctx, id); err != nil {
				logger.Errorf("Worker error processing ai job %d: %v", id, err)
				failed = true
			}
		}
		if failed {
			// the job is still pending and would be picked up again immediately
			sleep(ctx, backoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
