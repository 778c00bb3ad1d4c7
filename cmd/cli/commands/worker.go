package commands

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/labmate/labmate/internal/services"
)

func init() {
	workerCmd.Flags().Duration("backoff", services.DefaultWorkerBackoff, "Wait between polls when no AI job is pending")
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process pending AI jobs until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		backoff, _ := cmd.Flags().GetDuration("backoff")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)

		return withApp(cmd, func(ctx context.Context, app *App) error {
			var wg sync.WaitGroup
			wg.Add(1)
			go services.LaunchWorker(ctx, &wg, app.AIJobs, backoff)

			<-ctx.Done()
			wg.Wait()
			return nil
		})
	},
}

// GetWorkerCmd returns the worker command
func GetWorkerCmd() *cobra.Command {
	return workerCmd
}
