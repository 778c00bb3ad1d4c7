package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labmate/labmate/internal/db/models"
)

// jobOutput represents the filtered output for a job
type jobOutput struct {
	ID         uint   `json:"id"`
	TaskIndex  int    `json:"task_index"`
	Attempt    int    `json:"attempt"`
	Status     string `json:"status"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	Error      string `json:"error,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

// jobListOutput represents the filtered output for a list of jobs
type jobListOutput struct {
	UploadID uint        `json:"upload_id"`
	Jobs     []jobOutput `json:"jobs"`
}

func init() {
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(runJobsCmd)
	jobsCmd.AddCommand(rerunJobCmd)
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run and inspect the per-task jobs of an upload",
}

var listJobsCmd = &cobra.Command{
	Use:   "list <upload-id>",
	Short: "List the latest attempt of every task of an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uploadID, err := parseID(args[0], "upload")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			jobs, err := app.Jobs.ListByUpload(ctx, uploadID)
			if err != nil {
				return fmt.Errorf("error fetching jobs: %w", err)
			}
			return printJSON(cmd, toJobList(uploadID, jobs))
		})
	},
}

var getJobCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job with its output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "job")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			job, err := app.Jobs.Get(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		})
	},
}

var runJobsCmd = &cobra.Command{
	Use:   "run <upload-id>",
	Short: "Execute the pending jobs of an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uploadID, err := parseID(args[0], "upload")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			jobs, err := app.Jobs.RunUpload(ctx, uploadID)
			if err != nil {
				return fmt.Errorf("error running jobs: %w", err)
			}
			return printJSON(cmd, toJobList(uploadID, jobs))
		})
	},
}

var rerunJobCmd = &cobra.Command{
	Use:   "rerun <job-id>",
	Short: "Run a finished job again as a new attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "job")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			job, err := app.Jobs.Rerun(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, toJobOutput(job))
		})
	},
}

func toJobList(uploadID uint, jobs []models.Job) jobListOutput {
	output := jobListOutput{
		UploadID: uploadID,
		Jobs:     make([]jobOutput, len(jobs)),
	}
	for i := range jobs {
		output.Jobs[i] = toJobOutput(&jobs[i])
	}
	return output
}

func toJobOutput(job *models.Job) jobOutput {
	out := jobOutput{
		ID:        job.ID,
		TaskIndex: job.TaskIndex,
		Attempt:   job.Attempt,
		Status:    string(job.Status),
		ExitCode:  job.ExitCode,
		Error:     job.Error,
	}
	if job.Screenshot != nil {
		out.Screenshot = job.Screenshot.StoragePath
	}
	return out
}

// GetJobsCmd returns the jobs command
func GetJobsCmd() *cobra.Command {
	return jobsCmd
}
