package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/services"
	"github.com/labmate/labmate/internal/suggest"
	"github.com/labmate/labmate/internal/types"
)

// taskSpec is one task of a --tasks file
type taskSpec struct {
	Key                string  `json:"key"`
	TaskIndex          int     `json:"task_index"`
	Type               string  `json:"type"`
	Question           string  `json:"question,omitempty"`
	SuggestedCode      string  `json:"suggested_code,omitempty"`
	ExtractedCode      string  `json:"extracted_code,omitempty"`
	Confidence         float64 `json:"confidence"`
	ConfidenceScale    string  `json:"confidence_scale,omitempty"`
	SuggestedInsertion string  `json:"suggested_insertion,omitempty"`
	Description        string  `json:"description,omitempty"`
	FollowUp           string  `json:"follow_up,omitempty"`
}

// aiTaskOutput represents the filtered output for an AI task
type aiTaskOutput struct {
	Key        string `json:"key"`
	Attempt    int    `json:"attempt"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Confidence int    `json:"confidence"`
	FollowUp   string `json:"follow_up,omitempty"`
	Caption    string `json:"caption,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
	Error      string `json:"error,omitempty"`
}

// aiJobOutput represents the filtered output for an AI job
type aiJobOutput struct {
	ID       uint           `json:"id"`
	UploadID uint           `json:"upload_id"`
	Status   string         `json:"status"`
	Error    string         `json:"error,omitempty"`
	Tasks    []aiTaskOutput `json:"tasks"`
}

func init() {
	aiCmd.AddCommand(aiSubmitCmd)
	aiCmd.AddCommand(aiProcessCmd)
	aiCmd.AddCommand(aiStatusCmd)
	aiCmd.AddCommand(aiEditCmd)
	aiCmd.AddCommand(aiAnswerCmd)
	aiCmd.AddCommand(aiRetryCmd)
	aiCmd.AddCommand(aiHistoryCmd)
	aiCmd.AddCommand(aiDeleteCmd)

	aiSubmitCmd.Flags().String("tasks", "", "JSON file with the task list; the provider analyses the document when omitted")
	aiSubmitCmd.Flags().String(flagTheme, "", "Environment theme (plain or editor)")
	aiSubmitCmd.Flags().String(flagInsertion, "", "Default screenshot insertion point (below_question or bottom_of_page)")

	aiEditCmd.Flags().String("code-file", "", "File holding the code to run for the task")
	_ = aiEditCmd.MarkFlagRequired("code-file")
}

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "Manage AI-assisted jobs",
}

var aiSubmitCmd = &cobra.Command{
	Use:   "submit <upload-id>",
	Short: "Create an AI job for an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uploadID, err := parseID(args[0], "upload")
		if err != nil {
			return err
		}
		theme, insertion, err := preferenceFlags(cmd)
		if err != nil {
			return err
		}
		var candidates []suggest.Candidate
		if path, _ := cmd.Flags().GetString("tasks"); path != "" {
			if candidates, err = readTaskSpecs(path); err != nil {
				return err
			}
		}

		return withApp(cmd, func(ctx context.Context, app *App) error {
			job, err := app.AIJobs.Submit(ctx, uploadID, services.SubmitOptions{Theme: theme, Insertion: insertion}, candidates)
			if err != nil {
				return fmt.Errorf("error submitting ai job: %w", err)
			}
			return printJSON(cmd, toAIJobOutput(job))
		})
	},
}

var aiProcessCmd = &cobra.Command{
	Use:   "process <ai-job-id>",
	Short: "Execute the pending tasks of an AI job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "ai job")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			job, err := app.AIJobs.Process(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, toAIJobOutput(job))
		})
	},
}

var aiStatusCmd = &cobra.Command{
	Use:   "status <ai-job-id>",
	Short: "Show an AI job and the latest attempt of each task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "ai job")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			job, err := app.AIJobs.Get(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, toAIJobOutput(job))
		})
	},
}

var aiEditCmd = &cobra.Command{
	Use:   "edit <ai-job-id> <task-key>",
	Short: "Replace the code a task runs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "ai job")
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("code-file")
		code, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read code file: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			task, err := app.AIJobs.SetUserCode(ctx, id, args[1], string(code))
			if err != nil {
				return err
			}
			return printJSON(cmd, toAITaskOutput(task))
		})
	},
}

var aiAnswerCmd = &cobra.Command{
	Use:   "answer <ai-job-id> <task-key> <answer>",
	Short: "Answer the follow-up question of a task",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "ai job")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			task, err := app.AIJobs.AnswerFollowUp(ctx, id, args[1], args[2])
			if err != nil {
				return err
			}
			return printJSON(cmd, toAITaskOutput(task))
		})
	},
}

var aiRetryCmd = &cobra.Command{
	Use:   "retry <ai-job-id> <task-key>",
	Short: "Run a task again",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "ai job")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			task, err := app.AIJobs.Retry(ctx, id, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, toAITaskOutput(task))
		})
	},
}

var aiHistoryCmd = &cobra.Command{
	Use:   "history <ai-job-id> <task-key>",
	Short: "List every attempt of a task, oldest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "ai job")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			attempts, err := app.AITasks.History(ctx, id, args[1])
			if err != nil {
				return err
			}
			output := make([]aiTaskOutput, len(attempts))
			for i := range attempts {
				output[i] = toAITaskOutput(&attempts[i])
			}
			return printJSON(cmd, output)
		})
	},
}

var aiDeleteCmd = &cobra.Command{
	Use:   "delete <ai-job-id>",
	Short: "Delete an AI job and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "ai job")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			if err := app.AIJobs.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted ai job %d\n", id)
			return nil
		})
	},
}

// readTaskSpecs loads the candidates of a --tasks file
func readTaskSpecs(path string) ([]suggest.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}
	var entries []taskSpec
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("invalid tasks file %s: %w", path, err)
	}

	candidates := make([]suggest.Candidate, 0, len(entries))
	for i, entry := range entries {
		c := suggest.Candidate{
			Key:           entry.Key,
			TaskIndex:     entry.TaskIndex,
			Type:          types.TaskType(entry.Type),
			Question:      entry.Question,
			SuggestedCode: entry.SuggestedCode,
			ExtractedCode: entry.ExtractedCode,
			Confidence:    entry.Confidence,
			Description:   entry.Description,
			FollowUp:      entry.FollowUp,
		}
		scale, err := suggest.ParseConfidenceScale(entry.ConfidenceScale)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
		c.ConfidenceScale = scale
		if entry.SuggestedInsertion != "" {
			point, err := types.ParseInsertionPoint(entry.SuggestedInsertion)
			if err != nil {
				return nil, fmt.Errorf("task %d: %w", i+1, err)
			}
			c.SuggestedInsertion = point
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func toAIJobOutput(job *models.AIJob) aiJobOutput {
	out := aiJobOutput{
		ID:       job.ID,
		UploadID: job.UploadID,
		Status:   string(job.Status),
		Error:    job.Error,
		Tasks:    make([]aiTaskOutput, len(job.Tasks)),
	}
	for i := range job.Tasks {
		out.Tasks[i] = toAITaskOutput(&job.Tasks[i])
	}
	return out
}

func toAITaskOutput(task *models.AITask) aiTaskOutput {
	return aiTaskOutput{
		Key:        task.Key,
		Attempt:    task.Attempt,
		Type:       string(task.Type),
		Status:     string(task.Status),
		Confidence: task.Confidence,
		FollowUp:   task.FollowUp,
		Caption:    task.Caption(),
		Screenshot: task.Screenshot(),
		Error:      task.Error,
	}
}

// GetAICmd returns the ai command
func GetAICmd() *cobra.Command {
	return aiCmd
}
