package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	composeCmd.AddCommand(composeJobsCmd)
	composeCmd.AddCommand(composeAICmd)
	composeCmd.AddCommand(listReportsCmd)
	composeCmd.AddCommand(linkReportCmd)

	linkReportCmd.Flags().Duration("expiry", time.Hour, "How long remote links stay valid")
}

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Merge screenshots back into the document",
}

var composeJobsCmd = &cobra.Command{
	Use:   "jobs <upload-id>",
	Short: "Compose a report from the finished jobs of an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uploadID, err := parseID(args[0], "upload")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			report, err := app.Composer.ComposeJobs(ctx, uploadID)
			if err != nil {
				return fmt.Errorf("error composing report: %w", err)
			}
			return printJSON(cmd, report)
		})
	},
}

var composeAICmd = &cobra.Command{
	Use:   "ai <ai-job-id>",
	Short: "Compose a report from a settled AI job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "ai job")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			report, err := app.Composer.ComposeAIJob(ctx, id)
			if err != nil {
				return fmt.Errorf("error composing report: %w", err)
			}
			return printJSON(cmd, report)
		})
	},
}

var listReportsCmd = &cobra.Command{
	Use:   "list <upload-id>",
	Short: "List the report versions of an upload, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uploadID, err := parseID(args[0], "upload")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			reports, err := app.Composer.Reports(ctx, uploadID)
			if err != nil {
				return err
			}
			return printJSON(cmd, reports)
		})
	},
}

var linkReportCmd = &cobra.Command{
	Use:   "link <report-id>",
	Short: "Print download links for a report and its screenshot appendix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "report")
		if err != nil {
			return err
		}
		expiry, _ := cmd.Flags().GetDuration("expiry")
		return withApp(cmd, func(ctx context.Context, app *App) error {
			links, err := app.Composer.Links(ctx, id, expiry)
			if err != nil {
				return err
			}
			return printJSON(cmd, links)
		})
	},
}

// GetComposeCmd returns the compose command
func GetComposeCmd() *cobra.Command {
	return composeCmd
}
