package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/labmate/labmate/config"
	"github.com/labmate/labmate/internal/events"
	"github.com/labmate/labmate/internal/logger"
)

// flag names
const (
	flagTheme     = "theme"
	flagLanguage  = "language"
	flagInsertion = "insertion"
	flagEnvFile   = "env-file"
	flagQuiet     = "quiet"
)

var (
	// envFile is the dotenv file loaded before the configuration
	envFile string
	// quiet suppresses progress lines on stderr
	quiet bool
	// newApp builds the services for a command; tests replace it
	newApp = NewApp
)

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, flagEnvFile, ".env", "Path of the dotenv file to load")
	RootCmd.PersistentFlags().BoolVarP(&quiet, flagQuiet, "q", false, "Do not print progress events")

	RootCmd.AddCommand(GetExtractCmd())
	RootCmd.AddCommand(GetDocumentsCmd())
	RootCmd.AddCommand(GetJobsCmd())
	RootCmd.AddCommand(GetAICmd())
	RootCmd.AddCommand(GetComposeCmd())
	RootCmd.AddCommand(GetWorkerCmd())
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "labmate",
	Short: "Labmate - run lab assignment code and compose screenshot reports",
	Long: `Labmate extracts the tasks of a lab document, runs their code in a sandbox,
captures the output as screenshots and merges them back into a report.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// A missing .env file is fine; the environment may already be set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		logger.InitializeAndConfigure()
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return RootCmd.Execute()
}

// withApp loads the configuration, builds the services and runs fn with them
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warnf("failed to close resources: %v", err)
		}
	}()

	if !quiet {
		subscribeProgress(cmd)
	}
	// runs before cancel so trailing events are still handled
	stopEvents := events.Start(ctx)
	defer stopEvents()

	return fn(ctx, app)
}

var progressOnce = make(map[*cobra.Command]bool)

// subscribeProgress prints lifecycle events on stderr
func subscribeProgress(cmd *cobra.Command) {
	root := cmd.Root()
	if progressOnce[root] {
		return
	}
	progressOnce[root] = true

	show := func(_ context.Context, e events.Event) error {
		subject := fmt.Sprintf("task %d", e.TaskIndex)
		if e.TaskKey != "" {
			subject = fmt.Sprintf("task %s", e.TaskKey)
		}
		switch e.Type {
		case events.EventAIJobCompleted:
			subject = fmt.Sprintf("ai job %d", e.AIJobID)
		case events.EventReportComposed:
			subject = fmt.Sprintf("report %d", e.ReportID)
		}
		if e.Message != "" {
			fmt.Fprintf(root.ErrOrStderr(), "%s: %s (%s)\n", subject, e.Type, e.Message)
			return nil
		}
		fmt.Fprintf(root.ErrOrStderr(), "%s: %s\n", subject, e.Type)
		return nil
	}
	for _, t := range []events.EventType{
		events.EventTaskRunning,
		events.EventTaskCompleted,
		events.EventTaskFailed,
		events.EventAIJobCompleted,
		events.EventReportComposed,
	} {
		events.Subscribe(t, show)
	}
}

// printJSON pretty prints v to the command output
func printJSON(cmd *cobra.Command, v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(prettyJSON))
	return nil
}

// parseID converts a positional argument to a record ID
func parseID(arg, what string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return uint(id), nil
}
