package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labmate/labmate/internal/constants"
	"github.com/labmate/labmate/internal/db/models"
	"github.com/labmate/labmate/internal/extract"
)

const lab = "Lab 3\n1. Print a greeting\nprint(\"hello\")\n2. Explain what a loop does\nUse your own words.\n"

// setupEnv points the configuration at a scratch sqlite database and file store
func setupEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv(constants.EnvDBDriver, "sqlite")
	t.Setenv(constants.EnvDBDSN, filepath.Join(dir, "labmate.db"))
	t.Setenv(constants.EnvArtifactBackend, "file")
	t.Setenv(constants.EnvArtifactDir, filepath.Join(dir, "artifacts"))
	t.Setenv(constants.EnvInterpreter, "sh")
	t.Setenv(constants.EnvWorkDir, dir)
	t.Setenv(constants.EnvGoogleProject, "")
	t.Setenv(constants.EnvLogLevel, "error")
	return dir
}

// run executes the root command with args and returns what it printed
func run(t *testing.T, args ...string) (string, error) {
	outputBuf := &bytes.Buffer{}
	RootCmd.SetOut(outputBuf)
	RootCmd.SetErr(io.Discard)
	RootCmd.SetArgs(append(args, "--quiet", "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})
	err := RootCmd.Execute()
	return outputBuf.String(), err
}

// runWithProgress executes the root command with progress lines enabled and
// returns stdout and stderr
func runWithProgress(t *testing.T, args ...string) (string, string, error) {
	outputBuf, errBuf := &bytes.Buffer{}, &bytes.Buffer{}
	RootCmd.SetOut(outputBuf)
	RootCmd.SetErr(errBuf)
	RootCmd.SetArgs(append(args, "--quiet=false", "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})
	err := RootCmd.Execute()
	return outputBuf.String(), errBuf.String(), err
}

func writeLab(t *testing.T, dir string) string {
	path := filepath.Join(dir, "lab3.txt")
	require.NoError(t, os.WriteFile(path, []byte(lab), 0o600))
	return path
}

func TestExtractCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "extract", writeLab(t, dir))
	require.NoError(t, err)

	var result extract.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Tasks, 2)
	assert.Equal(t, 1, result.Tasks[0].Index)
	assert.Equal(t, "print(\"hello\")", result.Tasks[0].Code)
	assert.Empty(t, result.Tasks[1].Code)
	assert.False(t, result.NonSequential)
}

func TestExtractCommandRejectsMissingFile(t *testing.T) {
	_, err := run(t, "extract", filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestInvalidIDs(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "jobs", "run", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid upload id")

	_, err = run(t, "ai", "status", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ai job id")
}

func TestUploadRunAndCompose(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "documents", "upload", writeLab(t, dir), "--theme", "idle", "--insertion", "below_question")
	require.NoError(t, err)
	var upload models.Upload
	require.NoError(t, json.Unmarshal([]byte(out), &upload))
	require.NotZero(t, upload.ID)
	assert.Equal(t, "lab3.txt", upload.Filename)
	uploadID := strconv.FormatUint(uint64(upload.ID), 10)

	out, err = run(t, "jobs", "run", uploadID)
	require.NoError(t, err)
	var jobs jobListOutput
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs.Jobs, 2)

	// sh rejects the python line, which still counts as evidence
	first := jobs.Jobs[0]
	assert.Equal(t, string(models.StatusCompleted), first.Status)
	require.NotNil(t, first.ExitCode)
	assert.NotEmpty(t, first.Screenshot)
	assert.Equal(t, string(models.StatusPending), jobs.Jobs[1].Status)

	out, err = run(t, "compose", "jobs", uploadID)
	require.NoError(t, err)
	var report models.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, models.ReportSourceJobs, report.Source)
	assert.Len(t, report.ScreenshotOrder, 1)
	assert.Equal(t, "lab3-report.md", report.Filename)

	out, err = run(t, "compose", "list", uploadID)
	require.NoError(t, err)
	var reports []models.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	assert.Len(t, reports, 1)
}

func TestProgressIncludesTrailingEvents(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "documents", "upload", writeLab(t, dir))
	require.NoError(t, err)
	var upload models.Upload
	require.NoError(t, json.Unmarshal([]byte(out), &upload))
	uploadID := strconv.FormatUint(uint64(upload.ID), 10)

	_, progress, err := runWithProgress(t, "jobs", "run", uploadID)
	require.NoError(t, err)
	assert.Contains(t, progress, "task 1: task_running")
	assert.Contains(t, progress, "task 1: task_completed")

	// the report event is the last thing published before the command returns
	_, progress, err = runWithProgress(t, "compose", "jobs", uploadID)
	require.NoError(t, err)
	assert.Contains(t, progress, ": report_composed")
}

func TestAISubmitFromTasksFile(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "documents", "upload", writeLab(t, dir))
	require.NoError(t, err)
	var upload models.Upload
	require.NoError(t, json.Unmarshal([]byte(out), &upload))
	uploadID := strconv.FormatUint(uint64(upload.ID), 10)

	tasksFile := filepath.Join(dir, "tasks.json")
	require.NoError(t, os.WriteFile(tasksFile, []byte(`[
		{"key": "q1", "task_index": 1, "type": "code_execution", "suggested_code": "echo hi", "confidence": 0.9},
		{"key": "q2", "task_index": 2, "type": "answer_request", "confidence": 1, "confidence_scale": "percent", "follow_up": "Which loop?"}
	]`), 0o600))

	out, err = run(t, "ai", "submit", uploadID, "--tasks", tasksFile)
	require.NoError(t, err)
	var job aiJobOutput
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	require.Len(t, job.Tasks, 2)
	assert.Equal(t, "q1", job.Tasks[0].Key)
	assert.Equal(t, 90, job.Tasks[0].Confidence)
	assert.Equal(t, 1, job.Tasks[1].Confidence)
	assert.Equal(t, string(models.StatusPending), job.Status)
	jobID := strconv.FormatUint(uint64(job.ID), 10)

	out, err = run(t, "ai", "process", jobID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	require.Len(t, job.Tasks, 2)
	assert.Equal(t, string(models.StatusCompleted), job.Tasks[0].Status)
	assert.NotEmpty(t, job.Tasks[0].Screenshot)
	// without a model configured there is nobody to answer q2
	assert.Equal(t, string(models.StatusFailed), job.Tasks[1].Status)
	assert.Contains(t, job.Tasks[1].Error, "empty answer")

	// q2 still waits for its follow-up answer
	_, err = run(t, "compose", "ai", jobID)
	require.Error(t, err)

	_, err = run(t, "ai", "answer", jobID, "q2", "for loops")
	require.NoError(t, err)

	out, err = run(t, "compose", "ai", jobID)
	require.NoError(t, err)
	var report models.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"q1"}, report.ScreenshotOrder)

	out, err = run(t, "ai", "history", jobID, "q1")
	require.NoError(t, err)
	var history []aiTaskOutput
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	assert.Len(t, history, 1)
}

func TestAISubmitRejectsBadTasksFile(t *testing.T) {
	dir := setupEnv(t)
	tasksFile := filepath.Join(dir, "tasks.json")
	require.NoError(t, os.WriteFile(tasksFile, []byte(`[{"key": "q1", "suggested_insertion": "top"}]`), 0o600))

	_, err := run(t, "ai", "submit", "1", "--tasks", tasksFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid insertion point")

	require.NoError(t, os.WriteFile(tasksFile, []byte(`[{"key": "q1", "confidence": 1, "confidence_scale": "ratio"}]`), 0o600))
	_, err = run(t, "ai", "submit", "1", "--tasks", tasksFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid confidence scale")
}
