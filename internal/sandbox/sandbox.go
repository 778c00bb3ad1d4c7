// Package sandbox runs untrusted lab programs one at a time and captures
// their console output as a screenshot.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/labmate/labmate/internal/logger"
	"github.com/labmate/labmate/internal/types"
)

// Defaults used when Config leaves a field empty
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxCodeLength = 5000
	DefaultScriptName    = "main.py"
)

// Config configures a Sandbox
type Config struct {
	// Interpreter is the argv prefix; the script path is appended
	Interpreter []string
	// ScriptName is the file name the program is written to
	ScriptName    string
	Timeout       time.Duration
	MaxCodeLength int
	// WorkDir holds the per-run scratch directories
	WorkDir string
	// OutputDir receives the rendered screenshots
	OutputDir string
	// Env is added to the isolated environment of every run
	Env map[string]string
}

// Request is a single program to execute
type Request struct {
	Code      string
	Theme     types.Theme
	Title     string
	TaskIndex int
}

// Image is a rendered screenshot on local disk
type Image struct {
	Path   string
	Width  int
	Height int
	Size   int64
}

// Result is the evidence of one execution. Completed is false exactly when
// Err is set; a program that exits non-zero still completes.
type Result struct {
	Completed  bool
	Stdout     string
	Stderr     string
	Output     string
	ExitCode   int
	Duration   time.Duration
	Screenshot *Image
	Err        error
}

// Runner executes programs. Implementations never return a nil Result.
type Runner interface {
	Run(ctx context.Context, req Request) *Result
}

// Sandbox runs programs as isolated child processes
type Sandbox struct {
	cfg    Config
	policy *Policy
	screen *Renderer
}

// New creates a Sandbox, creating its directories if needed
func New(cfg Config) (*Sandbox, error) {
	if len(cfg.Interpreter) == 0 {
		return nil, types.NewError(types.KindValidation, "new sandbox", errors.New("interpreter is required"))
	}
	if cfg.ScriptName == "" {
		cfg.ScriptName = DefaultScriptName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxCodeLength <= 0 {
		cfg.MaxCodeLength = DefaultMaxCodeLength
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cfg.WorkDir, "labmate-screens")
	}
	for _, dir := range []string{cfg.WorkDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, types.NewError(types.KindEnvironment, "new sandbox", err)
		}
	}
	return &Sandbox{
		cfg:    cfg,
		policy: DefaultPolicy(cfg.MaxCodeLength),
		screen: NewRenderer(),
	}, nil
}

// Run executes req and never returns an error; failures are reported on the Result
func (s *Sandbox) Run(ctx context.Context, req Request) (res *Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = failed(types.NewError(types.KindEnvironment, "run", fmt.Errorf("sandbox panic: %v", r)))
		}
		res.Duration = time.Since(start)
	}()

	res = s.run(ctx, req)
	if res.Err != nil {
		res.Completed = false
		res.Screenshot = nil
	}
	return res
}

func (s *Sandbox) run(ctx context.Context, req Request) *Result {
	if err := s.policy.Check(req.Code); err != nil {
		return failed(err)
	}
	if err := ctx.Err(); err != nil {
		return failed(types.NewRetryableError(types.KindEnvironment, "run", err))
	}

	dir, err := os.MkdirTemp(s.cfg.WorkDir, "run-*")
	if err != nil {
		return failed(types.NewRetryableError(types.KindEnvironment, "prepare workdir", err))
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, s.cfg.ScriptName)
	if err := os.WriteFile(script, []byte(req.Code), 0o600); err != nil {
		return failed(types.NewRetryableError(types.KindEnvironment, "write program", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	argv := append(append([]string{}, s.cfg.Interpreter...), script)
	proc, err := runProcess(runCtx, argv, dir, buildIsolatedEnv(dir, s.cfg.Env))
	if err != nil {
		if errors.Is(err, errKilled) && ctx.Err() == nil {
			logger.WarnWithFields("execution timed out", map[string]interface{}{
				"task_index": req.TaskIndex,
				"timeout":    s.cfg.Timeout.String(),
			})
			return failed(types.NewRetryableError(types.KindEnvironment, "run",
				fmt.Errorf("%w after %s", types.ErrTimeout, s.cfg.Timeout)))
		}
		return failed(types.NewRetryableError(types.KindEnvironment, "run", err))
	}

	title := req.Title
	if title == "" {
		title = s.cfg.ScriptName
	}
	name := fmt.Sprintf("task-%03d-%s.png", req.TaskIndex, uuid.NewString())
	img, err := s.screen.Capture(ctx, Frame{
		Theme:    req.Theme,
		Title:    title,
		Code:     req.Code,
		Output:   proc.combined,
		ExitCode: proc.exitCode,
	}, filepath.Join(s.cfg.OutputDir, name))
	if err != nil {
		return failed(types.NewRetryableError(types.KindEnvironment, "capture screenshot", err))
	}

	return &Result{
		Completed:  true,
		Stdout:     proc.stdout,
		Stderr:     proc.stderr,
		Output:     proc.combined,
		ExitCode:   proc.exitCode,
		Screenshot: img,
	}
}

func failed(err error) *Result {
	return &Result{ExitCode: -1, Err: err}
}
