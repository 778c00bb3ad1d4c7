package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"
)

const defaultPath = "/usr/local/bin:/usr/bin:/bin"

var errKilled = errors.New("process killed")

type process struct {
	stdout   string
	stderr   string
	combined string
	exitCode int
}

// lockedBuffer interleaves stdout and stderr in write order
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// pipeGrace bounds how long output is drained after the program exits or is
// killed. Descendants that escaped the process group can hold the pipes open.
const pipeGrace = 250 * time.Millisecond

// runProcess starts argv in its own process group and waits for it. When ctx
// is done the whole group is killed and errKilled is returned; partial output
// is discarded. A non-zero exit is not an error.
func runProcess(ctx context.Context, argv []string, dir string, env []string) (*process, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = pipeGrace

	var stdout, stderr bytes.Buffer
	var combined lockedBuffer
	cmd.Stdout = io.MultiWriter(&stdout, &combined)
	cmd.Stderr = io.MultiWriter(&stderr, &combined)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	err := cmd.Wait()

	state := cmd.ProcessState
	if state == nil {
		return nil, fmt.Errorf("failed to execute %s: %w", argv[0], err)
	}
	// a program that exited on its own finished, even if the deadline passed
	// while its output was still being drained
	if !state.Exited() && ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", errKilled, ctx.Err())
	}
	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to execute %s: %w", argv[0], err)
		}
	}

	return &process{
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		combined: combined.String(),
		exitCode: state.ExitCode(),
	}, nil
}

// buildIsolatedEnv starts from an empty environment; the host's variables
// are never inherited.
func buildIsolatedEnv(home string, extra map[string]string) []string {
	vars := map[string]string{
		"PATH":                    defaultPath,
		"HOME":                    home,
		"LANG":                    "C.UTF-8",
		"PYTHONUNBUFFERED":        "1",
		"PYTHONDONTWRITEBYTECODE": "1",
	}
	for k, v := range extra {
		vars[k] = v
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
