// Package toolexec runs external tools (yt-dlp, ffprobe, ffmpeg, node) and
// captures their exit status and output.
//
// The Runner interface is the only way the rest of the module starts a
// subprocess, so tests substitute a fake and never need the real binaries.
// The default runner places each child in its own process group and kills the
// whole group when the supplied context ends, so an abandoned acquisition
// never leaves an orphaned download or encode behind.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"reembed/internal/services"
)

// Command describes one tool invocation.
type Command struct {
	Binary string
	Args   []string
	Stdin  io.Reader
	Dir    string
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Result captures a finished invocation. A non-zero ExitCode is reported here
// rather than as an error so callers can inspect output first.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Success reports whether the tool exited with status zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Contains reports whether needle appears in either output stream.
func (r Result) Contains(needle string) bool {
	return bytes.Contains(r.Stdout, []byte(needle)) || bytes.Contains(r.Stderr, []byte(needle))
}

// Runner starts a tool and waits for it to exit. Run returns an error only
// when the process could not be started or was interrupted by ctx.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

// ProcessError reports a tool that exited unsuccessfully.
type ProcessError struct {
	Binary   string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

// NewProcessError builds a ProcessError from a finished command.
func NewProcessError(cmd Command, result Result) *ProcessError {
	return &ProcessError{
		Binary:   cmd.Binary,
		Args:     append([]string(nil), cmd.Args...),
		ExitCode: result.ExitCode,
		Stdout:   string(result.Stdout),
		Stderr:   string(result.Stderr),
	}
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s exited with status %d", e.Binary, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString("\nstderr: ")
		b.WriteString(tail(stderr, 2048))
	}
	if stdout := strings.TrimSpace(e.Stdout); stdout != "" {
		b.WriteString("\nstdout: ")
		b.WriteString(tail(stdout, 1024))
	}
	return b.String()
}

// Unwrap classifies every process failure as an external tool error.
func (e *ProcessError) Unwrap() error {
	return services.ErrExternalTool
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// WaitDelay bounds how long output pipes are drained after the process
	// group is killed.
	WaitDelay time.Duration
}

// NewRunner returns the default process runner.
func NewRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 5 * time.Second}
}

// Run starts the command, captures both output streams, and waits for exit.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if strings.TrimSpace(c.Binary) == "" {
		return Result{}, errors.New("toolexec: empty binary")
	}
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcessGroup(cmd)
	cmd.WaitDelay = r.WaitDelay

	err := cmd.Run()
	result := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s interrupted: %w", c.Binary, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, services.Wrap(services.ErrExternalTool, "toolexec", "start", c.Binary, err)
}
