// Package backfill runs the external history loader before live ingestion.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/zeromicro/go-zero/core/logx"
)

// Job describes one backfill run.
type Job struct {
	Selector   string
	Days       int
	ConfigPath string
}

// Runner executes a job and reports the process exit code.
type Runner interface {
	Run(ctx context.Context, job Job) (exitCode int, err error)
}

// ExitError is a non-zero exit of the backfill job.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("backfill: job exited with code %d", e.Code)
}

// ExecRunner spawns `<Binary> backfill <selector> --days N [--conf path]`.
type ExecRunner struct {
	Binary string
	Stdout io.Writer
	Stderr io.Writer
}

// Args is the argument list passed to the binary.
func (r ExecRunner) Args(job Job) []string {
	args := []string{"backfill", job.Selector, "--days", strconv.Itoa(job.Days)}
	if job.ConfigPath != "" {
		args = append(args, "--conf", job.ConfigPath)
	}
	return args
}

// Run starts the process with inherited output and waits for it.
func (r ExecRunner) Run(ctx context.Context, job Job) (int, error) {
	bin := r.Binary
	if bin == "" {
		self, err := os.Executable()
		if err != nil {
			return -1, fmt.Errorf("backfill: resolve binary: %w", err)
		}
		bin = self
	}
	cmd := exec.CommandContext(ctx, bin, r.Args(job)...)
	cmd.Stdout, cmd.Stderr = r.Stdout, r.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitCode(exitErr), nil
	}
	if err != nil {
		return -1, fmt.Errorf("backfill: run %s: %w", bin, err)
	}
	return 0, nil
}

// exitCode follows the shell convention of 128+signal for a child killed
// by a signal, where ExitCode reports -1.
func exitCode(err *exec.ExitError) int {
	if code := err.ExitCode(); code >= 0 {
		return code
	}
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return 1
}

// Coordinator gates ingestion on a successful backfill.
type Coordinator struct {
	Runner Runner
}

// Run blocks until the job finishes. A non-zero exit is returned as
// *ExitError carrying the code unchanged; a negative code from a Runner
// becomes 1.
func (c *Coordinator) Run(ctx context.Context, job Job) error {
	if job.Days < 1 {
		job.Days = 1
	}
	logx.WithContext(ctx).Infof("backfill: fetching %d day(s) of %s", job.Days, job.Selector)
	code, err := c.Runner.Run(ctx, job)
	if err != nil {
		return err
	}
	if code < 0 {
		code = 1
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	logx.WithContext(ctx).Infof("backfill: %s done", job.Selector)
	return nil
}
