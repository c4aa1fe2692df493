// Package runner executes stage commands and commits their results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/logging"
	"github.com/ariel-frischer/stagefile/internal/stage"
)

// DefaultShell runs stage commands.
const DefaultShell = "sh"

// waitDelay bounds how long output pipes may outlive a killed command.
const waitDelay = 2 * time.Second

// SCM guards outputs against version control. *scm.Repo implements it.
type SCM interface {
	CheckOutputs(paths ...string) error
	Ignore(path string) (bool, error)
}

// CommandError is returned when a stage command exits unsuccessfully.
type CommandError struct {
	Stage    string
	Cmd      string
	ExitCode int
	TimedOut bool
	// Timeout is the limit that was exceeded when TimedOut is set.
	Timeout time.Duration
	Err     error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("stage %s: command %q timed out after %s", e.Stage, e.Cmd, e.Timeout)
	}
	return fmt.Sprintf("stage %s: command %q failed with exit code %d", e.Stage, e.Cmd, e.ExitCode)
}

// Unwrap returns the underlying exec error.
func (e *CommandError) Unwrap() error { return e.Err }

// Result describes one Reproduce call.
type Result struct {
	Stage *stage.Stage
	// Skipped is set when the stage was unchanged and nothing ran.
	Skipped bool
	// Reasons is why the stage ran; empty when forced.
	Reasons  []stage.Reason
	Duration time.Duration
}

// Runner executes and commits stages.
type Runner struct {
	Detector *stage.Detector
	// SCM is nil outside a repository.
	SCM     SCM
	Shell   string
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
	Log     *logging.Logger
}

// New creates a runner writing command output to the process streams.
func New(det *stage.Detector, scm SCM, log *logging.Logger) *Runner {
	return &Runner{
		Detector: det,
		SCM:      scm,
		Shell:    DefaultShell,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Log:      logging.OrNop(log).WithComponent("runner"),
	}
}

func (r *Runner) log() *logging.Logger { return logging.OrNop(r.Log) }

// Run checks inputs, executes the command in the stage working directory,
// then commits and saves the stage. A stage without a command is only
// committed.
func (r *Runner) Run(ctx context.Context, s *stage.Stage) error {
	if err := r.Detector.CheckInputs(ctx, s); err != nil {
		return err
	}
	if err := r.guard(s); err != nil {
		return err
	}

	if s.Command() != "" {
		if err := r.removeOutputs(s); err != nil {
			return err
		}
		if err := r.execute(ctx, s); err != nil {
			return err
		}
	}

	return r.commit(ctx, s)
}

// Commit records the current state of an already executed stage and saves it.
func (r *Runner) Commit(ctx context.Context, s *stage.Stage) error {
	if err := r.guard(s); err != nil {
		return err
	}
	return r.commit(ctx, s)
}

// Reproduce runs s when it changed, or unconditionally with force.
func (r *Runner) Reproduce(ctx context.Context, s *stage.Stage, force bool) (Result, error) {
	res := Result{Stage: s}

	if !force {
		report := r.Detector.Status(ctx, s)
		if !report.Changed() {
			res.Skipped = true
			r.log().Info("stage unchanged, skipping", map[string]interface{}{
				logging.FieldStage: s.Name(),
			})
			return res, nil
		}
		res.Reasons = report.Reasons
	}

	start := time.Now()
	err := r.Run(ctx, s)
	res.Duration = time.Since(start)
	return res, err
}

func (r *Runner) commit(ctx context.Context, s *stage.Stage) error {
	if err := r.Detector.Commit(ctx, s); err != nil {
		return err
	}
	if err := r.ignoreCached(s); err != nil {
		return err
	}
	if s.Path == "" {
		return nil
	}
	return stage.Dump(s, s.Path)
}

func (r *Runner) guard(s *stage.Stage) error {
	if r.SCM == nil {
		return nil
	}
	var paths []string
	for _, out := range s.Outs {
		if backend.IsRemote(out.Path) {
			continue
		}
		paths = append(paths, s.ResolvePath(out.Path))
	}
	if len(paths) == 0 {
		return nil
	}
	if err := r.SCM.CheckOutputs(paths...); err != nil {
		return fmt.Errorf("stage %s: %w", s.Name(), err)
	}
	return nil
}

func (r *Runner) ignoreCached(s *stage.Stage) error {
	if r.SCM == nil {
		return nil
	}
	for _, out := range s.Outs {
		if !out.Cache || backend.IsRemote(out.Path) {
			continue
		}
		if _, err := r.SCM.Ignore(s.ResolvePath(out.Path)); err != nil {
			return fmt.Errorf("ignoring output %s: %w", out.Path, err)
		}
	}
	return nil
}

// removeOutputs deletes stale local outputs so the command starts clean.
func (r *Runner) removeOutputs(s *stage.Stage) error {
	for _, out := range s.Outs {
		if backend.IsRemote(out.Path) {
			continue
		}
		p := s.ResolvePath(out.Path)
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("removing output %s: %w", out.Path, err)
		}
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, s *stage.Stage) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", s.Command())
	cmd.Dir = s.WorkDir()
	cmd.Env = buildEnv(s)
	cmd.Stdout = writerOrDiscard(r.Stdout)
	cmd.Stderr = writerOrDiscard(r.Stderr)
	cmd.WaitDelay = waitDelay

	r.log().Info("running stage", map[string]interface{}{
		logging.FieldStage: s.Name(),
		"cmd":              s.Command(),
		"dir":              cmd.Dir,
	})

	if err := cmd.Run(); err != nil {
		cmdErr := &CommandError{Stage: s.Name(), Cmd: s.Command(), ExitCode: -1, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cmdErr.TimedOut = true
			cmdErr.Timeout = r.Timeout
		}
		return cmdErr
	}
	return nil
}

func buildEnv(s *stage.Stage) []string {
	env := os.Environ()
	if s.Path != "" {
		if abs, err := filepath.Abs(s.Path); err == nil {
			env = append(env, "STAGEFILE_STAGE="+abs)
		}
	}
	return env
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
