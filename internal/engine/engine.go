// Package engine executes resolved pipelines: steps run strictly in
// declared order against a backend, under a single wall-clock deadline,
// and every attempted step is recorded in the run's Result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/conveyor-ci/conveyor/internal/backend"
	"github.com/conveyor-ci/conveyor/internal/config"
	"github.com/conveyor-ci/conveyor/internal/subst"
)

// TimeoutError is the terminal error for a run that exceeded its
// wall-clock budget. The partial Result is still returned alongside it.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pipeline timed out after %s", e.Timeout)
}

// Engine drives one pipeline at a time. Each Run owns its own resolver
// and Result; an Engine may be shared across runs but never interleaves
// them.
type Engine struct {
	backend  backend.Backend
	progress io.Writer // live progress output; nil = silent
}

// New creates an Engine that executes steps against b.
func New(b backend.Backend) *Engine {
	return &Engine{backend: b}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Engine) SetProgress(w io.Writer) {
	e.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (e *Engine) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// RunOpts configures a pipeline run.
type RunOpts struct {
	// Overrides replace declared substitution defaults for this run.
	Overrides map[string]string
	// Timeout, when non-zero, replaces the pipeline's declared timeout.
	Timeout time.Duration
}

// Run resolves and executes p. Substitution failures surface before any
// step runs. On timeout the partial Result is returned together with a
// *TimeoutError; on a step failure the Result alone carries the outcome
// (Success=false) and err is nil.
func (e *Engine) Run(ctx context.Context, p *config.Pipeline, opts RunOpts) (*Result, error) {
	resolver, err := subst.NewResolver(p.Substitutions, opts.Overrides)
	if err != nil {
		return nil, err
	}
	resolved, err := resolver.ResolvePipeline(p)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		if timeout, err = p.TimeoutDuration(); err != nil {
			return nil, err
		}
	}

	res := &Result{StartedAt: time.Now()}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logf("running %d step(s), timeout %s", len(resolved.Steps), timeout)

	halted := false
	for i, step := range resolved.Steps {
		if halted || ctx.Err() != nil {
			if !halted && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// Deadline fired between steps, or the previous step ran
				// past it but completed on its own (its result stands).
				// The remaining steps are never attempted.
				res.TimedOut = true
			}
			halted = true
			res.Steps = append(res.Steps, StepResult{
				ID:       step.ID,
				Image:    step.Name,
				Status:   StatusSkipped,
				ExitCode: -1,
			})
			continue
		}

		e.logf("step %d/%d: %s", i+1, len(resolved.Steps), stepLabel(step))
		sr := e.runStep(ctx, step)
		res.Steps = append(res.Steps, sr)

		switch sr.Status {
		case StatusTimedOut:
			res.TimedOut = true
			halted = true
			e.logf("step %d/%d timed out", i+1, len(resolved.Steps))
		case StatusFailed, StatusError:
			if step.AllowFailure {
				e.logf("step %d/%d failed (best-effort, continuing)", i+1, len(resolved.Steps))
			} else {
				halted = true
				e.logf("step %d/%d failed — halting", i+1, len(resolved.Steps))
			}
		}
	}

	// A final step that outlived the deadline has no next iteration to
	// flag the overrun.
	if !halted && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}

	res.FinishedAt = time.Now()
	res.Images = resolved.Images

	allowed := make([]bool, len(resolved.Steps))
	for i, s := range resolved.Steps {
		allowed[i] = s.AllowFailure
	}
	res.finalize(allowed)

	if res.TimedOut {
		return res, &TimeoutError{Timeout: timeout}
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return res, err // caller cancelled the run
	}
	return res, nil
}

// runStep executes a single step and records its outcome. It never
// returns an error: backend invocation failures become StatusError and
// propagate through the failure policy like non-zero exits.
func (e *Engine) runStep(ctx context.Context, step config.Step) StepResult {
	sr := StepResult{
		ID:        step.ID,
		Image:     step.Name,
		StartedAt: time.Now(),
	}

	var stdout, stderr strings.Builder
	code, err := e.backend.Execute(ctx, backend.Request{
		Image:      step.Name,
		Args:       step.Args,
		Env:        step.Env,
		Dir:        step.Dir,
		Entrypoint: step.Entrypoint,
		Stdout:     &stdout,
		Stderr:     &stderr,
	})

	sr.FinishedAt = time.Now()
	sr.Stdout = stdout.String()
	sr.Stderr = stderr.String()

	if err != nil {
		// An interrupted step is timed_out only when the run's deadline
		// caused the interruption. A backend that ignores cancellation
		// and completes returns no error; its real result stands and the
		// overrun is handled by the run loop.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			sr.Status = StatusTimedOut
			sr.ExitCode = -1
			return sr
		}
		sr.Status = StatusError
		sr.ExitCode = -1
		sr.Error = err.Error()
		return sr
	}
	sr.ExitCode = code
	if code != 0 {
		sr.Status = StatusFailed
		return sr
	}
	sr.Status = StatusSuccess
	return sr
}

// stepLabel identifies a step in progress output: its ID when set,
// otherwise its image reference.
func stepLabel(step config.Step) string {
	if step.ID != "" {
		return step.ID
	}
	return step.Name
}
