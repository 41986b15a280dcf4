package engine

import "time"

// StepStatus describes how a step's execution ended.
type StepStatus string

const (
	// StatusSuccess: the step ran and exited zero.
	StatusSuccess StepStatus = "success"
	// StatusFailed: the step ran and exited non-zero.
	StatusFailed StepStatus = "failed"
	// StatusError: the backend could not run the step at all.
	StatusError StepStatus = "error"
	// StatusSkipped: the step never started because an earlier step halted
	// the pipeline or the deadline elapsed first.
	StatusSkipped StepStatus = "skipped"
	// StatusTimedOut: the pipeline deadline elapsed while the step was running.
	StatusTimedOut StepStatus = "timed_out"
)

// StepResult records the outcome of one step, in execution order.
type StepResult struct {
	ID         string     `json:"id,omitempty"`
	Image      string     `json:"image"`
	Status     StepStatus `json:"status"`
	ExitCode   int        `json:"exit_code"`
	StartedAt  time.Time  `json:"started_at,omitzero"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`
	Error      string     `json:"error,omitempty"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
}

// Result is the finalized outcome of a pipeline run: one StepResult per
// declared step, in declared order.
type Result struct {
	Steps      []StepResult `json:"steps"`
	Success    bool         `json:"success"`
	TimedOut   bool         `json:"timed_out"`
	Images     []string     `json:"images,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Status summarizes the run as a single word for listings and storage.
func (r *Result) Status() string {
	switch {
	case r.TimedOut:
		return "timed_out"
	case r.Success:
		return "success"
	default:
		return "failed"
	}
}

// finalize computes the overall success flag: every required (non
// best-effort) step ran to a zero exit and no timeout occurred. allowed
// maps step index to the step's AllowFailure flag.
func (r *Result) finalize(allowed []bool) {
	if r.TimedOut {
		r.Success = false
		return
	}
	for i, sr := range r.Steps {
		switch sr.Status {
		case StatusSuccess:
		case StatusFailed, StatusError:
			if !allowed[i] {
				r.Success = false
				return
			}
		default: // skipped steps only exist after a halt
			r.Success = false
			return
		}
	}
	r.Success = true
}
