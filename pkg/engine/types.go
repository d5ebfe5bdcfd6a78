package engine

import (
	"time"

	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/runlog"
)

// StepStatus is the result of one provisioning step.
type StepStatus string

const (
	// StepCreated means the remote created the resource.
	StepCreated StepStatus = "created"

	// StepExists means the remote answered with a conflict: the resource was
	// already there. This is success.
	StepExists StepStatus = "exists"

	// StepFailed means the call failed with any other error.
	StepFailed StepStatus = "failed"

	// StepSkipped means the step was not attempted.
	StepSkipped StepStatus = "skipped"
)

// StepOutcome records one attempted step.
type StepOutcome struct {
	Kind     remote.Kind   `json:"kind"`
	Resource string        `json:"resource"`
	Status   StepStatus    `json:"status"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the step left the resource in place.
func (o StepOutcome) Succeeded() bool {
	return o.Status == StepCreated || o.Status == StepExists
}

// Counts aggregates outcomes of one resource kind.
type Counts struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
}

// Tally is the per-kind summary of a run. Unlike the legacy counters on
// RunResult it counts every kind the same way.
type Tally map[remote.Kind]Counts

// NewTally reduces outcomes into a Tally.
func NewTally(outcomes []StepOutcome) Tally {
	t := make(Tally)
	for _, o := range outcomes {
		c := t[o.Kind]
		switch o.Status {
		case StepCreated:
			c.Created++
		case StepExists:
			c.Existing++
		case StepFailed:
			c.Failed++
		}
		t[o.Kind] = c
	}
	return t
}

// RunResult is the structured outcome of one run.
type RunResult struct {
	// RunID identifies the run in logs, traces and the run store.
	RunID string

	DatabaseID   string
	DatabaseName string

	// Success is decided by Verdict over Steps.
	Success bool

	// ForceRecreate echoes the request flag.
	ForceRecreate bool

	// CollectionsCreated counts collections that were created or already
	// existed.
	CollectionsCreated int

	// IndexesCreated counts only indexes the remote freshly created.
	IndexesCreated int

	// DefaultDataInserted is the seed loader's result. It never affects
	// Success.
	DefaultDataInserted bool

	// Steps lists every attempted step in execution order.
	Steps []StepOutcome

	// Tally summarizes Steps per resource kind.
	Tally Tally

	// Log is the run's execution log.
	Log []runlog.Entry

	// Error is the fatal error when Success is false.
	Error error

	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns how long the run took.
func (r *RunResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Status returns "succeeded" or "failed".
func (r *RunResult) Status() string {
	if r.Success {
		return "succeeded"
	}
	return "failed"
}

// Verdict is the run's success policy: a run fails if and only if a step of
// a fatal kind failed. It returns the first such error, or nil.
func Verdict(outcomes []StepOutcome) error {
	for _, o := range outcomes {
		if o.Status == StepFailed && ClassOf(o.Kind) == ClassFatal {
			if o.Err != nil {
				return o.Err
			}
			return newStepError(o.Kind, o.Resource, ErrUnhandled)
		}
	}
	return nil
}
