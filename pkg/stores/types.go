package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/openfroyo/schemaprov/pkg/engine"
	"github.com/openfroyo/schemaprov/pkg/runlog"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus is the final status of a recorded run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded provisioning run.
type Run struct {
	ID                  string       `json:"id"`
	DatabaseID          string       `json:"database_id"`
	Trigger             string       `json:"trigger"`
	Status              RunStatus    `json:"status"`
	ForceRecreate       bool         `json:"force_recreate"`
	CollectionsCreated  int          `json:"collections_created"`
	IndexesCreated      int          `json:"indexes_created"`
	DefaultDataInserted bool         `json:"default_data_inserted"`
	Tally               engine.Tally `json:"tally"`
	Error               *string      `json:"error,omitempty"`
	StartedAt           time.Time    `json:"started_at"`
	CompletedAt         time.Time    `json:"completed_at"`

	// Steps is filled by GetRun only.
	Steps []Step `json:"steps,omitempty"`
}

// Step is one recorded step outcome.
type Step struct {
	Seq      int           `json:"seq"`
	Kind     string        `json:"kind"`
	Resource string        `json:"resource"`
	Status   string        `json:"status"`
	Error    *string       `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// LogEntry is one recorded execution log entry.
type LogEntry struct {
	Seq int `json:"seq"`
	runlog.Entry
}

// Record is everything SaveRun persists for one run.
type Record struct {
	Run Run
	Log []runlog.Entry
}

// NewRecord converts an engine result for storage.
func NewRecord(result *engine.RunResult, trigger string) Record {
	run := Run{
		ID:                  result.RunID,
		DatabaseID:          result.DatabaseID,
		Trigger:             trigger,
		Status:              RunStatus(result.Status()),
		ForceRecreate:       result.ForceRecreate,
		CollectionsCreated:  result.CollectionsCreated,
		IndexesCreated:      result.IndexesCreated,
		DefaultDataInserted: result.DefaultDataInserted,
		Tally:               result.Tally,
		StartedAt:           result.StartedAt,
		CompletedAt:         result.CompletedAt,
	}
	if result.Error != nil {
		msg := result.Error.Error()
		run.Error = &msg
	}
	for i, o := range result.Steps {
		step := Step{
			Seq:      i,
			Kind:     string(o.Kind),
			Resource: o.Resource,
			Status:   string(o.Status),
			Duration: o.Duration,
		}
		if o.Err != nil {
			msg := o.Err.Error()
			step.Error = &msg
		}
		run.Steps = append(run.Steps, step)
	}
	return Record{Run: run, Log: result.Log}
}

// Store persists run history.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	SaveRun(ctx context.Context, rec Record) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	GetRunLog(ctx context.Context, id string) ([]LogEntry, error)
	DeleteRun(ctx context.Context, id string) error

	// Utility
	HealthCheck(ctx context.Context) error
}

func encodeTally(t engine.Tally) (string, error) {
	if t == nil {
		return "{}", nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeTally(s string) (engine.Tally, error) {
	t := engine.Tally{}
	if s == "" {
		return t, nil
	}
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, err
	}
	return t, nil
}
