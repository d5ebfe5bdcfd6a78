package engine

import (
	"errors"
	"fmt"

	"github.com/openfroyo/schemaprov/pkg/remote"
)

// ErrorClass decides whether a failed step aborts the run.
type ErrorClass string

const (
	// ClassFatal aborts the run. Database and collection failures, and
	// anything unhandled, are fatal.
	ClassFatal ErrorClass = "fatal"

	// ClassRecoverable is logged and isolated. Attribute, index and seed
	// document failures are recoverable.
	ClassRecoverable ErrorClass = "recoverable"
)

// KindRun marks outcomes that belong to the run as a whole rather than to
// one remote resource.
const KindRun remote.Kind = "run"

// Sentinel errors, one per failure kind. A *StepError matches exactly one of
// them with errors.Is.
var (
	ErrDatabaseCreation   = errors.New("database creation failed")
	ErrCollectionCreation = errors.New("collection creation failed")
	ErrAttributeCreation  = errors.New("attribute creation failed")
	ErrIndexCreation      = errors.New("index creation failed")
	ErrSeedDocument       = errors.New("seed document insertion failed")
	ErrUnhandled          = errors.New("unhandled error")
)

// StepError is a classified failure of one provisioning step.
type StepError struct {
	// Kind is the resource kind the step tried to create.
	Kind remote.Kind `json:"kind"`

	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Resource identifies what the step tried to create.
	Resource string `json:"resource,omitempty"`

	// Err is the underlying error, usually a *remote.Error.
	Err error `json:"-"`

	sentinel error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %v", e.Class, e.sentinel, e.Resource, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Class, e.sentinel, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying error, so
// errors.Is(err, ErrIndexCreation) and errors.As(err, &remoteErr) both work.
func (e *StepError) Unwrap() []error {
	return []error{e.sentinel, e.Err}
}

// newStepError classifies err as a failure of a step of the given kind.
func newStepError(kind remote.Kind, resource string, err error) *StepError {
	return &StepError{
		Kind:     kind,
		Class:    ClassOf(kind),
		Resource: resource,
		Err:      err,
		sentinel: sentinelFor(kind),
	}
}

// newUnhandledError wraps a recovered panic value.
func newUnhandledError(resource string, recovered interface{}) *StepError {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return &StepError{
		Kind:     KindRun,
		Class:    ClassFatal,
		Resource: resource,
		Err:      err,
		sentinel: ErrUnhandled,
	}
}

// ClassOf returns the error class for failures of the given kind.
func ClassOf(kind remote.Kind) ErrorClass {
	switch kind {
	case remote.KindDatabase, remote.KindCollection, KindRun:
		return ClassFatal
	default:
		return ClassRecoverable
	}
}

func sentinelFor(kind remote.Kind) error {
	switch kind {
	case remote.KindDatabase:
		return ErrDatabaseCreation
	case remote.KindCollection:
		return ErrCollectionCreation
	case remote.KindAttribute:
		return ErrAttributeCreation
	case remote.KindIndex:
		return ErrIndexCreation
	case remote.KindDocument:
		return ErrSeedDocument
	default:
		return ErrUnhandled
	}
}

// IsFatal returns true if err is a fatal step error.
func IsFatal(err error) bool {
	var e *StepError
	if errors.As(err, &e) {
		return e.Class == ClassFatal
	}
	return false
}

// IsRecoverable returns true if err is a recoverable step error.
func IsRecoverable(err error) bool {
	var e *StepError
	if errors.As(err, &e) {
		return e.Class == ClassRecoverable
	}
	return false
}
