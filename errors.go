package fsm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stateforward/go-fsm/kinds"
)

var (
	ErrFrozen    = errors.New("spec is frozen")
	ErrDuplicate = errors.New("already registered")
	ErrUnknown   = errors.New("not registered")
	ErrReserved  = errors.New("reserved id")
	ErrMalformed = errors.New("malformed definition")
)

// DefinitionError reports a defect in the Spec itself.
type DefinitionError struct {
	Kind uint64
	ID   string
	Err  error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("definition: %s %q: %v", kinds.Name(e.Kind), e.ID, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// ValidationError reports a payload rejected by its schema. Err carries the
// schema layer's aggregated issues verbatim.
type ValidationError struct {
	Kind uint64
	ID   string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %q: %v", kinds.Name(e.Kind), e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NoTransitionError is returned instead of a no-op when the Spec is exhaustive.
type NoTransitionError struct {
	State  string
	Action string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition from state %q for action %q", e.State, e.Action)
}

// IllegalDestinationError reports a reducer that returned a state outside
// the destinations declared for its transition.
type IllegalDestinationError struct {
	State   string
	Action  string
	Target  string
	Allowed []string
}

func (e *IllegalDestinationError) Error() string {
	return fmt.Sprintf("illegal destination %q from state %q on action %q, allowed [%s]", e.Target, e.State, e.Action, strings.Join(e.Allowed, ", "))
}

// LifecycleError reports an operation on a destroyed Instance.
type LifecycleError struct {
	Op string
	ID string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s: instance %s is destroyed", e.Op, e.ID)
}

// HandlerError wraps a failure raised by user code (reducer, effect handler,
// cleanup or subscriber) while a dispatch was in flight.
type HandlerError struct {
	Kind   uint64
	ID     string
	Action string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s %q failed during %q: %v", kinds.Name(e.Kind), e.ID, e.Action, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

func panicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", recovered)
}

func IsDefinitionError(err error) bool {
	var e *DefinitionError
	return errors.As(err, &e)
}

func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsLifecycleError(err error) bool {
	var e *LifecycleError
	return errors.As(err, &e)
}
