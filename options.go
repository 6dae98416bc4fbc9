package fsm

import (
	"context"
	"log/slog"

	"github.com/stateforward/go-fsm/clock"
)

// Config holds the Spec behaviour that operators may want to toggle without
// code changes. It is loadable from the environment with config.Load.
type Config struct {
	// Exhaustive turns dispatches with no matching transition into errors.
	Exhaustive bool `env:"FSM_EXHAUSTIVE" envDefault:"false" yaml:"exhaustive"`
	// LogNoop logs ignored dispatches at debug level.
	LogNoop bool `env:"FSM_LOG_NOOP" envDefault:"false" yaml:"logNoop"`
}

type SpecOption func(spec *Spec)

func WithConfig(config Config) SpecOption {
	return func(spec *Spec) {
		spec.config = config
	}
}

func Exhaustive() SpecOption {
	return func(spec *Spec) {
		spec.config.Exhaustive = true
	}
}

func WithSpecLogger(logger *slog.Logger) SpecOption {
	return func(spec *Spec) {
		if logger != nil {
			spec.logger = logger
		}
	}
}

// Trace is invoked at the start of every runtime step; the returned func is
// invoked when the step ends, with the step's error if it failed.
type Trace func(ctx context.Context, step string, ids ...string) func(...any)

type Option func(sm *Instance)

// WithInitial overrides the Spec's initial StateValue. A different State
// replaces the default wholesale; the same (or empty) State merges Context
// and Effects keys over the default.
func WithInitial(value StateValue) Option {
	return func(sm *Instance) {
		sm.override = &value
	}
}

func WithTrace(trace Trace) Option {
	return func(sm *Instance) {
		sm.trace = trace
	}
}

func WithClock(c clock.Clock) Option {
	return func(sm *Instance) {
		if c != nil {
			sm.clock = c
		}
	}
}

// WithErrorHandler receives every error caught at the dispatch boundary. It
// is called on a separate goroutine, in the order the errors occurred.
func WithErrorHandler(handler func(err error)) Option {
	return func(sm *Instance) {
		sm.onError = handler
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(sm *Instance) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

func WithID(id string) Option {
	return func(sm *Instance) {
		if id != "" {
			sm.id = id
		}
	}
}
