// Package fsm is a finite state machine specification and runtime.
//
// A Spec declares states, actions, effects and transitions, each optionally
// validated by a schema.Schema. New turns a Spec into a live Instance that
// owns exactly one StateValue, notifies subscribers of every transition and
// keeps the effects named in the current StateValue running:
//
//	spec := fsm.NewSpec("light")
//	spec.State("red")
//	spec.State("green")
//	spec.Action("next")
//	spec.Goto(fsm.TransitionDef{From: []string{"red"}, Actions: []string{"next"}}, "green")
//	spec.Initial(fsm.To("red"))
//
//	sm, _ := fsm.New(context.Background(), spec)
//	sm.Dispatch(fsm.NewAction("next"))
//
// Effects are reconciled after every transition: an effect starts when its
// id appears in the next StateValue, restarts when its args change and is
// cleaned up when its id disappears or the Instance is destroyed.
package fsm

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
)

const (
	// Create is dispatched once by New so initial effects flow through the
	// same machinery as any other transition.
	Create = "$create"
	// Destroy is dispatched once by Instance.Destroy before the terminal
	// record is delivered.
	Destroy = "$destroy"
	// Destroyed is the terminal sentinel state of a destroyed Instance.
	Destroyed = "$destroyed"
)

// StateValue is the whole observable value of a machine: the current state,
// its context and the args of every effect that should be running.
type StateValue struct {
	State   string         `json:"state" yaml:"state"`
	Context map[string]any `json:"context" yaml:"context"`
	Effects map[string]any `json:"effects" yaml:"effects"`
}

// To is the bare destination form of a StateValue: empty context, no effects.
func To(state string) StateValue {
	return StateValue{State: state, Context: map[string]any{}, Effects: map[string]any{}}
}

// Normalize returns a copy of value whose nil containers are replaced by empty ones.
func (value StateValue) Normalize() StateValue {
	next := StateValue{State: value.State, Context: maps.Clone(value.Context), Effects: maps.Clone(value.Effects)}
	if next.Context == nil {
		next.Context = map[string]any{}
	}
	if next.Effects == nil {
		next.Effects = map[string]any{}
	}
	return next
}

// Meta is stamped on an Action when it is applied.
type Meta struct {
	ID        string    `json:"id,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Action is a dispatched input, identified by Type.
type Action struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
	Meta   Meta           `json:"meta"`
}

func NewAction(actionType string, maybeFields ...map[string]any) Action {
	fields := map[string]any{}
	for _, extra := range maybeFields {
		maps.Copy(fields, extra)
	}
	return Action{Type: actionType, Fields: fields}
}

// Get returns the named field or nil.
func (action Action) Get(field string) any {
	return action.Fields[field]
}

func newActionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// TransitionRecord describes one committed transition. Records are shared
// with every subscriber and must be treated as read-only.
type TransitionRecord struct {
	Prev   StateValue `json:"prev"`
	Next   StateValue `json:"next"`
	Action Action     `json:"action"`
	At     time.Time  `json:"at"`
}

// Reducer computes the next StateValue. Returning To(id) selects a bare
// destination; nil Context or Effects are normalized to empty.
type Reducer func(prev StateValue, action Action) (StateValue, error)

// Handler starts an effect with its validated args. The returned cleanup, if
// any, is invoked exactly once when the effect stops.
type Handler func(ctx EffectContext, args any) (cleanup func(), err error)

// EffectContext is handed to every effect Handler.
type EffectContext struct {
	context.Context
	FSM      Machine
	EffectID string
	State    string
	Values   map[string]any
	Action   Action
}

// Dispatch sends action to the machine that started the effect.
func (ctx EffectContext) Dispatch(action Action) (*TransitionRecord, error) {
	return ctx.FSM.Dispatch(action)
}

// Listener is notified of every committed TransitionRecord.
type Listener interface {
	Notify(record TransitionRecord)
}

type funcListener struct {
	fn func(record TransitionRecord)
}

func (listener *funcListener) Notify(record TransitionRecord) {
	listener.fn(record)
}

// Listen wraps fn in a new Listener. Every call returns a distinct listener,
// so subscribing the result twice is a no-op while two Listen calls on the
// same func yield two subscriptions.
func Listen(fn func(record TransitionRecord)) Listener {
	return &funcListener{fn: fn}
}

// Machine is the contract every state container implements.
type Machine interface {
	ID() string
	State() string
	Value() StateValue
	Get(key string, maybeDefault ...any) any
	Dispatch(action Action) (*TransitionRecord, error)
	Subscribe(listener Listener) (unsubscribe func(), err error)
	Destroy() error
}
