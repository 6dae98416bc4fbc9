package fsm

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/stateforward/go-fsm/embedded"
	"github.com/stateforward/go-fsm/kinds"
	"github.com/stateforward/go-fsm/pkg/set"
	"github.com/stateforward/go-fsm/schema"
)

/******* Element *******/

type element struct {
	kind   uint64
	id     string
	schema schema.Schema
}

func (element *element) Kind() uint64 {
	if element == nil {
		return 0
	}
	return element.kind
}

func (element *element) Id() string {
	if element == nil {
		return ""
	}
	return element.id
}

// parse validates value against the element's schema; a nil schema accepts anything.
func (element *element) parse(value any) (any, error) {
	if element.schema == nil {
		return value, nil
	}
	output, err := element.schema.Parse(value)
	if err != nil {
		return nil, &ValidationError{Kind: element.kind, ID: element.id, Err: err}
	}
	return output, nil
}

/******* Effect *******/

type effect struct {
	element
	handler Handler
}

/******* Transition *******/

type key struct {
	state  string
	action string
}

type transition struct {
	element
	source  string
	action  string
	reducer Reducer
	targets []string
	allowed set.Set[string]
}

// TransitionDef names the (From x Actions) pairs a transition covers and the
// destinations its reducer may reach.
type TransitionDef struct {
	From    []string `yaml:"from"`
	Actions []string `yaml:"actions"`
	To      []string `yaml:"to,omitempty"`
}

/******* Spec *******/

type Spec struct {
	element
	config      Config
	logger      *slog.Logger
	states      map[string]*element
	stateOrder  []string
	actions     map[string]*element
	effects     map[string]*effect
	transitions map[key]*transition
	order       []key
	initial     *StateValue
	frozen      atomic.Bool
}

func NewSpec(id string, opts ...SpecOption) *Spec {
	spec := &Spec{
		element:     element{kind: kinds.Spec, id: id},
		logger:      slog.Default(),
		states:      map[string]*element{},
		actions:     map[string]*element{},
		effects:     map[string]*effect{},
		transitions: map[key]*transition{},
	}
	for _, opt := range opts {
		opt(spec)
	}
	for _, internal := range []string{Create, Destroy} {
		spec.actions[internal] = &element{kind: kinds.Internal, id: internal}
	}
	return spec
}

func (spec *Spec) fail(kind uint64, id string, err error) error {
	spec.logger.Error("fsm definition failed", "spec", spec.id, "kind", kinds.Name(kind), "id", id, "error", err)
	return &DefinitionError{Kind: kind, ID: id, Err: err}
}

func (spec *Spec) check(kind uint64, id string, exists bool) error {
	if spec.frozen.Load() {
		return spec.fail(kind, id, ErrFrozen)
	}
	if id == "" {
		return spec.fail(kind, id, fmt.Errorf("%w: empty id", ErrMalformed))
	}
	if id == Destroyed || strings.HasPrefix(id, "$") {
		return spec.fail(kind, id, ErrReserved)
	}
	if exists {
		return spec.fail(kind, id, ErrDuplicate)
	}
	return nil
}

func first[T any](maybe []T) T {
	var zero T
	if len(maybe) > 0 {
		return maybe[0]
	}
	return zero
}

// State registers a state whose context must satisfy the optional schema.
func (spec *Spec) State(id string, maybeSchema ...schema.Schema) error {
	if err := spec.check(kinds.State, id, spec.states[id] != nil); err != nil {
		return err
	}
	spec.states[id] = &element{kind: kinds.State, id: id, schema: first(maybeSchema)}
	spec.stateOrder = append(spec.stateOrder, id)
	return nil
}

// Action registers an action whose fields must satisfy the optional schema.
func (spec *Spec) Action(id string, maybeSchema ...schema.Schema) error {
	if err := spec.check(kinds.Action, id, spec.actions[id] != nil); err != nil {
		return err
	}
	spec.actions[id] = &element{kind: kinds.Action, id: id, schema: first(maybeSchema)}
	return nil
}

// Effect registers a handler whose args must satisfy the optional schema.
func (spec *Spec) Effect(id string, handler Handler, maybeSchema ...schema.Schema) error {
	if err := spec.check(kinds.Effect, id, spec.effects[id] != nil); err != nil {
		return err
	}
	if handler == nil {
		return spec.fail(kinds.Effect, id, fmt.Errorf("%w: nil handler", ErrMalformed))
	}
	spec.effects[id] = &effect{
		element: element{kind: kinds.Effect, id: id, schema: first(maybeSchema)},
		handler: handler,
	}
	return nil
}

// Transition installs reducer for every (state, action) pair of def.From x
// def.Actions. Every pair is checked before any is inserted, so a failed
// call leaves the Spec untouched.
func (spec *Spec) Transition(def TransitionDef, reducer Reducer) error {
	return spec.transition(kinds.Transition, def, reducer)
}

// Goto installs the bare destination form: every pair moves to target with
// an empty context and no effects, and target is the only reachable state.
func (spec *Spec) Goto(def TransitionDef, target string) error {
	if len(def.To) > 0 && !slices.Equal(def.To, []string{target}) {
		return spec.fail(kinds.Shorthand, target, fmt.Errorf("%w: to %v conflicts with target %q", ErrMalformed, def.To, target))
	}
	def.To = []string{target}
	return spec.transition(kinds.Shorthand, def, func(StateValue, Action) (StateValue, error) {
		return To(target), nil
	})
}

func (spec *Spec) transition(kind uint64, def TransitionDef, reducer Reducer) error {
	name := fmt.Sprintf("%v x %v", def.From, def.Actions)
	if spec.frozen.Load() {
		return spec.fail(kind, name, ErrFrozen)
	}
	if reducer == nil {
		return spec.fail(kind, name, fmt.Errorf("%w: nil reducer", ErrMalformed))
	}
	if len(def.From) == 0 || len(def.Actions) == 0 || len(def.To) == 0 {
		return spec.fail(kind, name, fmt.Errorf("%w: from, actions and to are required", ErrMalformed))
	}
	for _, id := range def.From {
		if spec.states[id] == nil {
			return spec.fail(kinds.State, id, ErrUnknown)
		}
	}
	for _, id := range def.To {
		if spec.states[id] == nil {
			return spec.fail(kinds.State, id, ErrUnknown)
		}
	}
	for _, id := range def.Actions {
		if spec.actions[id] == nil {
			return spec.fail(kinds.Action, id, ErrUnknown)
		}
	}
	pairs := make([]key, 0, len(def.From)*len(def.Actions))
	seen := set.New[key]()
	for _, state := range def.From {
		for _, action := range def.Actions {
			pair := key{state: state, action: action}
			if spec.transitions[pair] != nil || !seen.Add(pair) {
				return spec.fail(kind, state+"/"+action, ErrDuplicate)
			}
			pairs = append(pairs, pair)
		}
	}
	targets := []string{}
	for _, target := range def.To {
		if !slices.Contains(targets, target) {
			targets = append(targets, target)
		}
	}
	for _, pair := range pairs {
		spec.transitions[pair] = &transition{
			element: element{kind: kind, id: pair.state + "/" + pair.action},
			source:  pair.state,
			action:  pair.action,
			reducer: reducer,
			targets: targets,
			allowed: set.New(targets...),
		}
		spec.order = append(spec.order, pair)
	}
	return nil
}

// Initial validates and stores the default StateValue.
func (spec *Spec) Initial(value StateValue) error {
	if spec.frozen.Load() {
		return spec.fail(kinds.Initial, value.State, ErrFrozen)
	}
	valid, err := spec.validate(value)
	if err != nil {
		spec.logger.Error("fsm initial state rejected", "spec", spec.id, "state", value.State, "error", err)
		return err
	}
	spec.initial = &valid
	return nil
}

// validate normalizes value and checks it against the state and effect
// schemas, returning the parsed outputs.
func (spec *Spec) validate(value StateValue) (StateValue, error) {
	value = value.Normalize()
	state, ok := spec.states[value.State]
	if !ok {
		return value, &DefinitionError{Kind: kinds.State, ID: value.State, Err: ErrUnknown}
	}
	output, err := state.parse(value.Context)
	if err != nil {
		return value, err
	}
	if output != nil {
		values, ok := output.(map[string]any)
		if !ok {
			return value, &ValidationError{Kind: kinds.State, ID: state.id, Err: fmt.Errorf("context must be a record, got %T", output)}
		}
		value.Context = values
	}
	for _, id := range slices.Sorted(maps.Keys(value.Effects)) {
		effect, ok := spec.effects[id]
		if !ok {
			return value, &DefinitionError{Kind: kinds.Effect, ID: id, Err: ErrUnknown}
		}
		args, err := effect.parse(value.Effects[id])
		if err != nil {
			return value, err
		}
		value.Effects[id] = args
	}
	return value, nil
}

func (spec *Spec) lookup(state, action string) *transition {
	return spec.transitions[key{state: state, action: action}]
}

// Freeze forbids further registration. New freezes the Spec it is given.
func (spec *Spec) Freeze() {
	spec.frozen.Store(true)
}

func (spec *Spec) Frozen() bool {
	return spec.frozen.Load()
}

func (spec *Spec) Config() Config {
	return spec.config
}

// InitialValue returns a copy of the default StateValue.
func (spec *Spec) InitialValue() (StateValue, bool) {
	if spec.initial == nil {
		return StateValue{}, false
	}
	return spec.initial.Normalize(), true
}

func (spec *Spec) InitialState() string {
	if spec.initial == nil {
		return ""
	}
	return spec.initial.State
}

func (spec *Spec) States() []string {
	return slices.Clone(spec.stateOrder)
}

// Edges lists every (state, action) -> destination arc in registration order.
func (spec *Spec) Edges() []embedded.Edge {
	edges := []embedded.Edge{}
	for _, pair := range spec.order {
		transition := spec.transitions[pair]
		for _, target := range transition.targets {
			edges = append(edges, embedded.Edge{
				Kind:   transition.kind,
				Source: transition.source,
				Action: transition.action,
				Target: target,
			})
		}
	}
	return edges
}
