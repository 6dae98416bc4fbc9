package fsm

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/stateforward/go-fsm/kinds"
	"github.com/stateforward/go-fsm/pkg/set"
	"github.com/stateforward/go-fsm/schema"
)

// Document is the bulk form of a Spec. Func-valued fields cannot be written
// in YAML; ParseDocument resolves the *Ref names through a Registry.
type Document struct {
	States      []StateDef      `yaml:"states"`
	Actions     []ActionDef     `yaml:"actions"`
	Effects     []EffectDef     `yaml:"effects"`
	Transitions []TransitionDoc `yaml:"transitions"`
	Initial     *StateValue     `yaml:"initial"`
}

type StateDef struct {
	ID        string        `yaml:"id"`
	SchemaRef string        `yaml:"schema,omitempty"`
	Schema    schema.Schema `yaml:"-"`
}

type ActionDef struct {
	ID        string        `yaml:"id"`
	SchemaRef string        `yaml:"schema,omitempty"`
	Schema    schema.Schema `yaml:"-"`
}

type EffectDef struct {
	ID         string        `yaml:"id"`
	SchemaRef  string        `yaml:"schema,omitempty"`
	HandlerRef string        `yaml:"handler,omitempty"`
	Schema     schema.Schema `yaml:"-"`
	Handler    Handler       `yaml:"-"`
}

// TransitionDoc carries either a Reducer or a bare Target, never both.
type TransitionDoc struct {
	TransitionDef `yaml:",inline"`
	Target        string  `yaml:"target,omitempty"`
	ReducerRef    string  `yaml:"reducer,omitempty"`
	Reducer       Reducer `yaml:"-"`
}

// Registry resolves the names used by a YAML document.
type Registry struct {
	Schemas  map[string]schema.Schema
	Reducers map[string]Reducer
	Handlers map[string]Handler
	// Placeholders resolves unknown names to inert stand-ins instead of
	// failing, for tools that only inspect the structure of a document.
	Placeholders bool
}

// ParseDocument decodes a YAML document and resolves its references.
func ParseDocument(data []byte, registry Registry) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, &DefinitionError{Kind: kinds.Spec, Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}
	var errs []error
	resolveSchema := func(kind uint64, ref string) schema.Schema {
		if ref == "" {
			return nil
		}
		if s, ok := registry.Schemas[ref]; ok {
			return s
		}
		if registry.Placeholders {
			return schema.Any()
		}
		errs = append(errs, &DefinitionError{Kind: kind, ID: ref, Err: fmt.Errorf("schema %w", ErrUnknown)})
		return nil
	}
	for i := range doc.States {
		doc.States[i].Schema = resolveSchema(kinds.State, doc.States[i].SchemaRef)
	}
	for i := range doc.Actions {
		doc.Actions[i].Schema = resolveSchema(kinds.Action, doc.Actions[i].SchemaRef)
	}
	for i := range doc.Effects {
		def := &doc.Effects[i]
		def.Schema = resolveSchema(kinds.Effect, def.SchemaRef)
		ref := def.HandlerRef
		if ref == "" {
			ref = def.ID
		}
		if handler, ok := registry.Handlers[ref]; ok {
			def.Handler = handler
		} else if registry.Placeholders {
			def.Handler = func(EffectContext, any) (func(), error) { return nil, nil }
		} else {
			errs = append(errs, &DefinitionError{Kind: kinds.Effect, ID: ref, Err: fmt.Errorf("handler %w", ErrUnknown)})
		}
	}
	for i := range doc.Transitions {
		def := &doc.Transitions[i]
		if def.ReducerRef == "" {
			continue
		}
		if reducer, ok := registry.Reducers[def.ReducerRef]; ok {
			def.Reducer = reducer
		} else if registry.Placeholders {
			ref := def.ReducerRef
			def.Reducer = func(StateValue, Action) (StateValue, error) {
				return StateValue{}, fmt.Errorf("placeholder reducer %q", ref)
			}
		} else {
			errs = append(errs, &DefinitionError{Kind: kinds.Reducer, ID: def.ReducerRef, Err: ErrUnknown})
		}
	}
	return doc, errors.Join(errs...)
}

// Define validates doc as a whole and then replays it through the granular
// builder calls in order: states, actions, effects, transitions, initial. A
// document that fails validation leaves the Spec untouched.
func (spec *Spec) Define(doc Document) error {
	if spec.frozen.Load() {
		return spec.fail(kinds.Spec, spec.id, ErrFrozen)
	}
	if err := spec.checkDocument(doc); err != nil {
		spec.logger.Error("fsm document rejected", "spec", spec.id, "error", err)
		return err
	}
	for _, def := range doc.States {
		if err := spec.State(def.ID, def.Schema); err != nil {
			return err
		}
	}
	for _, def := range doc.Actions {
		if err := spec.Action(def.ID, def.Schema); err != nil {
			return err
		}
	}
	for _, def := range doc.Effects {
		if err := spec.Effect(def.ID, def.Handler, def.Schema); err != nil {
			return err
		}
	}
	for _, def := range doc.Transitions {
		var err error
		if def.Target != "" {
			err = spec.Goto(def.TransitionDef, def.Target)
		} else {
			err = spec.Transition(def.TransitionDef, def.Reducer)
		}
		if err != nil {
			return err
		}
	}
	if doc.Initial != nil {
		return spec.Initial(*doc.Initial)
	}
	return nil
}

// checkDocument collects every problem in doc, against both the document itself
// and what the Spec already holds.
func (spec *Spec) checkDocument(doc Document) error {
	var errs []error
	malformed := func(kind uint64, id string, format string, args ...any) {
		errs = append(errs, &DefinitionError{Kind: kind, ID: id, Err: fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)})
	}
	register := func(kind uint64, id string, seen set.Set[string], existing bool) {
		switch {
		case id == "":
			malformed(kind, id, "empty id")
		case id == Destroyed || id[0] == '$':
			errs = append(errs, &DefinitionError{Kind: kind, ID: id, Err: ErrReserved})
		case existing || !seen.Add(id):
			errs = append(errs, &DefinitionError{Kind: kind, ID: id, Err: ErrDuplicate})
		}
	}

	states := map[string]schema.Schema{}
	seenStates := set.New[string]()
	for _, def := range doc.States {
		register(kinds.State, def.ID, seenStates, spec.states[def.ID] != nil)
		states[def.ID] = def.Schema
	}
	seenActions := set.New[string]()
	for _, def := range doc.Actions {
		register(kinds.Action, def.ID, seenActions, spec.actions[def.ID] != nil)
	}
	effects := map[string]schema.Schema{}
	seenEffects := set.New[string]()
	for _, def := range doc.Effects {
		register(kinds.Effect, def.ID, seenEffects, spec.effects[def.ID] != nil)
		if def.Handler == nil {
			malformed(kinds.Effect, def.ID, "nil handler")
		}
		effects[def.ID] = def.Schema
	}

	hasState := func(id string) bool { return seenStates.Contains(id) || spec.states[id] != nil }
	hasAction := func(id string) bool { return seenActions.Contains(id) || spec.actions[id] != nil }
	pairs := set.New[key]()
	for i, def := range doc.Transitions {
		name := fmt.Sprintf("transitions[%d]", i)
		to := def.To
		switch {
		case def.Target != "" && def.Reducer != nil:
			malformed(kinds.Transition, name, "both target and reducer given")
		case def.Target == "" && def.Reducer == nil:
			malformed(kinds.Transition, name, "one of target or reducer is required")
		case def.Target != "":
			if len(to) > 0 && !slices.Equal(to, []string{def.Target}) {
				malformed(kinds.Shorthand, name, "to %v conflicts with target %q", to, def.Target)
			}
			to = []string{def.Target}
		}
		if len(def.From) == 0 || len(def.Actions) == 0 || len(to) == 0 {
			malformed(kinds.Transition, name, "from, actions and to are required")
		}
		for _, id := range slices.Concat(def.From, to) {
			if !hasState(id) {
				errs = append(errs, &DefinitionError{Kind: kinds.State, ID: id, Err: ErrUnknown})
			}
		}
		for _, id := range def.Actions {
			if !hasAction(id) {
				errs = append(errs, &DefinitionError{Kind: kinds.Action, ID: id, Err: ErrUnknown})
			}
		}
		for _, state := range def.From {
			for _, action := range def.Actions {
				pair := key{state: state, action: action}
				if spec.transitions[pair] != nil || !pairs.Add(pair) {
					errs = append(errs, &DefinitionError{Kind: kinds.Transition, ID: state + "/" + action, Err: ErrDuplicate})
				}
			}
		}
	}

	switch {
	case doc.Initial == nil && spec.initial == nil:
		malformed(kinds.Initial, "", "initial state is required")
	case doc.Initial != nil:
		errs = append(errs, spec.checkInitial(*doc.Initial, hasState, states, effects)...)
	}
	return errors.Join(errs...)
}

func (spec *Spec) checkInitial(initial StateValue, hasState func(string) bool, states, effects map[string]schema.Schema) []error {
	var errs []error
	if !hasState(initial.State) {
		return []error{&DefinitionError{Kind: kinds.State, ID: initial.State, Err: ErrUnknown}}
	}
	stateSchema, ok := states[initial.State]
	if !ok {
		stateSchema = spec.states[initial.State].schema
	}
	if stateSchema != nil {
		values := initial.Context
		if values == nil {
			values = map[string]any{}
		}
		if _, err := stateSchema.Parse(values); err != nil {
			errs = append(errs, &ValidationError{Kind: kinds.State, ID: initial.State, Err: err})
		}
	}
	for _, id := range slices.Sorted(maps.Keys(initial.Effects)) {
		effectSchema, ok := effects[id]
		if !ok {
			registered, exists := spec.effects[id]
			if !exists {
				errs = append(errs, &DefinitionError{Kind: kinds.Effect, ID: id, Err: ErrUnknown})
				continue
			}
			effectSchema = registered.schema
		}
		if effectSchema == nil {
			continue
		}
		if _, err := effectSchema.Parse(initial.Effects[id]); err != nil {
			errs = append(errs, &ValidationError{Kind: kinds.Effect, ID: id, Err: err})
		}
	}
	return errs
}
