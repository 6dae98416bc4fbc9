package fsm

import (
	"fmt"
	"maps"

	"github.com/stateforward/go-fsm/clock"
	"github.com/stateforward/go-fsm/kinds"
)

var wallClock = clock.Make()

// Transition computes the record of applying action to prev without touching
// any Instance. It returns nil, nil when no transition is registered for
// (prev.State, action.Type) and the Spec is not exhaustive. Create and
// Destroy, like every internal action, are never exhaustive.
func Transition(spec *Spec, prev StateValue, action Action, maybeClock ...clock.Clock) (*TransitionRecord, error) {
	if spec == nil {
		return nil, fmt.Errorf("transition: nil spec")
	}
	entry := spec.lookup(prev.State, action.Type)
	if entry == nil {
		if definition := spec.actions[action.Type]; spec.config.Exhaustive && (definition == nil || !kinds.IsKind(definition.kind, kinds.Internal)) {
			return nil, &NoTransitionError{State: prev.State, Action: action.Type}
		}
		if spec.config.LogNoop {
			spec.logger.Debug("fsm action ignored", "spec", spec.id, "state", prev.State, "action", action.Type)
		}
		return nil, nil
	}
	action, err := spec.stamp(action, first(maybeClock))
	if err != nil {
		return nil, err
	}
	// reducers get their own copy so a failed transition leaves the caller's value intact
	prev = prev.Normalize()
	next, err := entry.reduce(prev.Normalize(), action)
	if err != nil {
		return nil, err
	}
	next = next.Normalize()
	if !entry.allowed.Contains(next.State) {
		return nil, &IllegalDestinationError{
			State:   prev.State,
			Action:  action.Type,
			Target:  next.State,
			Allowed: entry.targets,
		}
	}
	next, err = spec.validate(next)
	if err != nil {
		return nil, err
	}
	return &TransitionRecord{
		Prev:   prev,
		Next:   next,
		Action: action,
		At:     action.Meta.CreatedAt,
	}, nil
}

// stamp validates the action fields and sets meta.createdAt. The caller's
// Fields map is never modified.
func (spec *Spec) stamp(action Action, c clock.Clock) (Action, error) {
	definition, ok := spec.actions[action.Type]
	if !ok {
		return action, &DefinitionError{Kind: kinds.Action, ID: action.Type, Err: ErrUnknown}
	}
	fields := maps.Clone(action.Fields)
	if fields == nil {
		fields = map[string]any{}
	}
	output, err := definition.parse(fields)
	if err != nil {
		return action, err
	}
	if parsed, ok := output.(map[string]any); ok {
		fields = parsed
	}
	action.Fields = fields
	if c == nil {
		c = wallClock
	}
	action.Meta.CreatedAt = c.Now()
	if action.Meta.ID == "" {
		action.Meta.ID = newActionID()
	}
	return action, nil
}

func (transition *transition) reduce(prev StateValue, action Action) (next StateValue, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &HandlerError{Kind: kinds.Reducer, ID: transition.id, Action: action.Type, Err: panicError(recovered)}
		}
	}()
	next, err = transition.reducer(prev, action)
	if err != nil {
		return next, &HandlerError{Kind: kinds.Reducer, ID: transition.id, Action: action.Type, Err: err}
	}
	return next, nil
}
