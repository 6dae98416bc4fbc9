package fsm

import (
	"reflect"

	"github.com/stateforward/go-fsm/kinds"
	"github.com/stateforward/go-fsm/pkg/set"
)

// run is the active entry for one effect id: the args it was started with
// and the cleanup its handler returned, if any.
type run struct {
	args    any
	cleanup func()
}

// reconcile brings the active runs in line with record.Next.Effects. Every
// stopped or restarted run is cleaned up before any handler starts. A nested
// dispatch from a cleanup or handler reconciles against the newer state, so
// the outer pass stops as soon as it sees one.
func (sm *Instance) reconcile(record *TransitionRecord) {
	if sm.trace != nil {
		defer sm.trace(sm.ctx, "reconcile", sm.id, record.Action.Type)()
	}
	version := sm.version
	ids := set.Sorted(set.Keys(sm.active).Union(set.Keys(record.Prev.Effects), set.Keys(record.Next.Effects)))
	for _, id := range ids {
		running, ok := sm.active[id]
		if !ok {
			continue
		}
		args, present := record.Next.Effects[id]
		if present && reflect.DeepEqual(running.args, args) {
			continue
		}
		delete(sm.active, id)
		sm.stop(id, running, record.Action.Type)
		if sm.version != version {
			return
		}
	}
	for _, id := range ids {
		args, present := record.Next.Effects[id]
		if !present {
			continue
		}
		if _, running := sm.active[id]; running {
			continue
		}
		sm.start(id, args, record)
		if sm.version != version {
			return
		}
	}
}

func (sm *Instance) start(id string, args any, record *TransitionRecord) {
	if sm.trace != nil {
		defer sm.trace(sm.ctx, "start", sm.id, id)()
	}
	effect, ok := sm.spec.effects[id]
	if !ok {
		sm.report(&DefinitionError{Kind: kinds.Effect, ID: id, Err: ErrUnknown})
		return
	}
	parsed, err := effect.parse(args)
	if err != nil {
		sm.report(err)
		return
	}
	// registered before the handler runs so a nested dispatch sees the effect as active
	placeholder := &run{args: args}
	sm.active[id] = placeholder
	cleanup, err := sm.invoke(effect, parsed, record)
	if err != nil {
		sm.report(&HandlerError{Kind: kinds.Effect, ID: id, Action: record.Action.Type, Err: err})
	}
	if sm.active[id] == placeholder {
		placeholder.cleanup = cleanup
		return
	}
	// superseded by a nested dispatch while the handler was running
	sm.stop(id, &run{args: args, cleanup: cleanup}, record.Action.Type)
}

func (sm *Instance) invoke(effect *effect, args any, record *TransitionRecord) (cleanup func(), err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			cleanup, err = nil, panicError(recovered)
		}
	}()
	return effect.handler(EffectContext{
		Context:  sm.ctx,
		FSM:      sm,
		EffectID: effect.id,
		State:    record.Next.State,
		Values:   record.Next.Context,
		Action:   record.Action,
	}, args)
}

func (sm *Instance) stop(id string, running *run, action string) {
	if running == nil || running.cleanup == nil {
		return
	}
	if sm.trace != nil {
		defer sm.trace(sm.ctx, "cleanup", sm.id, id)()
	}
	cleanup := running.cleanup
	running.cleanup = nil
	defer func() {
		if recovered := recover(); recovered != nil {
			sm.report(&HandlerError{Kind: kinds.Cleanup, ID: id, Action: action, Err: panicError(recovered)})
		}
	}()
	cleanup()
}
