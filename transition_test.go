package fsm_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsm "github.com/stateforward/go-fsm"
	"github.com/stateforward/go-fsm/clock"
	"github.com/stateforward/go-fsm/kinds"
	"github.com/stateforward/go-fsm/schema"
)

var request = schema.Record(schema.Fields{"url": schema.String()})

func fetcher(t testing.TB, handler fsm.Handler, opts ...fsm.SpecOption) *fsm.Spec {
	t.Helper()
	spec := newSpec("fetcher", opts...)
	states(t, spec, "idle", "fulfilled", "rejected")
	require.NoError(t, spec.State("pending", request))
	require.NoError(t, spec.Action("fetch", request))
	require.NoError(t, spec.Action("reject", schema.Record(schema.Fields{"message": schema.String()})))
	actions(t, spec, "resolve", "reset")
	require.NoError(t, spec.Effect("start-fetch", handler, request))
	require.NoError(t, spec.Transition(fsm.TransitionDef{From: []string{"idle"}, Actions: []string{"fetch"}, To: []string{"pending"}},
		func(prev fsm.StateValue, action fsm.Action) (fsm.StateValue, error) {
			url := action.Get("url")
			return fsm.StateValue{
				State:   "pending",
				Context: map[string]any{"url": url},
				Effects: map[string]any{"start-fetch": map[string]any{"url": url}},
			}, nil
		}))
	require.NoError(t, spec.Transition(fsm.TransitionDef{From: []string{"pending"}, Actions: []string{"resolve"}, To: []string{"fulfilled"}},
		func(prev fsm.StateValue, action fsm.Action) (fsm.StateValue, error) {
			return fsm.StateValue{State: "fulfilled", Context: map[string]any{"data": action.Get("data")}}, nil
		}))
	require.NoError(t, spec.Transition(fsm.TransitionDef{From: []string{"pending"}, Actions: []string{"reject"}, To: []string{"rejected"}},
		func(prev fsm.StateValue, action fsm.Action) (fsm.StateValue, error) {
			return fsm.StateValue{State: "rejected", Context: map[string]any{"error": action.Get("message")}}, nil
		}))
	require.NoError(t, spec.Goto(fsm.TransitionDef{From: []string{"fulfilled", "rejected"}, Actions: []string{"reset"}}, "idle"))
	require.NoError(t, spec.Initial(fsm.To("idle")))
	return spec
}

func TestTransitionRecord(t *testing.T) {
	spec := fetcher(t, noop)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	fields := map[string]any{"url": "https://example.com"}

	record, err := fsm.Transition(spec, fsm.To("idle"), fsm.NewAction("fetch", fields), clock.Fixed(now))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, fsm.To("idle"), record.Prev)
	assert.Equal(t, "pending", record.Next.State)
	assert.Equal(t, map[string]any{"url": "https://example.com"}, record.Next.Context)
	assert.Equal(t, map[string]any{"start-fetch": map[string]any{"url": "https://example.com"}}, record.Next.Effects)
	assert.Equal(t, now, record.Action.Meta.CreatedAt)
	assert.Equal(t, now, record.At)
	assert.NotEmpty(t, record.Action.Meta.ID)
	assert.Equal(t, map[string]any{"url": "https://example.com"}, fields)
	assert.False(t, spec.Frozen(), "the pure transition does not freeze")
}

func TestTransitionNoop(t *testing.T) {
	spec := fetcher(t, noop)
	record, err := fsm.Transition(spec, fsm.To("idle"), fsm.NewAction("resolve"))
	assert.NoError(t, err)
	assert.Nil(t, record)

	record, err = fsm.Transition(spec, fsm.To("idle"), fsm.NewAction("unregistered"))
	assert.NoError(t, err)
	assert.Nil(t, record)

	exhaustive := fetcher(t, noop, fsm.Exhaustive())
	_, err = fsm.Transition(exhaustive, fsm.To("idle"), fsm.NewAction("resolve"))
	var missing *fsm.NoTransitionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "idle", missing.State)
	assert.Equal(t, "resolve", missing.Action)

	record, err = fsm.Transition(exhaustive, fsm.To("idle"), fsm.NewAction(fsm.Create))
	assert.NoError(t, err, "internal actions are never exhaustive")
	assert.Nil(t, record)
}

func TestTransitionValidation(t *testing.T) {
	spec := fetcher(t, noop)

	_, err := fsm.Transition(spec, fsm.To("idle"), fsm.NewAction("fetch"))
	var validation *fsm.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, kinds.Action, validation.Kind)
	assert.Equal(t, "fetch", validation.ID)
	assert.True(t, schema.Extract(err).Has("url"))

	_, err = fsm.Transition(spec, fsm.To("idle"), fsm.NewAction("fetch", map[string]any{"url": 42}))
	assert.Equal(t, []string{"url: expected string, got int"}, schema.Extract(err).Messages())
}

func TestTransitionOutputValidation(t *testing.T) {
	spec := newSpec("output")
	require.NoError(t, spec.State("a"))
	require.NoError(t, spec.State("b", schema.Record(schema.Fields{"n": schema.Number()})))
	require.NoError(t, spec.State("c", schema.Record(schema.Fields{"n": schema.Number()})))
	require.NoError(t, spec.Effect("fx", noop, schema.Number()))
	actions(t, spec, "bad-context", "bad-effect", "unknown-effect", "wander", "fail", "panic")
	reducer := func(value fsm.StateValue) fsm.Reducer {
		return func(fsm.StateValue, fsm.Action) (fsm.StateValue, error) {
			return value, nil
		}
	}
	destinations := func(actions ...string) fsm.TransitionDef {
		return fsm.TransitionDef{From: []string{"a"}, Actions: actions, To: []string{"b"}}
	}
	require.NoError(t, spec.Transition(destinations("bad-context"), reducer(fsm.StateValue{State: "b", Context: map[string]any{"n": "x"}})))
	require.NoError(t, spec.Transition(destinations("bad-effect"), reducer(fsm.StateValue{State: "b", Context: map[string]any{"n": 1}, Effects: map[string]any{"fx": "x"}})))
	require.NoError(t, spec.Transition(destinations("unknown-effect"), reducer(fsm.StateValue{State: "b", Context: map[string]any{"n": 1}, Effects: map[string]any{"ghost": 1}})))
	require.NoError(t, spec.Transition(destinations("wander"), reducer(fsm.StateValue{State: "c"})))
	boom := errors.New("boom")
	require.NoError(t, spec.Transition(destinations("fail"), func(fsm.StateValue, fsm.Action) (fsm.StateValue, error) {
		return fsm.StateValue{}, boom
	}))
	require.NoError(t, spec.Transition(destinations("panic"), func(fsm.StateValue, fsm.Action) (fsm.StateValue, error) {
		panic("reducer exploded")
	}))
	prev := fsm.To("a")

	_, err := fsm.Transition(spec, prev, fsm.NewAction("bad-context"))
	var validation *fsm.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, kinds.State, validation.Kind)
	assert.True(t, schema.Extract(err).Has("n"))

	_, err = fsm.Transition(spec, prev, fsm.NewAction("bad-effect"))
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, kinds.Effect, validation.Kind)
	assert.Equal(t, "fx", validation.ID)

	_, err = fsm.Transition(spec, prev, fsm.NewAction("unknown-effect"))
	var definition *fsm.DefinitionError
	require.ErrorAs(t, err, &definition)
	assert.Equal(t, "ghost", definition.ID)

	_, err = fsm.Transition(spec, prev, fsm.NewAction("wander"))
	var illegal *fsm.IllegalDestinationError
	require.ErrorAs(t, err, &illegal, "checked before the destination schema rejects the empty context")
	assert.Equal(t, "c", illegal.Target)
	assert.Equal(t, []string{"b"}, illegal.Allowed)

	_, err = fsm.Transition(spec, prev, fsm.NewAction("fail"))
	var handler *fsm.HandlerError
	require.ErrorAs(t, err, &handler)
	assert.Equal(t, kinds.Reducer, handler.Kind)
	assert.ErrorIs(t, err, boom)

	_, err = fsm.Transition(spec, prev, fsm.NewAction("panic"))
	require.ErrorAs(t, err, &handler)
	assert.ErrorContains(t, err, "reducer exploded")
}

func TestTransitionCopiesPrev(t *testing.T) {
	spec := newSpec("copies")
	states(t, spec, "a", "b")
	actions(t, spec, "go")
	require.NoError(t, spec.Transition(fsm.TransitionDef{From: []string{"a"}, Actions: []string{"go"}, To: []string{"b"}},
		func(prev fsm.StateValue, action fsm.Action) (fsm.StateValue, error) {
			prev.Context["n"] = 2
			return fsm.StateValue{State: "b", Context: prev.Context}, nil
		}))
	prev := fsm.StateValue{State: "a", Context: map[string]any{"n": 1}}

	record, err := fsm.Transition(spec, prev, fsm.NewAction("go"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 1}, prev.Context)
	assert.Equal(t, map[string]any{"n": 1}, record.Prev.Context)
	assert.Equal(t, map[string]any{"n": 2}, record.Next.Context)
}
