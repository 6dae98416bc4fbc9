package fsm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsm "github.com/stateforward/go-fsm"
	"github.com/stateforward/go-fsm/kinds"
	"github.com/stateforward/go-fsm/pkg/tests"
	"github.com/stateforward/go-fsm/schema"
)

const fetcherDocument = `
states:
  - id: idle
  - id: pending
    schema: request
  - id: done
actions:
  - id: fetch
    schema: request
  - id: finish
effects:
  - id: start-fetch
    schema: request
transitions:
  - from: [idle]
    actions: [fetch]
    to: [pending]
    reducer: begin
  - from: [pending]
    actions: [finish]
    target: done
initial:
  state: idle
`

func registry(log *tests.Log) fsm.Registry {
	return fsm.Registry{
		Schemas: map[string]schema.Schema{"request": request},
		Reducers: map[string]fsm.Reducer{
			"begin": func(prev fsm.StateValue, action fsm.Action) (fsm.StateValue, error) {
				url := action.Get("url")
				return fsm.StateValue{
					State:   "pending",
					Context: map[string]any{"url": url},
					Effects: map[string]any{"start-fetch": map[string]any{"url": url}},
				}, nil
			},
		},
		Handlers: map[string]fsm.Handler{"start-fetch": log.Handler()},
	}
}

func TestDefineFromYAML(t *testing.T) {
	log := &tests.Log{}
	doc, err := fsm.ParseDocument([]byte(fetcherDocument), registry(log))
	require.NoError(t, err)
	require.Len(t, doc.Transitions, 2)
	assert.Equal(t, "done", doc.Transitions[1].Target)

	spec := newSpec("fetcher")
	require.NoError(t, spec.Define(doc))
	assert.Equal(t, []string{"idle", "pending", "done"}, spec.States())
	assert.Equal(t, "idle", spec.InitialState())
	edges := spec.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, kinds.Transition, edges[0].Kind)
	assert.Equal(t, kinds.Shorthand, edges[1].Kind)

	sm := start(t, spec)
	tests.Run(t, sm,
		tests.Expect("fetch", "pending", map[string]any{"url": "https://example.com"}),
		tests.Expect("finish", "done"),
	)
	assert.Equal(t, []string{
		"start:start-fetch:map[url:https://example.com]",
		"cleanup:start-fetch:map[url:https://example.com]",
	}, log.Entries())
}

func TestParseDocumentErrors(t *testing.T) {
	_, err := fsm.ParseDocument([]byte("states: [unclosed"), fsm.Registry{})
	assert.ErrorIs(t, err, fsm.ErrMalformed)

	_, err = fsm.ParseDocument([]byte(fetcherDocument), fsm.Registry{})
	assert.ErrorIs(t, err, fsm.ErrUnknown)
	assert.ErrorContains(t, err, "request")
	assert.ErrorContains(t, err, "begin")
	assert.ErrorContains(t, err, "start-fetch")

	doc, err := fsm.ParseDocument([]byte(fetcherDocument), fsm.Registry{Placeholders: true})
	require.NoError(t, err)
	spec := newSpec("placeholders")
	require.NoError(t, spec.Define(doc))
	assert.Len(t, spec.Edges(), 2)
}

func TestDefineRejectsWholeDocument(t *testing.T) {
	reducer := func(fsm.StateValue, fsm.Action) (fsm.StateValue, error) { return fsm.To("b"), nil }
	for name, doc := range map[string]fsm.Document{
		"duplicate state": {
			States:  []fsm.StateDef{{ID: "a"}, {ID: "a"}},
			Initial: &fsm.StateValue{State: "a"},
		},
		"missing action": {
			States:      []fsm.StateDef{{ID: "a"}, {ID: "b"}},
			Transitions: []fsm.TransitionDoc{{TransitionDef: on("a", "missingAction"), Target: "b"}},
			Initial:     &fsm.StateValue{State: "a"},
		},
		"target and reducer": {
			States:      []fsm.StateDef{{ID: "a"}, {ID: "b"}},
			Actions:     []fsm.ActionDef{{ID: "go"}},
			Transitions: []fsm.TransitionDoc{{TransitionDef: on("a", "go"), Target: "b", Reducer: reducer}},
			Initial:     &fsm.StateValue{State: "a"},
		},
		"neither target nor reducer": {
			States:      []fsm.StateDef{{ID: "a"}, {ID: "b"}},
			Actions:     []fsm.ActionDef{{ID: "go"}},
			Transitions: []fsm.TransitionDoc{{TransitionDef: on("a", "go")}},
			Initial:     &fsm.StateValue{State: "a"},
		},
		"duplicate pair": {
			States:  []fsm.StateDef{{ID: "a"}, {ID: "b"}},
			Actions: []fsm.ActionDef{{ID: "go"}},
			Transitions: []fsm.TransitionDoc{
				{TransitionDef: on("a", "go"), Target: "b"},
				{TransitionDef: on("a", "go"), Target: "a"},
			},
			Initial: &fsm.StateValue{State: "a"},
		},
		"no initial": {
			States: []fsm.StateDef{{ID: "a"}},
		},
		"invalid initial": {
			States:  []fsm.StateDef{{ID: "a", Schema: schema.Record(schema.Fields{"n": schema.Number()})}},
			Initial: &fsm.StateValue{State: "a"},
		},
		"nil handler": {
			States:  []fsm.StateDef{{ID: "a"}},
			Effects: []fsm.EffectDef{{ID: "fx"}},
			Initial: &fsm.StateValue{State: "a"},
		},
		"reserved": {
			States:  []fsm.StateDef{{ID: "a"}, {ID: fsm.Destroyed}},
			Initial: &fsm.StateValue{State: "a"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			spec := newSpec("rejected")
			assert.Error(t, spec.Define(doc))
			assert.Empty(t, spec.States(), "nothing is registered")
			assert.Empty(t, spec.Edges())
			_, ok := spec.InitialValue()
			assert.False(t, ok)
		})
	}
}

func TestDefineCollectsEveryProblem(t *testing.T) {
	spec := newSpec("collected")
	err := spec.Define(fsm.Document{
		States:      []fsm.StateDef{{ID: "a"}, {ID: "a"}},
		Transitions: []fsm.TransitionDoc{{TransitionDef: on("a", "ghost"), Target: "nowhere"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fsm.ErrDuplicate)
	assert.ErrorIs(t, err, fsm.ErrUnknown)
	assert.ErrorIs(t, err, fsm.ErrMalformed)
	assert.ErrorContains(t, err, "ghost")
	assert.ErrorContains(t, err, "nowhere")
}

func TestDefineExtendsSpec(t *testing.T) {
	spec := newSpec("extended")
	states(t, spec, "a")
	actions(t, spec, "go")
	require.NoError(t, spec.Initial(fsm.To("a")))

	require.NoError(t, spec.Define(fsm.Document{
		States:      []fsm.StateDef{{ID: "b"}},
		Transitions: []fsm.TransitionDoc{{TransitionDef: on("a", "go"), Target: "b"}},
	}))
	assert.Equal(t, []string{"a", "b"}, spec.States())
	tests.Run(t, start(t, spec), tests.Expect("go", "b"))

	assert.ErrorIs(t, newSpecWith(t, "a").Define(fsm.Document{States: []fsm.StateDef{{ID: "a"}}}), fsm.ErrDuplicate)
}

func newSpecWith(t testing.TB, ids ...string) *fsm.Spec {
	spec := newSpec("with")
	states(t, spec, ids...)
	require.NoError(t, spec.Initial(fsm.To(ids[0])))
	return spec
}
