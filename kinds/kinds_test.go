package kinds_test

import (
	"testing"

	"github.com/stateforward/go-fsm/kinds"
)

func TestKinds(t *testing.T) {
	if !kinds.IsKind(kinds.State, kinds.Vertex, kinds.Element) {
		t.Errorf("State should be a Vertex")
	}
	if !kinds.IsKind(kinds.Initial, kinds.Vertex) {
		t.Errorf("Initial should be a Vertex")
	}
	if kinds.IsKind(kinds.State, kinds.Behavior) {
		t.Errorf("State should not be a Behavior")
	}
	if !kinds.IsKind(kinds.Internal, kinds.Action) {
		t.Errorf("Internal should be an Action")
	}
	if kinds.IsKind(kinds.Action, kinds.Internal) {
		t.Errorf("Action should not be an Internal action")
	}
	if !kinds.IsKind(kinds.Shorthand, kinds.Transition) {
		t.Errorf("Shorthand should be a Transition")
	}
	if !kinds.IsKind(kinds.Effect, kinds.Behavior, kinds.Vertex) {
		t.Errorf("Effect should match when any base matches")
	}
	if kinds.IsKind(kinds.Effect, kinds.Transition, kinds.Vertex) {
		t.Errorf("Effect should not be a Transition or Vertex")
	}
}

func TestName(t *testing.T) {
	if got := kinds.Name(kinds.Internal); got != "internal action" {
		t.Errorf("expected internal action, got %q", got)
	}
	if got := kinds.Name(kinds.Kind(99, kinds.Element)); got != "element" {
		t.Errorf("expected element fallback, got %q", got)
	}
	if got := kinds.Name(kinds.Kind(98, kinds.Effect)); got != "effect" {
		t.Errorf("expected a derived effect to be labelled effect, got %q", got)
	}
	if got := kinds.Name(kinds.Kind(97, kinds.Internal)); got != "internal action" {
		t.Errorf("expected the most specific base label, got %q", got)
	}
}
