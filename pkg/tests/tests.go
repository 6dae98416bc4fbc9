// Package tests holds helpers shared by the machine tests: a listener that
// records transitions and an effect log that records handler lifecycles.
package tests

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	fsm "github.com/stateforward/go-fsm"
)

// Recorder is a Listener that keeps every record it is notified of.
type Recorder struct {
	mutex   sync.Mutex
	records []fsm.TransitionRecord
}

func (recorder *Recorder) Notify(record fsm.TransitionRecord) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.records = append(recorder.records, record)
}

func (recorder *Recorder) Records() []fsm.TransitionRecord {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return slices.Clone(recorder.records)
}

// States lists the destination of every recorded transition.
func (recorder *Recorder) States() []string {
	states := []string{}
	for _, record := range recorder.Records() {
		states = append(states, record.Next.State)
	}
	return states
}

func (recorder *Recorder) Len() int {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return len(recorder.records)
}

// Log records effect starts and cleanups as "start:<id>:<args>" and
// "cleanup:<id>:<args>" entries.
type Log struct {
	mutex   sync.Mutex
	entries []string
}

func (log *Log) add(entry string) {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	log.entries = append(log.entries, entry)
}

func (log *Log) Entries() []string {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	return slices.Clone(log.entries)
}

// Count returns how many entries equal entry.
func (log *Log) Count(entry string) int {
	count := 0
	for _, candidate := range log.Entries() {
		if candidate == entry {
			count++
		}
	}
	return count
}

func (log *Log) Reset() {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	log.entries = nil
}

// Handler returns an effect handler that logs its start, then runs maybeThen,
// and returns a cleanup that logs itself.
func (log *Log) Handler(maybeThen ...func(ctx fsm.EffectContext, args any)) fsm.Handler {
	return func(ctx fsm.EffectContext, args any) (func(), error) {
		log.add(fmt.Sprintf("start:%s:%v", ctx.EffectID, args))
		for _, then := range maybeThen {
			then(ctx, args)
		}
		return func() {
			log.add(fmt.Sprintf("cleanup:%s:%v", ctx.EffectID, args))
		}, nil
	}
}

// Run dispatches each action in order and fails the test unless the machine
// ends up in the matching state after every one.
func Run(t testing.TB, sm fsm.Machine, steps ...Step) {
	t.Helper()
	for i, step := range steps {
		if _, err := sm.Dispatch(step.Action); err != nil {
			t.Fatalf("step %d: dispatch %q: %v", i, step.Action.Type, err)
		}
		if state := sm.State(); state != step.State {
			t.Fatalf("step %d: dispatch %q: expected state %q, got %q", i, step.Action.Type, step.State, state)
		}
	}
}

type Step struct {
	Action fsm.Action
	State  string
}

// Expect builds a Step from an action type with optional fields.
func Expect(actionType string, state string, maybeFields ...map[string]any) Step {
	return Step{Action: fsm.NewAction(actionType, maybeFields...), State: state}
}
