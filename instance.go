package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/stateforward/go-fsm/clock"
	"github.com/stateforward/go-fsm/kinds"
	"github.com/stateforward/go-fsm/pkg/set"
	"github.com/stateforward/go-fsm/queue"
)

// Instance is the single-process Machine. It is not safe for concurrent use:
// every call, including re-entrant dispatches from handlers and listeners,
// must happen on one goroutine at a time.
type Instance struct {
	ctx         context.Context
	id          string
	spec        *Spec
	current     StateValue
	subscribers set.Set[Listener]
	active      map[string]*run
	version     uint64
	reconciled  bool
	destroying  bool
	destroyed   bool
	override    *StateValue
	trace       Trace
	clock       clock.Clock
	logger      *slog.Logger
	onError     func(err error)
	errors      *queue.Queue[error]
	draining    atomic.Bool
}

var _ Machine = (*Instance)(nil)

// New freezes spec and starts an Instance in the spec's initial state, then
// dispatches Create so initial effects start like any other transition.
func New(ctx context.Context, spec *Spec, opts ...Option) (*Instance, error) {
	if spec == nil {
		return nil, fmt.Errorf("new: nil spec")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sm := &Instance{
		ctx:         ctx,
		spec:        spec,
		subscribers: set.New[Listener](),
		active:      map[string]*run{},
		clock:       wallClock,
		logger:      spec.logger,
		errors:      queue.New[error](),
	}
	if id, err := uuid.NewV7(); err == nil {
		sm.id = id.String()
	} else {
		sm.id = uuid.NewString()
	}
	for _, opt := range opts {
		opt(sm)
	}
	initial, ok := spec.InitialValue()
	if !ok {
		return nil, spec.fail(kinds.Initial, spec.id, fmt.Errorf("%w: initial state not set", ErrMalformed))
	}
	if sm.override != nil {
		initial = merge(initial, *sm.override)
	}
	initial, err := spec.validate(initial)
	if err != nil {
		return nil, err
	}
	spec.Freeze()
	sm.current = initial
	sm.dispatch(NewAction(Create))
	if !sm.reconciled && !sm.destroyed {
		sm.reconciled = true
		sm.reconcile(&TransitionRecord{
			Prev:   StateValue{},
			Next:   sm.current,
			Action: NewAction(Create),
			At:     sm.clock.Now(),
		})
	}
	return sm, nil
}

func merge(base, override StateValue) StateValue {
	if override.State != "" && override.State != base.State {
		return override.Normalize()
	}
	merged := base.Normalize()
	maps.Copy(merged.Context, override.Context)
	maps.Copy(merged.Effects, override.Effects)
	return merged
}

func (sm *Instance) ID() string {
	if sm == nil {
		return ""
	}
	return sm.id
}

func (sm *Instance) Spec() *Spec {
	if sm == nil {
		return nil
	}
	return sm.spec
}

// State returns the current state id, Destroyed once the Instance is destroyed.
func (sm *Instance) State() string {
	if sm == nil {
		return ""
	}
	return sm.current.State
}

// Value returns a copy of the current StateValue.
func (sm *Instance) Value() StateValue {
	if sm == nil {
		return StateValue{}
	}
	return sm.current.Normalize()
}

func (sm *Instance) Context() map[string]any {
	return sm.Value().Context
}

func (sm *Instance) Effects() map[string]any {
	return sm.Value().Effects
}

// Get reads one context field, falling back to the first maybeDefault when
// the field is absent.
func (sm *Instance) Get(key string, maybeDefault ...any) any {
	if sm != nil {
		if value, ok := sm.current.Context[key]; ok {
			return value
		}
	}
	return first(maybeDefault)
}

func (sm *Instance) Destroyed() bool {
	return sm != nil && sm.destroyed
}

// Dispatch applies action and returns the committed record, or nil when the
// action was ignored or failed. Failures raised by the transition, reducers,
// listeners or effects never surface here; they are delivered to the error
// handler. The only error returned is a *LifecycleError.
func (sm *Instance) Dispatch(action Action) (*TransitionRecord, error) {
	if sm == nil {
		return nil, &LifecycleError{Op: "dispatch"}
	}
	if sm.destroyed {
		return nil, &LifecycleError{Op: "dispatch", ID: sm.id}
	}
	return sm.dispatch(action), nil
}

func (sm *Instance) dispatch(action Action) (record *TransitionRecord) {
	var end func(...any)
	if sm.trace != nil {
		end = sm.trace(sm.ctx, "Dispatch", sm.id, action.Type)
	}
	var failure error
	defer func() {
		if recovered := recover(); recovered != nil {
			failure = &HandlerError{Kind: kinds.Instance, ID: sm.id, Action: action.Type, Err: panicError(recovered)}
			sm.report(failure)
		}
		if end != nil {
			if failure != nil {
				end(failure)
			} else {
				end()
			}
		}
	}()
	next, err := Transition(sm.spec, sm.current, action, sm.clock)
	if err != nil {
		failure = err
		sm.report(err)
		return nil
	}
	if next == nil {
		return nil
	}
	record = next
	sm.current = record.Next.Normalize()
	sm.version++
	version := sm.version
	sm.notify(sm.subscribers, *record)
	if sm.version != version {
		return record
	}
	// compared against what is running rather than record.Prev: a nested
	// dispatch may have cut the previous reconciliation short
	if !sm.reconciled || !sm.settled(record.Next.Effects) {
		sm.reconciled = true
		sm.reconcile(record)
	}
	return record
}

// settled reports whether the active runs match effects exactly.
func (sm *Instance) settled(effects map[string]any) bool {
	if len(sm.active) != len(effects) {
		return false
	}
	for id, args := range effects {
		running, ok := sm.active[id]
		if !ok || !reflect.DeepEqual(running.args, args) {
			return false
		}
	}
	return true
}

// notify delivers record to every listener of subscribers that is still
// subscribed when its turn comes.
func (sm *Instance) notify(subscribers set.Set[Listener], record TransitionRecord) {
	if sm.trace != nil {
		defer sm.trace(sm.ctx, "notify", sm.id, record.Next.State)()
	}
	for listener := range subscribers.Clone() {
		if !subscribers.Contains(listener) {
			continue
		}
		sm.deliver(listener, record)
	}
}

func (sm *Instance) deliver(listener Listener, record TransitionRecord) {
	defer func() {
		if recovered := recover(); recovered != nil {
			sm.report(&HandlerError{Kind: kinds.Subscriber, ID: fmt.Sprintf("%T", listener), Action: record.Action.Type, Err: panicError(recovered)})
		}
	}()
	listener.Notify(record)
}

// Subscribe adds listener to the subscriber set; subscribing the same
// listener twice is a no-op. Listeners are compared by identity, so they
// must be comparable: wrap plain funcs with Listen.
func (sm *Instance) Subscribe(listener Listener) (func(), error) {
	if sm == nil || sm.destroyed {
		return nil, &LifecycleError{Op: "subscribe", ID: sm.ID()}
	}
	if listener == nil {
		return nil, fmt.Errorf("subscribe: nil listener")
	}
	sm.subscribers.Add(listener)
	return func() {
		sm.subscribers.Remove(listener)
	}, nil
}

// Destroy records the current value as the terminal record's Prev,
// dispatches Destroy, forces the terminal Destroyed state, delivers the
// terminal record once to the listeners subscribed before the call and
// cleans up every active effect. The Instance is inert afterwards.
func (sm *Instance) Destroy() error {
	if sm == nil || sm.destroyed || sm.destroying {
		return &LifecycleError{Op: "destroy", ID: sm.ID()}
	}
	if sm.trace != nil {
		defer sm.trace(sm.ctx, "Destroy", sm.id)()
	}
	sm.destroying = true
	now := sm.clock.Now()
	terminal := TransitionRecord{
		Prev: sm.current.Normalize(),
		Next: To(Destroyed),
		Action: Action{
			Type:   Destroy,
			Fields: map[string]any{},
			Meta:   Meta{ID: newActionID(), CreatedAt: now},
		},
		At: now,
	}
	subscribers := sm.subscribers.Clone()
	// cleared first so a machine-defined destroy transition does not reach
	// external listeners twice
	sm.subscribers.Clear()
	sm.dispatch(NewAction(Destroy))
	sm.subscribers.Clear()
	sm.current = terminal.Next
	sm.destroyed = true
	sm.version++
	sm.notify(subscribers, terminal)
	active := sm.active
	sm.active = map[string]*run{}
	for _, id := range set.Sorted(set.Keys(active)) {
		sm.stop(id, active[id], Destroy)
	}
	return nil
}

// report queues err for the error handler and makes sure a drainer runs.
func (sm *Instance) report(err error) {
	if err == nil {
		return
	}
	sm.errors.Push(err)
	if sm.draining.CompareAndSwap(false, true) {
		go sm.drain()
	}
}

func (sm *Instance) drain() {
	for {
		for err, ok := sm.errors.Pop(); ok; err, ok = sm.errors.Pop() {
			sm.deliverError(err)
		}
		sm.draining.Store(false)
		if sm.errors.Len() == 0 || !sm.draining.CompareAndSwap(false, true) {
			return
		}
	}
}

func (sm *Instance) deliverError(err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			sm.logger.Error("fsm error handler panicked", "instance", sm.id, "error", err, "panic", recovered)
		}
	}()
	if sm.onError == nil {
		sm.logger.Error("fsm dispatch failed", "instance", sm.id, "spec", sm.spec.id, "error", err)
		return
	}
	sm.onError(err)
}
