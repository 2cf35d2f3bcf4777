// Package fsm wraps looplab/fsm behind a small builder API and defines the
// state machine that drives the server's read/dispatch/write loop.
// file: internal/fsm/fsm.go
package fsm

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	lfsm "github.com/looplab/fsm"
)

// State represents a state in the FSM.
type State string

// Event represents an event that can trigger a state transition.
type Event string

// TransitionAction runs once a transition has completed, self-transitions included.
type TransitionAction func(ctx context.Context, event Event, data interface{}) error

// GuardCondition returns false to cancel a transition before it happens.
type GuardCondition func(ctx context.Context, event Event, data interface{}) bool

// Transition defines a transition rule between states.
type Transition struct {
	From      []State
	To        State
	Event     Event
	Action    TransitionAction
	Condition GuardCondition
}

// FSM is a finite state machine. Transitions are added first, then Build
// creates the underlying machine.
type FSM interface {
	AddTransition(transition Transition) FSM
	Build() error
	CurrentState() State
	CanTransition(event Event) bool
	Transition(ctx context.Context, event Event, data interface{}) error
	SetState(state State) error
	Reset() error
}

type transitionKey struct {
	event Event
	from  State
}

// loopFSM implements FSM using looplab/fsm.
type loopFSM struct {
	mu           sync.RWMutex
	initialState State
	logger       logging.Logger
	transitions  []Transition
	byKey        map[transitionKey]*Transition
	fsm          *lfsm.FSM
	buildErr     error
}

// NewFSM creates a builder with the given initial state.
func NewFSM(initialState State, logger logging.Logger) FSM {
	logger = logging.OrNoop(logger)
	return &loopFSM{
		initialState: initialState,
		logger:       logger.WithField("component", "fsm"),
		byKey:        make(map[transitionKey]*Transition),
	}
}

// AddTransition stores a transition definition to be used by Build.
func (l *loopFSM) AddTransition(t Transition) FSM {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.fsm != nil:
		l.setBuildErr(errors.New("cannot add a transition after Build"))
	case len(t.From) == 0:
		l.setBuildErr(errors.Newf("transition for event %q has no source states", t.Event))
	default:
		l.transitions = append(l.transitions, t)
	}
	return l
}

func (l *loopFSM) setBuildErr(err error) {
	l.logger.Error("Invalid FSM transition.", "error", err)
	if l.buildErr == nil {
		l.buildErr = err
	}
}

// Build finalizes the configuration. Calling it again is a no-op.
func (l *loopFSM) Build() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fsm != nil || l.buildErr != nil {
		return l.buildErr
	}

	descs := make(map[Event]*lfsm.EventDesc)
	var order []Event
	for i := range l.transitions {
		t := &l.transitions[i]
		desc, ok := descs[t.Event]
		if !ok {
			desc = &lfsm.EventDesc{Name: string(t.Event), Dst: string(t.To)}
			descs[t.Event] = desc
			order = append(order, t.Event)
		} else if desc.Dst != string(t.To) {
			l.buildErr = errors.Newf("event %q has conflicting destinations %q and %q", t.Event, desc.Dst, t.To)
			return l.buildErr
		}
		for _, from := range t.From {
			key := transitionKey{event: t.Event, from: from}
			if _, dup := l.byKey[key]; dup {
				l.buildErr = errors.Newf("event %q is defined twice from state %q", t.Event, from)
				return l.buildErr
			}
			l.byKey[key] = t
			desc.Src = append(desc.Src, string(from))
		}
	}

	events := make([]lfsm.EventDesc, 0, len(order))
	for _, ev := range order {
		events = append(events, *descs[ev])
	}
	callbacks := lfsm.Callbacks{
		"before_event": l.checkGuard,
		"after_event":  l.runAction,
	}
	l.fsm = lfsm.NewFSM(string(l.initialState), events, callbacks)
	l.logger.Debug("FSM built.", "initialState", l.initialState, "events", len(events))
	return nil
}

func (l *loopFSM) lookup(e *lfsm.Event) *Transition {
	return l.byKey[transitionKey{event: Event(e.Event), from: State(e.Src)}]
}

func eventData(e *lfsm.Event) interface{} {
	if len(e.Args) > 0 {
		return e.Args[0]
	}
	return nil
}

func (l *loopFSM) checkGuard(ctx context.Context, e *lfsm.Event) {
	t := l.lookup(e)
	if t == nil || t.Condition == nil {
		return
	}
	if !t.Condition(ctx, t.Event, eventData(e)) {
		e.Cancel(errors.Newf("guard for event %q from state %q failed", t.Event, e.Src))
	}
}

func (l *loopFSM) runAction(ctx context.Context, e *lfsm.Event) {
	t := l.lookup(e)
	if t == nil || t.Action == nil {
		return
	}
	if err := t.Action(ctx, t.Event, eventData(e)); err != nil {
		l.logger.Error("Transition action failed.", "event", t.Event, "from", e.Src, "to", e.Dst, "error", err)
	}
}

func (l *loopFSM) machine() (*lfsm.FSM, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fsm == nil {
		if l.buildErr != nil {
			return nil, l.buildErr
		}
		return nil, errors.New("fsm used before Build")
	}
	return l.fsm, nil
}

// CurrentState returns the current state, or "" before Build.
func (l *loopFSM) CurrentState() State {
	m, err := l.machine()
	if err != nil {
		return ""
	}
	return State(m.Current())
}

// CanTransition reports whether event is defined for the current state.
func (l *loopFSM) CanTransition(event Event) bool {
	m, err := l.machine()
	if err != nil {
		return false
	}
	return m.Can(string(event))
}

// Transition fires event. Self-transitions succeed; looplab's
// NoTransitionError is not reported as a failure.
func (l *loopFSM) Transition(ctx context.Context, event Event, data interface{}) error {
	m, err := l.machine()
	if err != nil {
		return err
	}
	from := m.Current()
	var args []interface{}
	if data != nil {
		args = append(args, data)
	}
	err = m.Event(ctx, string(event), args...)
	var noTransition lfsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err == nil {
		err = nil
	}
	if err != nil {
		l.logger.Debug("FSM transition failed.", "event", event, "from", from, "error", err)
		return errors.Wrapf(err, "transition %q from %q", event, from)
	}
	l.logger.Debug("FSM transition.", "event", event, "from", from, "to", m.Current())
	return nil
}

// SetState forces the current state without running callbacks.
func (l *loopFSM) SetState(state State) error {
	m, err := l.machine()
	if err != nil {
		return err
	}
	m.SetState(string(state))
	return nil
}

// Reset returns the machine to its initial state.
func (l *loopFSM) Reset() error {
	return l.SetState(l.initialState)
}
