// file: internal/fsm/loop.go
package fsm

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
)

// Loop states.
const (
	StateIdle        State = "idle"
	StateReading     State = "reading"
	StateDispatching State = "dispatching"
	StateWriting     State = "writing"
	StateClosed      State = "closed"
)

// Loop events.
const (
	EventStart      Event = "start"
	EventReceived   Event = "received"
	EventDispatched Event = "dispatched"
	EventWritten    Event = "written"
	EventEOF        Event = "eof"
	EventFault      Event = "fault"
)

// LoopMachine tracks the read/dispatch/write cycle of one serve loop.
//
//	idle --start--> reading --received--> dispatching --dispatched--> writing --written--> reading
//	reading --eof--> closed
//	any open state --fault--> closed
type LoopMachine struct {
	FSM
	logger logging.Logger
}

// NewLoopMachine builds a loop machine in StateIdle. onClose, if non-nil, runs
// once when the machine enters StateClosed.
func NewLoopMachine(logger logging.Logger, onClose TransitionAction) (*LoopMachine, error) {
	logger = logging.OrNoop(logger)
	log := logger.WithField("component", "loop_state")

	open := []State{StateIdle, StateReading, StateDispatching, StateWriting}
	m := NewFSM(StateIdle, log).
		AddTransition(Transition{From: []State{StateIdle}, Event: EventStart, To: StateReading}).
		AddTransition(Transition{From: []State{StateReading}, Event: EventReceived, To: StateDispatching}).
		AddTransition(Transition{From: []State{StateDispatching}, Event: EventDispatched, To: StateWriting}).
		AddTransition(Transition{From: []State{StateWriting}, Event: EventWritten, To: StateReading}).
		AddTransition(Transition{From: []State{StateReading}, Event: EventEOF, To: StateClosed, Action: onClose}).
		AddTransition(Transition{From: open, Event: EventFault, To: StateClosed, Action: onClose})

	if err := m.Build(); err != nil {
		return nil, errors.Wrap(err, "failed to build loop state machine")
	}
	return &LoopMachine{FSM: m, logger: log}, nil
}

// Fire triggers event. Transitions are never cancelled by ctx so the loop
// state stays accurate during shutdown.
func (m *LoopMachine) Fire(ctx context.Context, event Event) error {
	return m.Transition(context.WithoutCancel(ctx), event, nil)
}

// Close moves the machine to StateClosed through the fault edge unless it is
// already closed. cause is passed to the close action.
func (m *LoopMachine) Close(ctx context.Context, cause error) {
	if m.Closed() {
		return
	}
	if err := m.Transition(context.WithoutCancel(ctx), EventFault, cause); err != nil {
		m.logger.Warn("Forcing loop state to closed.", "state", m.CurrentState(), "error", err)
		_ = m.SetState(StateClosed)
	}
}

// Closed reports whether the loop has terminated.
func (m *LoopMachine) Closed() bool {
	return m.CurrentState() == StateClosed
}
