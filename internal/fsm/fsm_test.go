// file: internal/fsm/fsm_test.go
package fsm

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	lfsm "github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIdle     State = "idle"
	testRunning  State = "running"
	testPaused   State = "paused"
	testFinished State = "finished"

	testStart Event = "start"
	testPause Event = "pause"
	testStop  Event = "stop"
	testTick  Event = "tick"
)

func buildTestFSM(t *testing.T) FSM {
	t.Helper()
	m := NewFSM(testIdle, nil).
		AddTransition(Transition{From: []State{testIdle, testPaused}, Event: testStart, To: testRunning}).
		AddTransition(Transition{From: []State{testRunning}, Event: testPause, To: testPaused}).
		AddTransition(Transition{From: []State{testRunning, testPaused}, Event: testStop, To: testFinished}).
		AddTransition(Transition{From: []State{testRunning}, Event: testTick, To: testRunning})
	require.NoError(t, m.Build())
	return m
}

func TestFSM_BasicTransitions(t *testing.T) {
	m := buildTestFSM(t)
	ctx := context.Background()

	assert.Equal(t, testIdle, m.CurrentState())
	require.NoError(t, m.Transition(ctx, testStart, nil))
	assert.Equal(t, testRunning, m.CurrentState())
	require.NoError(t, m.Transition(ctx, testPause, nil))
	require.NoError(t, m.Transition(ctx, testStart, nil))
	require.NoError(t, m.Transition(ctx, testStop, nil))
	assert.Equal(t, testFinished, m.CurrentState())
}

func TestFSM_InvalidTransition(t *testing.T) {
	m := buildTestFSM(t)

	assert.False(t, m.CanTransition(testStop))
	err := m.Transition(context.Background(), testStop, nil)
	require.Error(t, err)
	var invalid lfsm.InvalidEventError
	assert.True(t, errors.As(err, &invalid))
	assert.Equal(t, testIdle, m.CurrentState())
}

func TestFSM_SelfTransitionIsNotAnError(t *testing.T) {
	m := buildTestFSM(t)
	ctx := context.Background()
	require.NoError(t, m.Transition(ctx, testStart, nil))
	require.NoError(t, m.Transition(ctx, testTick, nil))
	assert.Equal(t, testRunning, m.CurrentState())
}

func TestFSM_ActionReceivesData(t *testing.T) {
	var got atomic.Value
	m := NewFSM(testIdle, nil).
		AddTransition(Transition{
			From:  []State{testIdle},
			Event: testStart,
			To:    testRunning,
			Action: func(_ context.Context, event Event, data interface{}) error {
				got.Store(string(event) + ":" + data.(string))
				return nil
			},
		})
	require.NoError(t, m.Build())
	require.NoError(t, m.Transition(context.Background(), testStart, "payload"))
	assert.Equal(t, "start:payload", got.Load())
}

func TestFSM_GuardCancelsTransition(t *testing.T) {
	allow := atomic.Bool{}
	m := NewFSM(testIdle, nil).
		AddTransition(Transition{
			From:  []State{testIdle},
			Event: testStart,
			To:    testRunning,
			Condition: func(_ context.Context, _ Event, _ interface{}) bool {
				return allow.Load()
			},
		})
	require.NoError(t, m.Build())

	err := m.Transition(context.Background(), testStart, nil)
	var canceled lfsm.CanceledError
	require.True(t, errors.As(err, &canceled))
	assert.Equal(t, testIdle, m.CurrentState())

	allow.Store(true)
	require.NoError(t, m.Transition(context.Background(), testStart, nil))
	assert.Equal(t, testRunning, m.CurrentState())
}

func TestFSM_BuildErrors(t *testing.T) {
	m := NewFSM(testIdle, nil).AddTransition(Transition{Event: testStart, To: testRunning})
	assert.Error(t, m.Build())

	m = NewFSM(testIdle, nil).
		AddTransition(Transition{From: []State{testIdle}, Event: testStart, To: testRunning}).
		AddTransition(Transition{From: []State{testPaused}, Event: testStart, To: testFinished})
	assert.Error(t, m.Build())

	m = NewFSM(testIdle, nil)
	assert.Equal(t, State(""), m.CurrentState())
	assert.Error(t, m.Transition(context.Background(), testStart, nil))
}

func TestFSM_BuildTwiceAndLateAdd(t *testing.T) {
	m := buildTestFSM(t)
	require.NoError(t, m.Build())
	m.AddTransition(Transition{From: []State{testIdle}, Event: "late", To: testRunning})
	assert.False(t, m.CanTransition("late"))
}

func TestFSM_SetStateAndReset(t *testing.T) {
	m := buildTestFSM(t)
	require.NoError(t, m.SetState(testPaused))
	assert.Equal(t, testPaused, m.CurrentState())
	require.NoError(t, m.Reset())
	assert.Equal(t, testIdle, m.CurrentState())
}

func TestLoopMachine_Cycle(t *testing.T) {
	var closes atomic.Int32
	m, err := NewLoopMachine(nil, func(_ context.Context, _ Event, _ interface{}) error {
		closes.Add(1)
		return nil
	})
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, StateIdle, m.CurrentState())
	require.NoError(t, m.Fire(ctx, EventStart))
	for i := 0; i < 2; i++ {
		require.NoError(t, m.Fire(ctx, EventReceived))
		assert.Equal(t, StateDispatching, m.CurrentState())
		require.NoError(t, m.Fire(ctx, EventDispatched))
		assert.Equal(t, StateWriting, m.CurrentState())
		require.NoError(t, m.Fire(ctx, EventWritten))
		assert.Equal(t, StateReading, m.CurrentState())
	}
	require.NoError(t, m.Fire(ctx, EventEOF))
	assert.True(t, m.Closed())
	assert.Equal(t, int32(1), closes.Load())

	m.Close(ctx, errors.New("late"))
	assert.Equal(t, int32(1), closes.Load(), "closing twice runs the action once")
	assert.Error(t, m.Fire(ctx, EventReceived))
}

func TestLoopMachine_FaultFromAnyOpenState(t *testing.T) {
	for _, st := range []State{StateIdle, StateReading, StateDispatching, StateWriting} {
		t.Run(string(st), func(t *testing.T) {
			var cause atomic.Value
			m, err := NewLoopMachine(nil, func(_ context.Context, _ Event, data interface{}) error {
				if data != nil {
					cause.Store(data)
				}
				return nil
			})
			require.NoError(t, err)
			require.NoError(t, m.SetState(st))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			m.Close(ctx, errors.New("broken pipe"))
			assert.True(t, m.Closed())
			require.NotNil(t, cause.Load())
			assert.EqualError(t, cause.Load().(error), "broken pipe")
		})
	}
}

func TestLoopMachine_EOFOnlyWhileReading(t *testing.T) {
	m, err := NewLoopMachine(nil, nil)
	require.NoError(t, err)
	assert.Error(t, m.Fire(context.Background(), EventEOF))
	assert.Equal(t, StateIdle, m.CurrentState())
}
