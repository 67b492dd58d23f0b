// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package session

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/pion/logging"
)

// State is the lifecycle position of one peer session.
type State int

// Session lifecycle states. Transitions are monotonic: once Active the
// session never regresses to Connecting, and Closing/Closed absorb every
// further event.
const (
	StateNegotiating State = iota
	StateConnecting
	StateActive
	StateFailed
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func stateFromString(name string) State {
	switch name {
	case "negotiating":
		return StateNegotiating
	case "connecting":
		return StateConnecting
	case "active":
		return StateActive
	case "failed":
		return StateFailed
	case "closing":
		return StateClosing
	default:
		return StateClosed
	}
}

// State machine events.
const (
	eventNegotiated = "negotiated"
	eventConnected  = "connected"
	eventFail       = "fail"
	eventClose      = "close"
	eventFinalize   = "finalize"
)

// stateMachine wraps the fsm so illegal events degrade to logged no-ops
// instead of errors escaping into callback threads.
type stateMachine struct {
	machine *fsm.FSM
	log     logging.LeveledLogger
}

func newStateMachine(listener func(from, to State), log logging.LeveledLogger) *stateMachine {
	sm := &stateMachine{log: log}
	sm.machine = fsm.NewFSM(
		StateNegotiating.String(),
		fsm.Events{
			{Name: eventNegotiated, Src: []string{"negotiating"}, Dst: "connecting"},
			{Name: eventConnected, Src: []string{"connecting"}, Dst: "active"},
			{Name: eventFail, Src: []string{"negotiating", "connecting", "active"}, Dst: "failed"},
			{Name: eventClose, Src: []string{"negotiating", "connecting", "active", "failed"}, Dst: "closing"},
			{Name: eventFinalize, Src: []string{"closing"}, Dst: "closed"},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if listener != nil {
					listener(stateFromString(e.Src), stateFromString(e.Dst))
				}
			},
		},
	)

	return sm
}

// fire attempts a transition and reports whether it happened. Events
// illegal in the current state are absorbed.
func (m *stateMachine) fire(event string) bool {
	if err := m.machine.Event(context.Background(), event); err != nil {
		m.log.Debugf("event %q ignored in state %s: %v", event, m.machine.Current(), err)

		return false
	}

	return true
}

func (m *stateMachine) current() State {
	return stateFromString(m.machine.Current())
}
