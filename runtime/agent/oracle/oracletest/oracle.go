// Package oracletest provides scripted oracle implementations for exercising
// the orchestration loop without a model provider.
package oracletest

import (
	"context"
	"errors"
	"sync"
	"time"

	"goa.design/aide/runtime/agent/oracle"
)

type (
	// Script replays a fixed sequence of actions and records every input it
	// received. Safe for concurrent use, though loop tests are sequential.
	Script struct {
		mu      sync.Mutex
		actions []step
		next    int
		inputs  []oracle.Input

		// Repeat causes the last action to be replayed once the script is
		// exhausted instead of returning an error.
		Repeat bool
		// Delay is applied before each decision; combined with a short oracle
		// timeout it simulates a stalled model.
		Delay time.Duration
	}

	// Func adapts a function to the oracle.Oracle interface.
	Func func(ctx context.Context, in oracle.Input) (oracle.Action, error)

	step struct {
		action oracle.Action
		err    error
	}
)

// Decide implements oracle.Oracle.
func (f Func) Decide(ctx context.Context, in oracle.Input) (oracle.Action, error) {
	return f(ctx, in)
}

// NewScript returns a Script that replays the given actions in order.
func NewScript(actions ...oracle.Action) *Script {
	s := &Script{}
	for _, a := range actions {
		s.actions = append(s.actions, step{action: a})
	}
	return s
}

// Append adds an action to the tail of the script.
func (s *Script) Append(a oracle.Action) *Script {
	s.mu.Lock()
	s.actions = append(s.actions, step{action: a})
	s.mu.Unlock()
	return s
}

// AppendErr adds a decision error to the tail of the script.
func (s *Script) AppendErr(err error) *Script {
	s.mu.Lock()
	s.actions = append(s.actions, step{err: err})
	s.mu.Unlock()
	return s
}

// Decide implements oracle.Oracle: it records the input and replays the next
// scripted step. The delay, when configured, respects context cancellation so
// timeout tests terminate promptly.
func (s *Script) Decide(ctx context.Context, in oracle.Input) (oracle.Action, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	idx := s.next
	if idx >= len(s.actions) {
		if !s.Repeat || len(s.actions) == 0 {
			s.mu.Unlock()
			return oracle.Action{}, errors.New("oracletest: script exhausted")
		}
		idx = len(s.actions) - 1
	} else {
		s.next++
	}
	st := s.actions[idx]
	delay := s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return oracle.Action{}, ctx.Err()
		}
	}
	if st.err != nil {
		return oracle.Action{}, st.err
	}
	return st.action, nil
}

// Inputs returns a copy of the inputs recorded so far.
func (s *Script) Inputs() []oracle.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]oracle.Input(nil), s.inputs...)
}

// Calls returns how many times Decide was invoked.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}
