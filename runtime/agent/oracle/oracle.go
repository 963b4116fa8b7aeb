// Package oracle defines the reasoning contract for agents. The oracle is the
// decision-making core: given the session ledger and the tool catalog, it
// returns exactly one Action per invocation — either a final answer or a tool
// call. The orchestration loop never second-guesses which tool the oracle
// picks, only whether the call is well formed and within budget, which keeps
// the loop deterministic and fully testable with a scripted oracle.
//
// Implementations typically wrap LLM provider SDKs (see features/oracle);
// they must be stateless with respect to sessions — all per-session state
// travels in the Input.
package oracle

import (
	"context"
	"errors"

	"goa.design/aide/runtime/agent/session"
	"goa.design/aide/runtime/agent/tools"
)

// ErrRateLimited signals that the backing model provider rejected the request
// due to rate limiting. Middleware (features/oracle/middleware) watches for
// this sentinel to back off.
var ErrRateLimited = errors.New("oracle rate limited")

type (
	// Oracle decides the next action for a session. Decide must be called with
	// the full turn ledger in its stable, chronological order and must either
	// return within the caller's context deadline or honor cancellation.
	Oracle interface {
		Decide(ctx context.Context, in Input) (Action, error)
	}

	// Input carries everything the oracle may consider for one decision.
	Input struct {
		// SessionID identifies the session, for logging and provider-side
		// correlation. Oracles must not use it to accumulate state.
		SessionID string
		// Turns is the full conversation ledger, oldest first.
		Turns []session.Turn
		// Tools is the catalog of callable tools, ordered by name. Oracles
		// forward the specs' schemas to the model so the model requests
		// arguments in the shape the registry enforces.
		Tools []tools.Spec
	}

	// Action is the oracle's decision: exactly one of Final or ToolCall is
	// non-nil. Anything else is a malformed action the loop feeds back to the
	// oracle once before failing the session.
	Action struct {
		// Final terminates the session with an answer for the user.
		Final *FinalAnswer
		// ToolCall requests one tool invocation.
		ToolCall *ToolCall
	}

	// FinalAnswer is the terminal response returned to the caller.
	FinalAnswer struct {
		// Message is the answer text.
		Message string
	}

	// ToolCall requests the invocation of one named tool. Arguments are
	// validated against the registry schema before any adapter is called.
	ToolCall struct {
		// Name identifies the tool to execute.
		Name tools.Ident
		// Args is the raw argument mapping as produced by the model.
		Args map[string]any
	}
)

// Validate reports whether the action carries exactly one variant with usable
// content.
func (a Action) Validate() error {
	switch {
	case a.Final == nil && a.ToolCall == nil:
		return errors.New("action carries neither a final answer nor a tool call")
	case a.Final != nil && a.ToolCall != nil:
		return errors.New("action carries both a final answer and a tool call")
	case a.Final != nil && a.Final.Message == "":
		return errors.New("final answer is empty")
	case a.ToolCall != nil && a.ToolCall.Name == "":
		return errors.New("tool call is missing a tool name")
	}
	return nil
}

// Final constructs a final-answer action.
func Final(message string) Action {
	return Action{Final: &FinalAnswer{Message: message}}
}

// Call constructs a tool-call action.
func Call(name tools.Ident, args map[string]any) Action {
	return Action{ToolCall: &ToolCall{Name: name, Args: args}}
}
