// Package hooks defines the trace event stream emitted by the orchestration
// loop on every state transition. Emission is fire-and-forget from the loop's
// perspective: subscriber failures are reported to the publisher for logging
// but never abort a session.
package hooks

import (
	"time"

	"goa.design/aide/runtime/agent/tools"
)

// EventKind identifies the loop transition that produced an event.
type EventKind string

const (
	// SessionStarted is emitted once when the session is seeded with the
	// user's request.
	SessionStarted EventKind = "session_started"
	// ActionDecided is emitted after every oracle decision.
	ActionDecided EventKind = "action_decided"
	// ToolDispatched is emitted when a validated call is handed to an adapter.
	ToolDispatched EventKind = "tool_dispatched"
	// ToolResultApplied is emitted when a result (or synthesized failure) is
	// appended to the ledger.
	ToolResultApplied EventKind = "tool_result_applied"
	// SessionEnded is emitted once with the terminal status.
	SessionEnded EventKind = "session_ended"
)

// Event is one trace record. Payload contents vary by kind: decisions carry
// the chosen action, dispatches carry the argument map, results carry the
// outcome summary.
type Event struct {
	// SessionID identifies the session the event belongs to.
	SessionID string
	// Kind is the transition that produced the event.
	Kind EventKind
	// At is the emission timestamp.
	At time.Time
	// Tool is set on tool-related events.
	Tool tools.Ident
	// InvocationID correlates dispatch and result events of one call.
	InvocationID string
	// Latency is set on ToolResultApplied (adapter latency) and ActionDecided
	// (oracle latency).
	Latency time.Duration
	// ErrorKind carries the failure classification on failed outcomes.
	ErrorKind string
	// Payload carries kind-specific structured details.
	Payload map[string]any
}
