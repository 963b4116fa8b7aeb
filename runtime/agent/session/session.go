// Package session defines the conversational state for one user request: the
// append-only turn ledger, budget counters, and the terminal status of the
// orchestration loop.
//
// A Session is created when a request arrives and reaches exactly one of the
// terminal statuses (completed, failed, aborted) when the loop halts.
//
// Contract:
//   - Turns are immutable once appended; the sequence is append-only and
//     monotonically increasing in time.
//   - A session transitions to completed only via a final answer, to failed
//     only via an unrecoverable error or budget exhaustion, and to aborted
//     only via external cancellation.
package session

import (
	"context"
	"errors"
	"time"

	"goa.design/aide/runtime/agent/tools"
)

// Role identifies who produced a turn.
type Role string

const (
	// RoleUser marks the inbound request turn.
	RoleUser Role = "user"
	// RoleAgent marks oracle-produced turns (tool-call intents and the final answer).
	RoleAgent Role = "agent"
	// RoleTool marks tool result turns, including locally synthesized failures.
	RoleTool Role = "tool"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	// StatusRunning indicates the orchestration loop is still cycling.
	StatusRunning Status = "running"
	// StatusCompleted indicates the oracle produced a final answer.
	StatusCompleted Status = "completed"
	// StatusFailed indicates an unrecoverable error or budget exhaustion.
	StatusFailed Status = "failed"
	// StatusAborted indicates external cancellation.
	StatusAborted Status = "aborted"
)

// Terminal reports whether the status is one of the terminal states.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// Reason explains why a session reached failed or aborted.
type Reason string

const (
	// ReasonBudgetExceeded indicates the iteration or wall-clock budget ran out.
	ReasonBudgetExceeded Reason = "budget_exceeded"
	// ReasonOracleTimeout indicates the oracle missed its per-call deadline.
	ReasonOracleTimeout Reason = "oracle_timeout"
	// ReasonMalformedAction indicates the oracle repeatedly returned an
	// action that is neither a final answer nor a valid tool call.
	ReasonMalformedAction Reason = "malformed_action"
	// ReasonOracleError indicates the oracle failed in a way the loop cannot
	// recover from (provider outage, unexpected decode failure).
	ReasonOracleError Reason = "oracle_error"
	// ReasonStoreError indicates the session store rejected a read or write
	// mid-session, so the ledger could not be kept consistent.
	ReasonStoreError Reason = "store_error"
	// ReasonCanceled indicates external cancellation (e.g., client disconnect).
	ReasonCanceled Reason = "canceled"
)

type (
	// Turn is a single immutable entry in the session ledger.
	Turn struct {
		// Role indicates who produced the turn.
		Role Role
		// Content is the turn payload: request text for user turns, rendered
		// arguments or the final answer for agent turns, rendered result or
		// failure message for tool turns.
		Content string
		// ToolName identifies the tool involved, for agent tool-call turns and
		// tool result turns. Empty otherwise.
		ToolName tools.Ident
		// ToolCallID is the causal link to the tool invocation that produced
		// this turn. Empty for turns not tied to a tool call.
		ToolCallID string
		// ErrorKind carries the failure classification for failed tool turns
		// (e.g., "unknown_tool", "transient"). Empty on success.
		ErrorKind string
		// Classification labels final agent turns as success, info, warning,
		// or error for downstream presentation. Empty on other turns.
		Classification string
		// CreatedAt records when the turn was appended. Assigned by the store
		// when zero.
		CreatedAt time.Time
	}

	// Session captures the full lifecycle of one user request through the
	// orchestration loop.
	Session struct {
		// ID is the unique session identifier.
		ID string
		// Status is the current lifecycle state.
		Status Status
		// Reason explains failed or aborted states. Empty otherwise.
		Reason Reason
		// Turns is the append-only conversation ledger, oldest first.
		Turns []Turn
		// Iterations counts completed tool cycles.
		Iterations int
		// MaxIterations is the iteration budget. Always positive.
		MaxIterations int
		// MaxDuration is the wall-clock budget. Always positive.
		MaxDuration time.Duration
		// GrantedScopes lists the authorization scopes the request holds.
		// Checked against each tool's required scope at dispatch time.
		GrantedScopes []string
		// CreatedAt records when the session was created.
		CreatedAt time.Time
		// EndedAt is set when the session reaches a terminal status.
		EndedAt *time.Time
	}

	// Settings carries the per-session configuration fixed at creation.
	Settings struct {
		// MaxIterations bounds the number of tool cycles. Required.
		MaxIterations int
		// MaxDuration bounds session wall-clock time. Required.
		MaxDuration time.Duration
		// GrantedScopes lists the authorization scopes the request holds.
		GrantedScopes []string
	}

	// Store persists sessions and enforces the ledger invariants. One user
	// request maps to one session; stores must be safe for concurrent use
	// across sessions (a single session is only ever mutated by its own
	// worker).
	Store interface {
		// CreateSession creates a running session with the given settings.
		// Returns ErrDuplicateSession when the identifier is already taken.
		CreateSession(ctx context.Context, id string, createdAt time.Time, settings Settings) (Session, error)
		// LoadSession loads a session. Returns ErrSessionNotFound when absent.
		LoadSession(ctx context.Context, id string) (Session, error)
		// AppendTurn appends a turn to the ledger and returns the stored turn
		// with its assigned timestamp. Returns ErrSessionEnded on terminal
		// sessions and ErrTurnOutOfOrder when the turn's timestamp precedes
		// the ledger tail.
		AppendTurn(ctx context.Context, id string, turn Turn) (Turn, error)
		// SetIterations records the completed tool-cycle count.
		SetIterations(ctx context.Context, id string, iterations int) error
		// EndSession moves the session to a terminal status. Idempotent when
		// re-applied with the same status; returns ErrSessionEnded when the
		// session already ended with a different status.
		EndSession(ctx context.Context, id string, status Status, reason Reason, endedAt time.Time) (Session, error)
	}
)

var (
	// ErrSessionNotFound indicates a session does not exist in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded indicates a session is terminal and accepts no writes.
	ErrSessionEnded = errors.New("session ended")
	// ErrDuplicateSession indicates a session identifier collision.
	ErrDuplicateSession = errors.New("duplicate session")
	// ErrTurnOutOfOrder indicates an append that would violate ledger time order.
	ErrTurnOutOfOrder = errors.New("turn out of order")
)

// LastTurn returns the ledger tail, or a zero Turn and false when empty.
func (s Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// Validate reports whether the settings are usable.
func (s Settings) Validate() error {
	if s.MaxIterations <= 0 {
		return errors.New("max iterations must be positive")
	}
	if s.MaxDuration <= 0 {
		return errors.New("max duration must be positive")
	}
	return nil
}
