// Package runtime implements the orchestration loop: the state machine that
// drives one session from the seeded user request to a terminal status.
//
// Each cycle queries the oracle, validates and dispatches the requested tool
// call through the registry and capability dispatcher, folds the result back
// into the session ledger, and re-queries the oracle until a final answer is
// produced or a budget or error condition halts the loop.
//
// States: AWAITING_DECISION -> DISPATCHING_TOOL -> APPLYING_RESULT ->
// AWAITING_DECISION, with terminal COMPLETED, FAILED, and ABORTED.
//
// Policy invariants:
//   - The oracle is the sole decision authority. The loop validates form and
//     budget, never tool choice.
//   - Locally detectable faults (unknown tool, invalid arguments, missing
//     authorization scope) are synthesized as failure results without calling
//     any adapter, giving the oracle a chance to self-correct.
//   - Transient adapter failures are surfaced to the oracle as tool turns, not
//     auto-retried, so retry-or-abandon is itself a reasoning decision bounded
//     by the iteration budget.
//   - Trace emission is fire-and-forget; emitter failures are logged and
//     never abort a session.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"goa.design/aide/runtime/agent/capability"
	"goa.design/aide/runtime/agent/hooks"
	"goa.design/aide/runtime/agent/oracle"
	"goa.design/aide/runtime/agent/registry"
	"goa.design/aide/runtime/agent/session"
	"goa.design/aide/runtime/agent/session/inmem"
	"goa.design/aide/runtime/agent/telemetry"
	"goa.design/aide/runtime/agent/toolerrors"
	"goa.design/aide/runtime/agent/tools"
)

const (
	// DefaultMaxIterations bounds tool cycles when no budget is configured.
	DefaultMaxIterations = 8
	// DefaultMaxDuration bounds session wall-clock time when no budget is
	// configured.
	DefaultMaxDuration = 2 * time.Minute
	// DefaultOracleTimeout bounds a single oracle decision.
	DefaultOracleTimeout = 30 * time.Second

	// maxMalformedStreak is how many consecutive malformed oracle actions are
	// tolerated before the session fails. The first one is fed back as a tool
	// turn so the oracle can self-correct.
	maxMalformedStreak = 2
)

type (
	// Budgets carries the mandatory loop ceilings. Zero values fall back to
	// the package defaults.
	Budgets struct {
		// MaxIterations bounds completed tool cycles per session.
		MaxIterations int
		// MaxDuration bounds session wall-clock time.
		MaxDuration time.Duration
		// OracleTimeout bounds each oracle decision.
		OracleTimeout time.Duration
	}

	// Config assembles the runner's collaborators. Oracle, Registry, and
	// Dispatcher are required; the session store defaults to the in-memory
	// implementation and telemetry defaults to no-ops.
	Config struct {
		// Oracle decides the next action each cycle.
		Oracle oracle.Oracle
		// Registry is the frozen tool catalog.
		Registry *registry.Registry
		// Dispatcher routes validated calls to capability adapters.
		Dispatcher *capability.Dispatcher
		// Sessions persists session state. Defaults to inmem.New().
		Sessions session.Store
		// Trace receives an event on every loop transition. Defaults to a
		// fresh bus with no subscribers.
		Trace hooks.Bus
		// Logger, Metrics, and Tracer default to no-op implementations.
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
		Tracer  telemetry.Tracer
		// Budgets configures the default per-session ceilings.
		Budgets Budgets
	}

	// Runner executes sessions. Safe for concurrent use: each StartSession
	// call runs its own loop; sessions share only the frozen registry, the
	// trace bus, and the session store.
	Runner struct {
		oracle     oracle.Oracle
		registry   *registry.Registry
		dispatcher *capability.Dispatcher
		sessions   session.Store
		trace      hooks.Bus
		logger     telemetry.Logger
		metrics    telemetry.Metrics
		tracer     telemetry.Tracer
		budgets    Budgets
	}

	// StartOption customizes one session.
	StartOption func(*startOptions)

	startOptions struct {
		sessionID     string
		scopes        []string
		maxIterations int
		maxDuration   time.Duration
	}
)

// WithSessionID fixes the session identifier instead of generating one.
func WithSessionID(id string) StartOption {
	return func(o *startOptions) { o.sessionID = id }
}

// WithScopes grants authorization scopes to the session.
func WithScopes(scopes ...string) StartOption {
	return func(o *startOptions) { o.scopes = append(o.scopes, scopes...) }
}

// WithMaxIterations overrides the configured iteration budget.
func WithMaxIterations(n int) StartOption {
	return func(o *startOptions) { o.maxIterations = n }
}

// WithMaxDuration overrides the configured wall-clock budget.
func WithMaxDuration(d time.Duration) StartOption {
	return func(o *startOptions) { o.maxDuration = d }
}

// New validates the configuration and returns a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Sessions == nil {
		cfg.Sessions = inmem.New()
	}
	if cfg.Trace == nil {
		cfg.Trace = hooks.NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewNoopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NewNoopTracer()
	}
	if cfg.Budgets.MaxIterations <= 0 {
		cfg.Budgets.MaxIterations = DefaultMaxIterations
	}
	if cfg.Budgets.MaxDuration <= 0 {
		cfg.Budgets.MaxDuration = DefaultMaxDuration
	}
	if cfg.Budgets.OracleTimeout <= 0 {
		cfg.Budgets.OracleTimeout = DefaultOracleTimeout
	}
	return &Runner{
		oracle:     cfg.Oracle,
		registry:   cfg.Registry,
		dispatcher: cfg.Dispatcher,
		sessions:   cfg.Sessions,
		trace:      cfg.Trace,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		budgets:    cfg.Budgets,
	}, nil
}

// StartSession creates a session seeded with the user's request and runs the
// orchestration loop to a terminal status. The returned session always carries
// the last coherent transcript; a non-nil error is returned only for
// infrastructure failures (store unavailable), never for reasoning or tool
// failures — those are reflected in the session status and reason.
func (r *Runner) StartSession(ctx context.Context, userRequest string, opts ...StartOption) (session.Session, error) {
	if strings.TrimSpace(userRequest) == "" {
		return session.Session{}, errors.New("user request is required")
	}
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	if o.maxIterations <= 0 {
		o.maxIterations = r.budgets.MaxIterations
	}
	if o.maxDuration <= 0 {
		o.maxDuration = r.budgets.MaxDuration
	}

	sess, err := r.sessions.CreateSession(ctx, o.sessionID, time.Now().UTC(), session.Settings{
		MaxIterations: o.maxIterations,
		MaxDuration:   o.maxDuration,
		GrantedScopes: o.scopes,
	})
	if err != nil {
		return session.Session{}, fmt.Errorf("create session: %w", err)
	}
	if _, err := r.sessions.AppendTurn(ctx, sess.ID, session.Turn{
		Role:    session.RoleUser,
		Content: userRequest,
	}); err != nil {
		return session.Session{}, fmt.Errorf("seed user turn: %w", err)
	}
	r.emit(ctx, hooks.Event{
		SessionID: sess.ID,
		Kind:      hooks.SessionStarted,
		At:        time.Now().UTC(),
		Payload:   map[string]any{"request": userRequest},
	})
	r.metrics.IncCounter(telemetry.MetricSessionsStarted, 1)

	ctx, span := r.tracer.Start(ctx, telemetry.SpanSessionRun)
	defer span.End()

	return r.run(ctx, sess.ID, o)
}

// run drives the state machine. Cancellation and budgets are checked at every
// transition boundary; an in-flight oracle or adapter call is never
// interrupted mid-call, but no further cycle starts once the session is
// canceled or out of budget.
func (r *Runner) run(ctx context.Context, sessionID string, o startOptions) (session.Session, error) {
	deadline := time.Now().Add(o.maxDuration)
	iterations := 0
	malformedStreak := 0
	partial := false
	toolFailed := false
	applied := make(map[string]bool)

	for {
		// Transition boundary: cancellation, then wall clock.
		if ctx.Err() != nil {
			return r.end(sessionID, session.StatusAborted, session.ReasonCanceled)
		}
		if time.Now().After(deadline) {
			return r.end(sessionID, session.StatusFailed, session.ReasonBudgetExceeded)
		}

		// AWAITING_DECISION
		sess, err := r.sessions.LoadSession(ctx, sessionID)
		if err != nil {
			return r.failInfra(sessionID, fmt.Errorf("load session: %w", err))
		}
		action, latency, err := r.decide(ctx, sess)
		if err != nil {
			if ctx.Err() != nil {
				return r.end(sessionID, session.StatusAborted, session.ReasonCanceled)
			}
			if errors.Is(err, context.DeadlineExceeded) {
				r.logger.Warn(ctx, "oracle decision timed out", "session_id", sessionID)
				return r.end(sessionID, session.StatusFailed, session.ReasonOracleTimeout)
			}
			r.logger.Error(ctx, "oracle decision failed", "session_id", sessionID, "err", err)
			return r.end(sessionID, session.StatusFailed, session.ReasonOracleError)
		}
		r.metrics.RecordTimer(telemetry.MetricOracleDecide, latency)

		if verr := action.Validate(); verr != nil {
			malformedStreak++
			r.emitDecision(ctx, sessionID, "malformed", "", latency)
			if malformedStreak >= maxMalformedStreak {
				return r.end(sessionID, session.StatusFailed, session.ReasonMalformedAction)
			}
			// Feed the rejection back once so the oracle can self-correct.
			if _, err := r.sessions.AppendTurn(ctx, sessionID, session.Turn{
				Role:      session.RoleTool,
				Content:   fmt.Sprintf("action rejected: %v; respond with exactly one tool call or a final answer", verr),
				ErrorKind: string(toolerrors.KindMalformedAction),
			}); err != nil {
				return r.failInfra(sessionID, fmt.Errorf("append malformed-action turn: %w", err))
			}
			continue
		}
		malformedStreak = 0

		if action.Final != nil {
			message := action.Final.Message
			if partial {
				message = flagPartial(message)
			}
			if _, err := r.sessions.AppendTurn(ctx, sessionID, session.Turn{
				Role:           session.RoleAgent,
				Content:        message,
				Classification: classify(message, toolFailed),
			}); err != nil {
				return r.failInfra(sessionID, fmt.Errorf("append final turn: %w", err))
			}
			r.emitDecision(ctx, sessionID, "final", "", latency)
			return r.end(sessionID, session.StatusCompleted, "")
		}

		// DISPATCHING_TOOL
		call := *action.ToolCall
		invocationID := uuid.NewString()
		r.emitDecision(ctx, sessionID, "tool_call", string(call.Name), latency)
		if _, err := r.sessions.AppendTurn(ctx, sessionID, session.Turn{
			Role:       session.RoleAgent,
			Content:    renderJSON(call.Args),
			ToolName:   call.Name,
			ToolCallID: invocationID,
		}); err != nil {
			return r.failInfra(sessionID, fmt.Errorf("append tool-call turn: %w", err))
		}

		result := r.dispatch(ctx, sessionID, sess.GrantedScopes, call, invocationID)

		// APPLYING_RESULT
		if applied[result.InvocationID] {
			// At-most-once guard; a duplicate result is dropped.
			r.logger.Warn(ctx, "duplicate tool result dropped", "session_id", sessionID, "invocation_id", result.InvocationID)
			continue
		}
		applied[result.InvocationID] = true

		turn := session.Turn{
			Role:       session.RoleTool,
			ToolName:   call.Name,
			ToolCallID: result.InvocationID,
		}
		if result.Err != nil {
			turn.Content = result.Err.Message
			turn.ErrorKind = string(result.Err.Kind)
			toolFailed = true
			if result.Err.Kind == toolerrors.KindPartial {
				partial = true
			}
		} else {
			turn.Content = renderJSON(result.Payload)
		}
		if _, err := r.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
			return r.failInfra(sessionID, fmt.Errorf("append result turn: %w", err))
		}
		r.emit(ctx, hooks.Event{
			SessionID:    sessionID,
			Kind:         hooks.ToolResultApplied,
			At:           time.Now().UTC(),
			Tool:         call.Name,
			InvocationID: result.InvocationID,
			Latency:      result.Latency,
			ErrorKind:    turn.ErrorKind,
		})
		r.metrics.RecordTimer(telemetry.MetricToolLatency, result.Latency, "tool", string(call.Name))

		iterations++
		if err := r.sessions.SetIterations(ctx, sessionID, iterations); err != nil {
			return r.failInfra(sessionID, fmt.Errorf("record iterations: %w", err))
		}
		if iterations >= o.maxIterations {
			return r.end(sessionID, session.StatusFailed, session.ReasonBudgetExceeded)
		}
	}
}

// decide queries the oracle under its per-call timeout, serializing the full
// ledger in chronological order. The call runs in its own goroutine so an
// oracle that ignores its context cannot hold the session past the timeout.
func (r *Runner) decide(ctx context.Context, sess session.Session) (oracle.Action, time.Duration, error) {
	decideCtx, cancel := context.WithTimeout(ctx, r.budgets.OracleTimeout)
	defer cancel()
	in := oracle.Input{
		SessionID: sess.ID,
		Turns:     sess.Turns,
		Tools:     r.registry.Specs(),
	}
	type outcome struct {
		action oracle.Action
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		action, err := r.oracle.Decide(decideCtx, in)
		done <- outcome{action: action, err: err}
	}()
	select {
	case out := <-done:
		return out.action, time.Since(start), out.err
	case <-decideCtx.Done():
		return oracle.Action{}, time.Since(start), decideCtx.Err()
	}
}

// dispatch resolves, authorizes, and validates the call, synthesizing local
// failures without touching any adapter, then hands well-formed calls to the
// capability dispatcher.
func (r *Runner) dispatch(ctx context.Context, sessionID string, scopes []string, call oracle.ToolCall, invocationID string) capability.Result {
	spec, err := r.registry.Resolve(call.Name)
	if err != nil {
		r.metrics.IncCounter(telemetry.MetricToolRejected, 1, "reason", "unknown_tool")
		return capability.Failure(invocationID, toolerrors.KindUnknownTool,
			fmt.Sprintf("tool %q is not registered", call.Name))
	}
	if !scopeGranted(scopes, spec.Scope) {
		r.metrics.IncCounter(telemetry.MetricToolRejected, 1, "reason", "authorization_denied")
		return capability.Failure(invocationID, toolerrors.KindAuthorizationDenied,
			fmt.Sprintf("tool %q requires scope %q", call.Name, spec.Scope))
	}
	args, err := r.registry.ValidateArgs(call.Name, call.Args)
	if err != nil {
		r.metrics.IncCounter(telemetry.MetricToolRejected, 1, "reason", "invalid_arguments")
		return capability.FailureErr(invocationID, toolerrors.FromError(err))
	}

	r.emit(ctx, hooks.Event{
		SessionID:    sessionID,
		Kind:         hooks.ToolDispatched,
		At:           time.Now().UTC(),
		Tool:         call.Name,
		InvocationID: invocationID,
		Payload:      map[string]any{"args": args},
	})
	ctx, span := r.tracer.Start(ctx, telemetry.SpanToolDispatch)
	defer span.End()
	return r.dispatcher.Dispatch(ctx, spec, capability.Call{
		Tool:         call.Name,
		Args:         args,
		InvocationID: invocationID,
	})
}

// end moves the session to a terminal status and returns the stored state.
func (r *Runner) end(sessionID string, status session.Status, reason session.Reason) (session.Session, error) {
	// The loop context may already be canceled; termination bookkeeping uses
	// a detached context so the terminal status is always recorded.
	ctx := context.Background()
	sess, err := r.sessions.EndSession(ctx, sessionID, status, reason, time.Now().UTC())
	if err != nil {
		return session.Session{}, fmt.Errorf("end session: %w", err)
	}
	r.emit(ctx, hooks.Event{
		SessionID: sessionID,
		Kind:      hooks.SessionEnded,
		At:        time.Now().UTC(),
		Payload:   map[string]any{"status": string(status), "reason": string(reason)},
	})
	r.metrics.IncCounter(telemetry.MetricSessionsEnded, 1, "status", string(status))
	return sess, nil
}

// failInfra ends the session as failed with a store-level reason and surfaces
// the infrastructure error to the caller.
func (r *Runner) failInfra(sessionID string, err error) (session.Session, error) {
	sess, endErr := r.end(sessionID, session.StatusFailed, session.ReasonStoreError)
	if endErr != nil {
		return session.Session{}, errors.Join(err, endErr)
	}
	return sess, err
}

// emit publishes a trace event. Failures are logged and swallowed.
func (r *Runner) emit(ctx context.Context, event hooks.Event) {
	if err := r.trace.Publish(ctx, event); err != nil {
		r.logger.Warn(ctx, "trace emission failed", "session_id", event.SessionID, "kind", string(event.Kind), "err", err)
	}
}

func (r *Runner) emitDecision(ctx context.Context, sessionID, decision, tool string, latency time.Duration) {
	event := hooks.Event{
		SessionID: sessionID,
		Kind:      hooks.ActionDecided,
		At:        time.Now().UTC(),
		Latency:   latency,
		Payload:   map[string]any{"decision": decision},
	}
	if tool != "" {
		event.Tool = tools.Ident(tool)
		event.Payload["tool"] = tool
	}
	r.emit(ctx, event)
}

func scopeGranted(granted []string, required string) bool {
	for _, s := range granted {
		if s == required {
			return true
		}
	}
	return false
}

// flagPartial appends an explicit caution when any tool reported a partial
// failure, so the final answer never asserts unqualified success.
func flagPartial(message string) string {
	const caution = "Note: at least one action may have partially completed upstream; please verify before retrying."
	if strings.Contains(strings.ToLower(message), "verify") {
		return message
	}
	return strings.TrimRight(message, " \n") + "\n\n" + caution
}

func renderJSON(v any) string {
	if v == nil {
		return "{}"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
