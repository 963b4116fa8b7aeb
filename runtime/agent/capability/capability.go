// Package capability defines the uniform tool-invocation contract implemented
// once per external service family (calendar, tasks, repository host) and the
// dispatcher that routes validated tool calls to the owning adapter.
//
// Adapters own all protocol and auth details of their external API; the core
// never constructs raw requests itself. Every failure path returns a
// classified Result — adapters never panic through the dispatcher, and the
// dispatcher converts a stuck or timed-out call into a transient
// "result unknown" failure because the external side effect's completion
// cannot be established.
package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goa.design/aide/runtime/agent/toolerrors"
	"goa.design/aide/runtime/agent/tools"
)

type (
	// Call is one validated tool invocation handed to an adapter.
	Call struct {
		// Tool is the registered tool identifier.
		Tool tools.Ident
		// Args is the argument map as returned by registry validation.
		Args map[string]any
		// InvocationID uniquely identifies this call. Adapters that support
		// idempotency keys may forward it to the external API; the protection
		// is advisory only.
		InvocationID string
	}

	// Result is the outcome of one tool invocation.
	Result struct {
		// InvocationID back-references the Call.
		InvocationID string
		// Payload carries the success payload. Nil when Err is set.
		Payload any
		// Err is the classified failure. Nil on success.
		Err *toolerrors.ToolError
		// Latency is the wall-clock duration of the invocation.
		Latency time.Duration
	}

	// Adapter wraps exactly one external capability family. Implementations
	// must classify every failure (transient, permanent, partial) and must
	// not panic: the dispatcher treats a recovered panic as a permanent
	// failure, losing the adapter's own diagnostics.
	Adapter interface {
		// Family returns the capability family identifier matched against
		// tools.Spec.Family (e.g., "calendar").
		Family() string
		// Invoke executes the call and returns a classified result. The
		// context carries the per-call deadline.
		Invoke(ctx context.Context, call Call) Result
	}

	// Dispatcher routes validated calls to the adapter owning the tool's
	// family, bounding each call with a timeout. Safe for concurrent use.
	Dispatcher struct {
		adapters map[string]Adapter
		timeout  time.Duration
	}
)

// DefaultTimeout bounds adapter calls when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Success constructs a successful result.
func Success(invocationID string, payload any) Result {
	return Result{InvocationID: invocationID, Payload: payload}
}

// Failure constructs a failed result of the given kind.
func Failure(invocationID string, kind toolerrors.Kind, message string) Result {
	return Result{InvocationID: invocationID, Err: toolerrors.New(kind, message)}
}

// FailureErr constructs a failed result from an existing tool error.
func FailureErr(invocationID string, err *toolerrors.ToolError) Result {
	return Result{InvocationID: invocationID, Err: err}
}

// Retryable reports whether the oracle may reasonably retry the call.
func (r Result) Retryable() bool {
	return r.Err.Retryable()
}

// NewDispatcher indexes the adapters by family. Duplicate families and nil
// adapters are rejected. A non-positive timeout falls back to DefaultTimeout.
func NewDispatcher(adapters []Adapter, timeout time.Duration) (*Dispatcher, error) {
	if len(adapters) == 0 {
		return nil, errors.New("at least one adapter is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	index := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			return nil, errors.New("nil adapter")
		}
		family := a.Family()
		if family == "" {
			return nil, errors.New("adapter family is required")
		}
		if _, dup := index[family]; dup {
			return nil, fmt.Errorf("duplicate adapter for family %q", family)
		}
		index[family] = a
	}
	return &Dispatcher{adapters: index, timeout: timeout}, nil
}

// Dispatch executes the call against the adapter owning spec.Family. The call
// runs with a bounded deadline; when the deadline expires before the adapter
// returns, the result is a transient failure with an unknown side-effect
// state ("result unknown") rather than an assumed success or failure.
func (d *Dispatcher) Dispatch(ctx context.Context, spec tools.Spec, call Call) Result {
	adapter, ok := d.adapters[spec.Family]
	if !ok {
		return Failure(call.InvocationID, toolerrors.KindPermanent,
			fmt.Sprintf("no adapter registered for capability family %q", spec.Family))
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- invokeSafely(callCtx, adapter, call)
	}()

	var res Result
	select {
	case res = <-done:
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			res = Failure(call.InvocationID, toolerrors.KindTransient,
				fmt.Sprintf("tool %q timed out after %s; result unknown", call.Tool, d.timeout))
		} else {
			res = Failure(call.InvocationID, toolerrors.KindTransient,
				fmt.Sprintf("tool %q canceled before completion; result unknown", call.Tool))
		}
	}
	res.InvocationID = call.InvocationID
	if res.Latency == 0 {
		res.Latency = time.Since(start)
	}
	return res
}

// invokeSafely contains adapter panics so a misbehaving integration cannot
// take down the session worker.
func invokeSafely(ctx context.Context, adapter Adapter, call Call) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(call.InvocationID, toolerrors.KindPermanent,
				fmt.Sprintf("tool %q panicked: %v", call.Tool, r))
		}
	}()
	return adapter.Invoke(ctx, call)
}
