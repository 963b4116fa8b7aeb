package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/aide/runtime/agent/toolerrors"
	"goa.design/aide/runtime/agent/tools"
)

// fakeAdapter records calls and returns a scripted result.
type fakeAdapter struct {
	family string
	invoke func(ctx context.Context, call Call) Result
	calls  []Call
}

func (a *fakeAdapter) Family() string { return a.family }

func (a *fakeAdapter) Invoke(ctx context.Context, call Call) Result {
	a.calls = append(a.calls, call)
	return a.invoke(ctx, call)
}

func calendarSpec() tools.Spec {
	return tools.Spec{
		Name:        "list_calendar_events",
		Description: "List events on the calendar.",
		Family:      "calendar",
		Scope:       "calendar:read",
	}
}

func TestNewDispatcherRejectsBadAdapterSets(t *testing.T) {
	_, err := NewDispatcher(nil, time.Second)
	require.Error(t, err)

	_, err = NewDispatcher([]Adapter{nil}, time.Second)
	require.Error(t, err)

	_, err = NewDispatcher([]Adapter{&fakeAdapter{family: ""}}, time.Second)
	require.Error(t, err)

	_, err = NewDispatcher([]Adapter{
		&fakeAdapter{family: "calendar"},
		&fakeAdapter{family: "calendar"},
	}, time.Second)
	require.ErrorContains(t, err, "duplicate adapter")
}

func TestDispatchRoutesToOwningAdapter(t *testing.T) {
	adapter := &fakeAdapter{
		family: "calendar",
		invoke: func(_ context.Context, call Call) Result {
			return Success(call.InvocationID, map[string]any{"events": []any{}})
		},
	}
	d, err := NewDispatcher([]Adapter{adapter}, time.Second)
	require.NoError(t, err)

	res := d.Dispatch(context.Background(), calendarSpec(), Call{
		Tool:         "list_calendar_events",
		InvocationID: "inv-1",
	})
	require.Nil(t, res.Err)
	require.Equal(t, "inv-1", res.InvocationID)
	require.Greater(t, res.Latency, time.Duration(0))
	require.Len(t, adapter.calls, 1)
	require.Equal(t, tools.Ident("list_calendar_events"), adapter.calls[0].Tool)
}

func TestDispatchUnknownFamilyIsPermanent(t *testing.T) {
	adapter := &fakeAdapter{family: "tasks", invoke: func(_ context.Context, call Call) Result {
		return Success(call.InvocationID, nil)
	}}
	d, err := NewDispatcher([]Adapter{adapter}, time.Second)
	require.NoError(t, err)

	res := d.Dispatch(context.Background(), calendarSpec(), Call{Tool: "list_calendar_events", InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindPermanent, res.Err.Kind)
	require.Empty(t, adapter.calls)
}

func TestDispatchTimeoutIsTransientResultUnknown(t *testing.T) {
	adapter := &fakeAdapter{
		family: "calendar",
		invoke: func(ctx context.Context, call Call) Result {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return Success(call.InvocationID, "late")
		},
	}
	d, err := NewDispatcher([]Adapter{adapter}, 20*time.Millisecond)
	require.NoError(t, err)

	res := d.Dispatch(context.Background(), calendarSpec(), Call{Tool: "list_calendar_events", InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindTransient, res.Err.Kind)
	require.Contains(t, res.Err.Message, "result unknown")
	require.True(t, res.Retryable())
}

func TestDispatchCancellationIsTransientResultUnknown(t *testing.T) {
	started := make(chan struct{})
	adapter := &fakeAdapter{
		family: "calendar",
		invoke: func(ctx context.Context, call Call) Result {
			close(started)
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return Success(call.InvocationID, "late")
		},
	}
	d, err := NewDispatcher([]Adapter{adapter}, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res := d.Dispatch(ctx, calendarSpec(), Call{Tool: "list_calendar_events", InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindTransient, res.Err.Kind)
	require.Contains(t, res.Err.Message, "canceled")
	require.Contains(t, res.Err.Message, "result unknown")
}

func TestDispatchRecoversAdapterPanic(t *testing.T) {
	adapter := &fakeAdapter{
		family: "calendar",
		invoke: func(_ context.Context, _ Call) Result {
			panic("adapter bug")
		},
	}
	d, err := NewDispatcher([]Adapter{adapter}, time.Second)
	require.NoError(t, err)

	res := d.Dispatch(context.Background(), calendarSpec(), Call{Tool: "list_calendar_events", InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindPermanent, res.Err.Kind)
	require.Contains(t, res.Err.Message, "panicked")
}

func TestDispatchPreservesAdapterClassification(t *testing.T) {
	adapter := &fakeAdapter{
		family: "calendar",
		invoke: func(_ context.Context, call Call) Result {
			return Failure(call.InvocationID, toolerrors.KindPartial, "2 of 3 events created")
		},
	}
	d, err := NewDispatcher([]Adapter{adapter}, time.Second)
	require.NoError(t, err)

	res := d.Dispatch(context.Background(), calendarSpec(), Call{Tool: "create_calendar_event", InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindPartial, res.Err.Kind)
	require.False(t, res.Retryable())
}
