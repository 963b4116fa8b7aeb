package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"goa.design/aide/runtime/agent/hooks"
)

type fakeStreamClient struct {
	args   []*redis.XAddArgs
	addErr error
}

func (f *fakeStreamClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, args)
	cmd := redis.NewStringCmd(ctx)
	if f.addErr != nil {
		cmd.SetErr(f.addErr)
	} else {
		cmd.SetVal("1-1")
	}
	return cmd
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Options{})
	require.EqualError(t, err, "redis client is required")
}

func TestHandleEventAppendsEntry(t *testing.T) {
	client := &fakeStreamClient{}
	sink := newSinkWithClient(client, "", 0)

	at := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	err := sink.HandleEvent(context.Background(), hooks.Event{
		SessionID:    "sess-1",
		Kind:         hooks.ToolResultApplied,
		At:           at,
		Tool:         "create_calendar_event",
		InvocationID: "inv-1",
		Latency:      42 * time.Millisecond,
		Payload:      map[string]any{"status": "success"},
	})
	require.NoError(t, err)
	require.Len(t, client.args, 1)

	args := client.args[0]
	require.Equal(t, defaultStream, args.Stream)
	require.Equal(t, int64(defaultMaxLen), args.MaxLen)
	require.True(t, args.Approx)

	values := args.Values.(map[string]any)
	require.Equal(t, "sess-1", values["session_id"])
	require.Equal(t, "tool_result_applied", values["kind"])
	require.Equal(t, "2026-03-10T09:30:00Z", values["at"])
	require.Equal(t, "create_calendar_event", values["tool"])
	require.Equal(t, "inv-1", values["invocation_id"])
	require.Equal(t, int64(42), values["latency_ms"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &payload))
	require.Equal(t, "success", payload["status"])
}

func TestHandleEventOmitsEmptyFields(t *testing.T) {
	client := &fakeStreamClient{}
	sink := newSinkWithClient(client, "trace:test", 100)

	err := sink.HandleEvent(context.Background(), hooks.Event{
		SessionID: "sess-1",
		Kind:      hooks.SessionStarted,
		At:        time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, client.args, 1)

	args := client.args[0]
	require.Equal(t, "trace:test", args.Stream)
	values := args.Values.(map[string]any)
	require.NotContains(t, values, "tool")
	require.NotContains(t, values, "invocation_id")
	require.NotContains(t, values, "latency_ms")
	require.NotContains(t, values, "error_kind")
	require.NotContains(t, values, "payload")
}

func TestHandleEventPropagatesError(t *testing.T) {
	boom := errors.New("connection refused")
	client := &fakeStreamClient{addErr: boom}
	sink := newSinkWithClient(client, "", 0)

	err := sink.HandleEvent(context.Background(), hooks.Event{
		SessionID: "sess-1",
		Kind:      hooks.SessionEnded,
		At:        time.Now(),
	})
	require.ErrorIs(t, err, boom)
}
