// Package redis provides a trace sink that appends orchestration events to a
// Redis stream. Each hooks.Event becomes one stream entry, so downstream
// consumers (dashboards, replay tooling) can tail session activity with
// XREAD/XREADGROUP.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"goa.design/aide/runtime/agent/hooks"
)

const (
	defaultStream = "agent:trace"
	defaultMaxLen = 10000
)

// streamClient is the subset of the Redis client used by the sink.
type streamClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// Options configures the trace sink.
type Options struct {
	// Client is the Redis client. Required.
	Client *redis.Client
	// Stream is the stream key. Defaults to "agent:trace".
	Stream string
	// MaxLen caps the stream length (approximate trim). Defaults to 10000.
	MaxLen int64
}

// Sink appends trace events to a Redis stream. It implements
// hooks.Subscriber and is safe for concurrent use.
type Sink struct {
	client streamClient
	stream string
	maxLen int64
}

var _ hooks.Subscriber = (*Sink)(nil)

// New returns a Sink writing to the configured stream.
func New(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	return newSinkWithClient(opts.Client, opts.Stream, opts.MaxLen), nil
}

func newSinkWithClient(client streamClient, stream string, maxLen int64) *Sink {
	if stream == "" {
		stream = defaultStream
	}
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Sink{client: client, stream: stream, maxLen: maxLen}
}

// HandleEvent implements hooks.Subscriber.
func (s *Sink) HandleEvent(ctx context.Context, event hooks.Event) error {
	values := map[string]any{
		"session_id": event.SessionID,
		"kind":       string(event.Kind),
		"at":         event.At.UTC().Format(time.RFC3339Nano),
	}
	if event.Tool != "" {
		values["tool"] = string(event.Tool)
	}
	if event.InvocationID != "" {
		values["invocation_id"] = event.InvocationID
	}
	if event.Latency > 0 {
		values["latency_ms"] = event.Latency.Milliseconds()
	}
	if event.ErrorKind != "" {
		values["error_kind"] = event.ErrorKind
	}
	if len(event.Payload) > 0 {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		values["payload"] = string(payload)
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}
