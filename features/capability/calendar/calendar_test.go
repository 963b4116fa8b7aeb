package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/aide/runtime/agent/capability"
	"goa.design/aide/runtime/agent/toolerrors"
)

type fakeClient struct {
	created  []Event
	events   []Event
	busy     []Interval
	deleted  string
	failWith error
}

func (f *fakeClient) CreateEvent(_ context.Context, event Event) (Event, error) {
	if f.failWith != nil {
		return Event{}, f.failWith
	}
	event.ID = "evt-1"
	f.created = append(f.created, event)
	return event, nil
}

func (f *fakeClient) ListEvents(_ context.Context, _ time.Time) ([]Event, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.events, nil
}

func (f *fakeClient) BusyIntervals(_ context.Context, _, _ time.Time) ([]Interval, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.busy, nil
}

func (f *fakeClient) DeleteEvent(_ context.Context, title string) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	f.deleted = title
	return title, nil
}

var testNow = time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

func newTestAdapter(t *testing.T, client *fakeClient) *Adapter {
	t.Helper()
	a, err := NewAdapter(client, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return a
}

func TestSpecsAreWellFormed(t *testing.T) {
	specs := Specs()
	require.Len(t, specs, 4)
	for _, spec := range specs {
		require.NoError(t, spec.Validate())
		require.Equal(t, Family, spec.Family)
	}
}

func TestCreateEvent(t *testing.T) {
	client := &fakeClient{}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolCreateEvent,
		InvocationID: "inv-1",
		Args: map[string]any{
			"title":          "Design review",
			"start":          "2026-03-10 14:00",
			"duration_hours": 1.5,
			"kind":           "review",
		},
	})
	require.Nil(t, res.Err)
	require.Len(t, client.created, 1)
	created := client.created[0]
	require.Equal(t, "Design review", created.Title)
	require.Equal(t, time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC), created.Start)
	require.Equal(t, time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC), created.End)
	require.Equal(t, "review", created.Kind)
}

func TestCreateEventBareTimeResolvesToToday(t *testing.T) {
	client := &fakeClient{}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolCreateEvent,
		InvocationID: "inv-1",
		Args: map[string]any{
			"title":          "Standup",
			"start":          "09:30",
			"duration_hours": 0.5,
		},
	})
	require.Nil(t, res.Err)
	require.Equal(t, time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC), client.created[0].Start)
}

func TestCreateEventRejectsBadStart(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})
	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolCreateEvent,
		InvocationID: "inv-1",
		Args:         map[string]any{"title": "X", "start": "whenever", "duration_hours": 1.0},
	})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindInvalidArguments, res.Err.Kind)
}

func TestListEventsForNamedDay(t *testing.T) {
	client := &fakeClient{events: []Event{{Title: "Standup"}}}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolListEvents,
		InvocationID: "inv-1",
		Args:         map[string]any{"date": "tomorrow"},
	})
	require.Nil(t, res.Err)
	payload, ok := res.Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "2026-03-11", payload["date"])
	require.Equal(t, 1, payload["count"])
}

func TestFindFreeSlots(t *testing.T) {
	day := func(h, m int) time.Time {
		return time.Date(2026, time.March, 10, h, m, 0, 0, time.UTC)
	}
	client := &fakeClient{busy: []Interval{
		{Start: day(10, 0), End: day(11, 0)},
		{Start: day(13, 0), End: day(15, 30)},
	}}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolFindFreeSlots,
		InvocationID: "inv-1",
		Args:         map[string]any{"duration_hours": 1.5},
	})
	require.Nil(t, res.Err)
	payload := res.Payload.(map[string]any)
	slots := payload["slots"].([]FreeSlot)
	require.Len(t, slots, 2)
	require.Equal(t, day(11, 0), slots[0].Start)
	require.Equal(t, day(13, 0), slots[0].End)
	require.Equal(t, day(15, 30), slots[1].Start)
	require.Equal(t, day(17, 0), slots[1].End)
}

func TestFreeSlotsMergesOverlappingBusyIntervals(t *testing.T) {
	from := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 10, 17, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: from.Add(1 * time.Hour), End: from.Add(3 * time.Hour)},
		{Start: from.Add(2 * time.Hour), End: from.Add(4 * time.Hour)},
	}
	slots := freeSlots(from, to, busy, 1)
	require.Len(t, slots, 2)
	require.Equal(t, from, slots[0].Start)
	require.Equal(t, from.Add(1*time.Hour), slots[0].End)
	require.Equal(t, from.Add(4*time.Hour), slots[1].Start)
	require.Equal(t, to, slots[1].End)
}

func TestFreeSlotsEmptyCalendarIsOneBigSlot(t *testing.T) {
	from := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 10, 17, 0, 0, 0, time.UTC)
	slots := freeSlots(from, to, nil, 2)
	require.Len(t, slots, 1)
	require.Equal(t, 8.0, slots[0].Hours)
}

func TestDeleteEvent(t *testing.T) {
	client := &fakeClient{}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolDeleteEvent,
		InvocationID: "inv-1",
		Args:         map[string]any{"title": "Standup"},
	})
	require.Nil(t, res.Err)
	require.Equal(t, "Standup", client.deleted)
}

func TestClientFailuresKeepTheirKind(t *testing.T) {
	client := &fakeClient{failWith: toolerrors.New(toolerrors.KindTransient, "calendar API returned 503")}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolListEvents,
		InvocationID: "inv-1",
	})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindTransient, res.Err.Kind)
}

func TestUnknownToolInFamily(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})
	res := a.Invoke(context.Background(), capability.Call{Tool: "create_task", InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindUnknownTool, res.Err.Kind)
}
