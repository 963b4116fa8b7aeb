// Package calendar implements the calendar capability family: event creation,
// listing, deletion, and free-slot search over a REST calendar API.
//
// The adapter owns all protocol details; the orchestration core hands it
// validated argument maps and receives classified results. Free-slot search is
// computed locally from the calendar's busy intervals so the gap logic is
// independent of the provider.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"goa.design/aide/features/capability/toolargs"
	"goa.design/aide/runtime/agent/capability"
	"goa.design/aide/runtime/agent/toolerrors"
	"goa.design/aide/runtime/agent/tools"
)

// Family is the capability family identifier.
const Family = "calendar"

// Tool identifiers served by this family.
const (
	ToolCreateEvent   tools.Ident = "create_calendar_event"
	ToolListEvents    tools.Ident = "list_calendar_events"
	ToolFindFreeSlots tools.Ident = "find_free_slots"
	ToolDeleteEvent   tools.Ident = "delete_calendar_event"
)

// Default working-day bounds for free-slot search.
const (
	defaultWorkStart = 9
	defaultWorkEnd   = 17
)

type (
	// Event is a calendar entry.
	Event struct {
		ID          string    `json:"id,omitempty"`
		Title       string    `json:"title"`
		Start       time.Time `json:"start"`
		End         time.Time `json:"end"`
		Description string    `json:"description,omitempty"`
		Kind        string    `json:"kind,omitempty"`
	}

	// Interval is a half-open busy period [Start, End).
	Interval struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}

	// FreeSlot is an open gap inside working hours.
	FreeSlot struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
		Hours float64   `json:"hours"`
	}

	// Client abstracts the calendar provider API.
	Client interface {
		// CreateEvent stores the event and returns it with its assigned ID.
		CreateEvent(ctx context.Context, event Event) (Event, error)
		// ListEvents returns the events overlapping the given day, ordered by
		// start time.
		ListEvents(ctx context.Context, day time.Time) ([]Event, error)
		// BusyIntervals returns the busy periods between from and to, ordered
		// by start time.
		BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error)
		// DeleteEvent removes the next upcoming event whose title matches and
		// returns its title. A no-match lookup returns a permanent tool error.
		DeleteEvent(ctx context.Context, title string) (string, error)
	}

	// Adapter exposes the calendar tools to the capability dispatcher.
	Adapter struct {
		client Client
		now    func() time.Time
	}

	// Option customizes the adapter.
	Option func(*Adapter)
)

// WithClock overrides the adapter's clock. Used by tests and by callers that
// pin a timezone.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter wraps the client in a capability adapter.
func NewAdapter(client Client, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("calendar client is required")
	}
	a := &Adapter{client: client, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Family implements capability.Adapter.
func (a *Adapter) Family() string { return Family }

// Invoke implements capability.Adapter.
func (a *Adapter) Invoke(ctx context.Context, call capability.Call) capability.Result {
	switch call.Tool {
	case ToolCreateEvent:
		return a.createEvent(ctx, call)
	case ToolListEvents:
		return a.listEvents(ctx, call)
	case ToolFindFreeSlots:
		return a.findFreeSlots(ctx, call)
	case ToolDeleteEvent:
		return a.deleteEvent(ctx, call)
	default:
		return capability.Failure(call.InvocationID, toolerrors.KindUnknownTool,
			fmt.Sprintf("calendar family does not serve tool %q", call.Tool))
	}
}

func (a *Adapter) createEvent(ctx context.Context, call capability.Call) capability.Result {
	start, err := parseStart(toolargs.String(call.Args, "start", ""), a.now())
	if err != nil {
		return capability.FailureErr(call.InvocationID,
			toolerrors.Newf(toolerrors.KindInvalidArguments, "start: %v", err))
	}
	hours := toolargs.Float(call.Args, "duration_hours", 1)
	if hours <= 0 {
		return capability.Failure(call.InvocationID, toolerrors.KindInvalidArguments,
			"duration_hours must be positive")
	}
	event := Event{
		Title:       toolargs.String(call.Args, "title", ""),
		Start:       start,
		End:         start.Add(time.Duration(hours * float64(time.Hour))),
		Description: toolargs.String(call.Args, "description", ""),
		Kind:        toolargs.String(call.Args, "kind", "coding"),
	}
	created, err := a.client.CreateEvent(ctx, event)
	if err != nil {
		return classify(call.InvocationID, err)
	}
	return capability.Success(call.InvocationID, map[string]any{
		"message": fmt.Sprintf("Calendar event created: %s (%s, %.1fh)",
			created.Title, created.Start.Format("Jan 2 15:04"), hours),
		"event": created,
	})
}

func (a *Adapter) listEvents(ctx context.Context, call capability.Call) capability.Result {
	day, err := parseDay(toolargs.String(call.Args, "date", "today"), a.now())
	if err != nil {
		return capability.FailureErr(call.InvocationID,
			toolerrors.Newf(toolerrors.KindInvalidArguments, "date: %v", err))
	}
	events, err := a.client.ListEvents(ctx, day)
	if err != nil {
		return classify(call.InvocationID, err)
	}
	return capability.Success(call.InvocationID, map[string]any{
		"date":   day.Format("2006-01-02"),
		"count":  len(events),
		"events": events,
	})
}

func (a *Adapter) findFreeSlots(ctx context.Context, call capability.Call) capability.Result {
	day, err := parseDay(toolargs.String(call.Args, "date", "today"), a.now())
	if err != nil {
		return capability.FailureErr(call.InvocationID,
			toolerrors.Newf(toolerrors.KindInvalidArguments, "date: %v", err))
	}
	minHours := toolargs.Float(call.Args, "duration_hours", 2)
	workStart := toolargs.Int(call.Args, "work_start", defaultWorkStart)
	workEnd := toolargs.Int(call.Args, "work_end", defaultWorkEnd)
	if workEnd <= workStart {
		return capability.Failure(call.InvocationID, toolerrors.KindInvalidArguments,
			"work_end must be after work_start")
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), workStart, 0, 0, 0, day.Location())
	to := time.Date(day.Year(), day.Month(), day.Day(), workEnd, 0, 0, 0, day.Location())
	busy, err := a.client.BusyIntervals(ctx, from, to)
	if err != nil {
		return classify(call.InvocationID, err)
	}
	slots := freeSlots(from, to, busy, minHours)
	return capability.Success(call.InvocationID, map[string]any{
		"date":      day.Format("2006-01-02"),
		"min_hours": minHours,
		"slots":     slots,
	})
}

func (a *Adapter) deleteEvent(ctx context.Context, call capability.Call) capability.Result {
	title, err := a.client.DeleteEvent(ctx, toolargs.String(call.Args, "title", ""))
	if err != nil {
		return classify(call.InvocationID, err)
	}
	return capability.Success(call.InvocationID, map[string]any{
		"message": fmt.Sprintf("Event deleted: %s", title),
	})
}

func classify(invocationID string, err error) capability.Result {
	return capability.FailureErr(invocationID, toolerrors.FromError(err))
}

// freeSlots walks the busy intervals in order and collects the gaps of at
// least minHours between from and to. Overlapping busy intervals are merged by
// tracking the furthest busy end seen.
func freeSlots(from, to time.Time, busy []Interval, minHours float64) []FreeSlot {
	sorted := append([]Interval(nil), busy...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	slots := []FreeSlot{}
	cursor := from
	for _, b := range sorted {
		if b.End.Before(cursor) {
			continue
		}
		start := b.Start
		if start.After(to) {
			break
		}
		if gap := start.Sub(cursor).Hours(); gap >= minHours {
			slots = append(slots, FreeSlot{Start: cursor, End: start, Hours: gap})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(to) {
		if gap := to.Sub(cursor).Hours(); gap >= minHours {
			slots = append(slots, FreeSlot{Start: cursor, End: to, Hours: gap})
		}
	}
	return slots
}

// parseStart accepts RFC 3339 or a local "YYYY-MM-DD HH:MM" timestamp.
func parseStart(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("value is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", raw, now.Location()); err == nil {
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location()), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q (want RFC 3339, \"YYYY-MM-DD HH:MM\", or \"HH:MM\")", raw)
}

// parseDay accepts "today", "tomorrow", or a YYYY-MM-DD date.
func parseDay(raw string, now time.Time) (time.Time, error) {
	switch raw {
	case "", "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	case "tomorrow":
		next := now.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q (want today, tomorrow, or YYYY-MM-DD)", raw)
	}
	return t, nil
}

// Specs returns the tool catalog served by this family.
func Specs() []tools.Spec {
	return []tools.Spec{
		{
			Name:        ToolCreateEvent,
			Description: "Create a calendar event with a title, start time, and duration.",
			Family:      Family,
			Scope:       "calendar:write",
			Params: map[string]tools.Param{
				"title":          {Type: tools.ParamString, Description: "Event title.", Required: true},
				"start":          {Type: tools.ParamString, Description: "Start time (RFC 3339, \"YYYY-MM-DD HH:MM\", or \"HH:MM\" for today).", Required: true},
				"duration_hours": {Type: tools.ParamNumber, Description: "Event duration in hours.", Required: true},
				"description":    {Type: tools.ParamString, Description: "Optional event description."},
				"kind": {Type: tools.ParamString, Description: "Event category.",
					Enum: []string{"coding", "meeting", "break", "learning", "review"}, Default: "coding"},
			},
		},
		{
			Name:        ToolListEvents,
			Description: "List calendar events for a day.",
			Family:      Family,
			Scope:       "calendar:read",
			Params: map[string]tools.Param{
				"date": {Type: tools.ParamString, Description: "Day to list (today, tomorrow, or YYYY-MM-DD).", Default: "today"},
			},
		},
		{
			Name:        ToolFindFreeSlots,
			Description: "Find free time slots of a minimum duration inside working hours.",
			Family:      Family,
			Scope:       "calendar:read",
			Params: map[string]tools.Param{
				"date":           {Type: tools.ParamString, Description: "Day to search (today, tomorrow, or YYYY-MM-DD).", Default: "today"},
				"duration_hours": {Type: tools.ParamNumber, Description: "Minimum slot duration in hours.", Default: 2.0},
				"work_start":     {Type: tools.ParamInteger, Description: "Start of the working day (hour).", Default: 9},
				"work_end":       {Type: tools.ParamInteger, Description: "End of the working day (hour).", Default: 17},
			},
		},
		{
			Name:        ToolDeleteEvent,
			Description: "Delete the next upcoming calendar event with a matching title.",
			Family:      Family,
			Scope:       "calendar:write",
			Params: map[string]tools.Param{
				"title": {Type: tools.ParamString, Description: "Title of the event to delete.", Required: true},
			},
		},
	}
}
