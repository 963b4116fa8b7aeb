package calendar

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"goa.design/aide/features/capability/httpapi"
	"goa.design/aide/runtime/agent/toolerrors"
)

type (
	// httpClient implements Client over a REST calendar API.
	httpClient struct {
		api *httpapi.Client
	}

	eventPayload struct {
		ID          string    `json:"id,omitempty"`
		Title       string    `json:"title"`
		Start       time.Time `json:"start"`
		End         time.Time `json:"end"`
		Description string    `json:"description,omitempty"`
		Kind        string    `json:"kind,omitempty"`
	}

	eventsResponse struct {
		Events []eventPayload `json:"events"`
	}

	freeBusyResponse struct {
		Busy []struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"busy"`
	}

	deleteResponse struct {
		Deleted []string `json:"deleted"`
	}
)

// NewClient returns a Client backed by the REST calendar API at the given
// base URL.
func NewClient(opts httpapi.Options) (Client, error) {
	api, err := httpapi.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &httpClient{api: api}, nil
}

// CreateEvent implements Client.
func (c *httpClient) CreateEvent(ctx context.Context, event Event) (Event, error) {
	var out eventPayload
	err := c.api.DoJSON(ctx, http.MethodPost, "/events", nil, eventPayload{
		Title:       event.Title,
		Start:       event.Start,
		End:         event.End,
		Description: event.Description,
		Kind:        event.Kind,
	}, &out)
	if err != nil {
		return Event{}, httpapi.Classify(err)
	}
	return toEvent(out), nil
}

// ListEvents implements Client.
func (c *httpClient) ListEvents(ctx context.Context, day time.Time) ([]Event, error) {
	query := url.Values{
		"from": []string{day.Format(time.RFC3339)},
		"to":   []string{day.AddDate(0, 0, 1).Format(time.RFC3339)},
	}
	var out eventsResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, "/events", query, nil, &out); err != nil {
		return nil, httpapi.Classify(err)
	}
	events := make([]Event, len(out.Events))
	for i, e := range out.Events {
		events[i] = toEvent(e)
	}
	return events, nil
}

// BusyIntervals implements Client.
func (c *httpClient) BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error) {
	query := url.Values{
		"from": []string{from.Format(time.RFC3339)},
		"to":   []string{to.Format(time.RFC3339)},
	}
	var out freeBusyResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, "/freebusy", query, nil, &out); err != nil {
		return nil, httpapi.Classify(err)
	}
	intervals := make([]Interval, len(out.Busy))
	for i, b := range out.Busy {
		intervals[i] = Interval{Start: b.Start, End: b.End}
	}
	return intervals, nil
}

// DeleteEvent implements Client.
func (c *httpClient) DeleteEvent(ctx context.Context, title string) (string, error) {
	if title == "" {
		return "", toolerrors.New(toolerrors.KindInvalidArguments, "title is required")
	}
	query := url.Values{"title": []string{title}, "limit": []string{"1"}}
	var out deleteResponse
	if err := c.api.DoJSON(ctx, http.MethodDelete, "/events", query, nil, &out); err != nil {
		return "", httpapi.Classify(err)
	}
	if len(out.Deleted) == 0 {
		return "", toolerrors.Newf(toolerrors.KindPermanent, "no upcoming event found with title %q", title)
	}
	return out.Deleted[0], nil
}

func toEvent(p eventPayload) Event {
	return Event{
		ID:          p.ID,
		Title:       p.Title,
		Start:       p.Start,
		End:         p.End,
		Description: p.Description,
		Kind:        p.Kind,
	}
}
