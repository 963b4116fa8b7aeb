package tasks

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"goa.design/aide/features/capability/httpapi"
	"goa.design/aide/runtime/agent/toolerrors"
)

type (
	// httpClient implements Client over a REST task API.
	httpClient struct {
		api *httpapi.Client
	}

	taskPayload struct {
		ID             string     `json:"id,omitempty"`
		Title          string     `json:"title"`
		Description    string     `json:"description,omitempty"`
		Priority       string     `json:"priority"`
		EstimatedHours float64    `json:"estimated_hours"`
		Due            *time.Time `json:"due,omitempty"`
		Completed      bool       `json:"completed"`
	}

	tasksResponse struct {
		Tasks []taskPayload `json:"tasks"`
	}
)

// NewClient returns a Client backed by the REST task API at the given base
// URL.
func NewClient(opts httpapi.Options) (Client, error) {
	api, err := httpapi.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &httpClient{api: api}, nil
}

// CreateTask implements Client.
func (c *httpClient) CreateTask(ctx context.Context, task Task) (Task, error) {
	var out taskPayload
	err := c.api.DoJSON(ctx, http.MethodPost, "/tasks", nil, taskPayload{
		Title:          task.Title,
		Description:    task.Description,
		Priority:       task.Priority,
		EstimatedHours: task.EstimatedHours,
		Due:            task.Due,
	}, &out)
	if err != nil {
		return Task{}, httpapi.Classify(err)
	}
	return toTask(out), nil
}

// ListTasks implements Client.
func (c *httpClient) ListTasks(ctx context.Context, status string) ([]Task, error) {
	query := url.Values{}
	if status != "" && status != "all" {
		query.Set("status", status)
	}
	var out tasksResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, "/tasks", query, nil, &out); err != nil {
		return nil, httpapi.Classify(err)
	}
	list := make([]Task, len(out.Tasks))
	for i, t := range out.Tasks {
		list[i] = toTask(t)
	}
	return list, nil
}

// CompleteTask implements Client.
func (c *httpClient) CompleteTask(ctx context.Context, title string) (Task, error) {
	task, err := c.findByTitle(ctx, title)
	if err != nil {
		return Task{}, err
	}
	var out taskPayload
	if err := c.api.DoJSON(ctx, http.MethodPost, "/tasks/"+url.PathEscape(task.ID)+"/complete", nil, nil, &out); err != nil {
		return Task{}, httpapi.Classify(err)
	}
	return toTask(out), nil
}

// DeleteTask implements Client.
func (c *httpClient) DeleteTask(ctx context.Context, title string) (string, error) {
	task, err := c.findByTitle(ctx, title)
	if err != nil {
		return "", err
	}
	if err := c.api.DoJSON(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(task.ID), nil, nil, nil); err != nil {
		return "", httpapi.Classify(err)
	}
	return task.Title, nil
}

// findByTitle resolves a task title to a stored task. Title lookups mirror the
// assistant's conversational contract: the user refers to tasks by name, never
// by ID.
func (c *httpClient) findByTitle(ctx context.Context, title string) (Task, error) {
	if title == "" {
		return Task{}, toolerrors.New(toolerrors.KindInvalidArguments, "title is required")
	}
	list, err := c.ListTasks(ctx, "all")
	if err != nil {
		return Task{}, err
	}
	for _, t := range list {
		if t.Title == title {
			return t, nil
		}
	}
	return Task{}, toolerrors.Newf(toolerrors.KindPermanent, "no task found with title %q", title)
}

func toTask(p taskPayload) Task {
	return Task{
		ID:             p.ID,
		Title:          p.Title,
		Description:    p.Description,
		Priority:       p.Priority,
		EstimatedHours: p.EstimatedHours,
		Due:            p.Due,
		Completed:      p.Completed,
	}
}
