// Package tasks implements the tasks capability family: task creation,
// listing, completion, deletion, workload statistics, and prioritization
// over a REST task API.
package tasks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"goa.design/aide/features/capability/toolargs"
	"goa.design/aide/runtime/agent/capability"
	"goa.design/aide/runtime/agent/toolerrors"
	"goa.design/aide/runtime/agent/tools"
)

// Family is the capability family identifier.
const Family = "tasks"

// Tool identifiers served by this family.
const (
	ToolCreateTask   tools.Ident = "create_task"
	ToolListTasks    tools.Ident = "list_tasks"
	ToolCompleteTask tools.Ident = "complete_task"
	ToolDeleteTask   tools.Ident = "delete_task"
	ToolStatistics   tools.Ident = "task_statistics"
	ToolPrioritize   tools.Ident = "prioritize_tasks"
)

// maxRecommendations caps the prioritized list so the summary stays readable.
const maxRecommendations = 10

type (
	// Task is a tracked work item.
	Task struct {
		ID             string     `json:"id,omitempty"`
		Title          string     `json:"title"`
		Description    string     `json:"description,omitempty"`
		Priority       string     `json:"priority"`
		EstimatedHours float64    `json:"estimated_hours"`
		Due            *time.Time `json:"due,omitempty"`
		Completed      bool       `json:"completed"`
	}

	// Statistics summarizes the task list.
	Statistics struct {
		Total          int     `json:"total"`
		Completed      int     `json:"completed"`
		Pending        int     `json:"pending"`
		Overdue        int     `json:"overdue"`
		CompletionRate float64 `json:"completion_rate"`
		PendingHours   float64 `json:"pending_hours"`
	}

	// Recommendation is one entry of the prioritized task list.
	Recommendation struct {
		Rank     int        `json:"rank"`
		Title    string     `json:"title"`
		Priority string     `json:"priority"`
		Due      *time.Time `json:"due,omitempty"`
		Note     string     `json:"note,omitempty"`
	}

	// Client abstracts the task provider API.
	Client interface {
		// CreateTask stores the task and returns it with its assigned ID.
		CreateTask(ctx context.Context, task Task) (Task, error)
		// ListTasks returns tasks filtered by status: "pending", "completed",
		// or "all".
		ListTasks(ctx context.Context, status string) ([]Task, error)
		// CompleteTask marks the first task whose title matches as completed
		// and returns it.
		CompleteTask(ctx context.Context, title string) (Task, error)
		// DeleteTask removes the first task whose title matches and returns
		// its title.
		DeleteTask(ctx context.Context, title string) (string, error)
	}

	// Adapter exposes the task tools to the capability dispatcher.
	Adapter struct {
		client Client
		now    func() time.Time
	}

	// Option customizes the adapter.
	Option func(*Adapter)
)

// WithClock overrides the adapter's clock, used by overdue computations.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter wraps the client in a capability adapter.
func NewAdapter(client Client, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("tasks client is required")
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
	case ToolCreateTask:
		return a.createTask(ctx, call)
	case ToolListTasks:
		return a.listTasks(ctx, call)
	case ToolCompleteTask:
		return a.completeTask(ctx, call)
	case ToolDeleteTask:
		return a.deleteTask(ctx, call)
	case ToolStatistics:
		return a.statistics(ctx, call)
	case ToolPrioritize:
		return a.prioritize(ctx, call)
	default:
		return capability.Failure(call.InvocationID, toolerrors.KindUnknownTool,
			fmt.Sprintf("tasks family does not serve tool %q", call.Tool))
	}
}

func (a *Adapter) createTask(ctx context.Context, call capability.Call) capability.Result {
	task := Task{
		Title:          toolargs.String(call.Args, "title", ""),
		Description:    toolargs.String(call.Args, "description", ""),
		Priority:       toolargs.String(call.Args, "priority", "medium"),
		EstimatedHours: toolargs.Float(call.Args, "estimated_hours", 1),
	}
	if task.EstimatedHours <= 0 {
		return capability.Failure(call.InvocationID, toolerrors.KindInvalidArguments,
			"estimated_hours must be positive")
	}
	if raw := toolargs.String(call.Args, "due", ""); raw != "" {
		due, err := parseDue(raw, a.now())
		if err != nil {
			return capability.FailureErr(call.InvocationID,
				toolerrors.Newf(toolerrors.KindInvalidArguments, "due: %v", err))
		}
		task.Due = &due
	}
	created, err := a.client.CreateTask(ctx, task)
	if err != nil {
		return capability.FailureErr(call.InvocationID, toolerrors.FromError(err))
	}
	return capability.Success(call.InvocationID, map[string]any{
		"message": fmt.Sprintf("Task created: %s (%s priority, %.1fh estimated)",
			created.Title, created.Priority, created.EstimatedHours),
		"task": created,
	})
}

func (a *Adapter) listTasks(ctx context.Context, call capability.Call) capability.Result {
	status := toolargs.String(call.Args, "status", "pending")
	list, err := a.client.ListTasks(ctx, status)
	if err != nil {
		return capability.FailureErr(call.InvocationID, toolerrors.FromError(err))
	}
	return capability.Success(call.InvocationID, map[string]any{
		"status": status,
		"count":  len(list),
		"tasks":  list,
	})
}

func (a *Adapter) completeTask(ctx context.Context, call capability.Call) capability.Result {
	task, err := a.client.CompleteTask(ctx, toolargs.String(call.Args, "title", ""))
	if err != nil {
		return capability.FailureErr(call.InvocationID, toolerrors.FromError(err))
	}
	return capability.Success(call.InvocationID, map[string]any{
		"message": fmt.Sprintf("Task completed: %s", task.Title),
		"task":    task,
	})
}

func (a *Adapter) deleteTask(ctx context.Context, call capability.Call) capability.Result {
	title, err := a.client.DeleteTask(ctx, toolargs.String(call.Args, "title", ""))
	if err != nil {
		return capability.FailureErr(call.InvocationID, toolerrors.FromError(err))
	}
	return capability.Success(call.InvocationID, map[string]any{
		"message": fmt.Sprintf("Task deleted: %s", title),
	})
}

// statistics assembles the workload summary from the full task list so the
// provider API only needs a list endpoint.
func (a *Adapter) statistics(ctx context.Context, call capability.Call) capability.Result {
	list, err := a.client.ListTasks(ctx, "all")
	if err != nil {
		return capability.FailureErr(call.InvocationID, toolerrors.FromError(err))
	}
	stats := summarize(list, a.now())
	return capability.Success(call.InvocationID, map[string]any{
		"statistics": stats,
	})
}

// prioritize orders pending tasks by priority then due date and flags how
// urgent each one is, so the provider API only needs a list endpoint.
func (a *Adapter) prioritize(ctx context.Context, call capability.Call) capability.Result {
	list, err := a.client.ListTasks(ctx, "pending")
	if err != nil {
		return capability.FailureErr(call.InvocationID, toolerrors.FromError(err))
	}
	if len(list) == 0 {
		return capability.Success(call.InvocationID, map[string]any{
			"message":         "No pending tasks. Time to plan the next sprint.",
			"recommendations": []Recommendation{},
		})
	}
	recs := recommend(list, a.now())
	return capability.Success(call.InvocationID, map[string]any{
		"message":         fmt.Sprintf("Recommended order for %d pending tasks.", len(list)),
		"recommendations": recs,
	})
}

func recommend(list []Task, now time.Time) []Recommendation {
	sorted := make([]Task, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := priorityScore(sorted[i].Priority), priorityScore(sorted[j].Priority)
		if pi != pj {
			return pi > pj
		}
		return dueBefore(sorted[i].Due, sorted[j].Due)
	})
	if len(sorted) > maxRecommendations {
		sorted = sorted[:maxRecommendations]
	}
	recs := make([]Recommendation, len(sorted))
	for i, t := range sorted {
		recs[i] = Recommendation{
			Rank:     i + 1,
			Title:    t.Title,
			Priority: t.Priority,
			Due:      t.Due,
			Note:     urgencyNote(t.Due, now),
		}
	}
	return recs
}

func priorityScore(priority string) int {
	switch priority {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	default:
		return 1
	}
}

// dueBefore orders earlier due dates first; tasks without one sort last.
func dueBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}

func urgencyNote(due *time.Time, now time.Time) string {
	if due == nil {
		return ""
	}
	days := int(math.Floor(due.Sub(now).Hours() / 24))
	switch {
	case days < 0:
		return fmt.Sprintf("overdue by %d days", -days)
	case days == 0:
		return "due today"
	case days <= 3:
		return fmt.Sprintf("due in %d days", days)
	default:
		return ""
	}
}

func summarize(list []Task, now time.Time) Statistics {
	stats := Statistics{Total: len(list)}
	for _, t := range list {
		if t.Completed {
			stats.Completed++
			continue
		}
		stats.Pending++
		stats.PendingHours += t.EstimatedHours
		if t.Due != nil && t.Due.Before(now) {
			stats.Overdue++
		}
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats
}

// parseDue accepts "today", "tomorrow", or a YYYY-MM-DD date and resolves to
// end of day so a task due today is not immediately overdue.
func parseDue(raw string, now time.Time) (time.Time, error) {
	var day time.Time
	switch raw {
	case "today":
		day = now
	case "tomorrow":
		day = now.AddDate(0, 0, 1)
	default:
		parsed, err := time.ParseInLocation("2006-01-02", raw, now.Location())
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized date %q (want today, tomorrow, or YYYY-MM-DD)", raw)
		}
		day = parsed
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, now.Location()), nil
}

// Specs returns the tool catalog served by this family.
func Specs() []tools.Spec {
	return []tools.Spec{
		{
			Name:        ToolCreateTask,
			Description: "Create a task with a priority and time estimate.",
			Family:      Family,
			Scope:       "tasks:write",
			Params: map[string]tools.Param{
				"title": {Type: tools.ParamString, Description: "Task title.", Required: true},
				"priority": {Type: tools.ParamString, Description: "Task priority.", Required: true,
					Enum: []string{"low", "medium", "high", "critical"}},
				"estimated_hours": {Type: tools.ParamNumber, Description: "Estimated effort in hours.", Required: true},
				"description":     {Type: tools.ParamString, Description: "Optional task description."},
				"due":             {Type: tools.ParamString, Description: "Optional due date (today, tomorrow, or YYYY-MM-DD)."},
			},
		},
		{
			Name:        ToolListTasks,
			Description: "List tasks, optionally filtered by status.",
			Family:      Family,
			Scope:       "tasks:read",
			Params: map[string]tools.Param{
				"status": {Type: tools.ParamString, Description: "Status filter.",
					Enum: []string{"pending", "completed", "all"}, Default: "pending"},
			},
		},
		{
			Name:        ToolCompleteTask,
			Description: "Mark the task with a matching title as completed.",
			Family:      Family,
			Scope:       "tasks:write",
			Params: map[string]tools.Param{
				"title": {Type: tools.ParamString, Description: "Title of the task to complete.", Required: true},
			},
		},
		{
			Name:        ToolDeleteTask,
			Description: "Delete the task with a matching title.",
			Family:      Family,
			Scope:       "tasks:write",
			Params: map[string]tools.Param{
				"title": {Type: tools.ParamString, Description: "Title of the task to delete.", Required: true},
			},
		},
		{
			Name:        ToolStatistics,
			Description: "Summarize the task list: totals, overdue count, completion rate, pending effort.",
			Family:      Family,
			Scope:       "tasks:read",
		},
		{
			Name:        ToolPrioritize,
			Description: "Recommend an order for pending tasks based on priority and due date.",
			Family:      Family,
			Scope:       "tasks:read",
		},
	}
}
