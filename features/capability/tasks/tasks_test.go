package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/aide/runtime/agent/capability"
	"goa.design/aide/runtime/agent/toolerrors"
)

type fakeClient struct {
	created   []Task
	tasks     []Task
	completed string
	deleted   string
	failWith  error
}

func (f *fakeClient) CreateTask(_ context.Context, task Task) (Task, error) {
	if f.failWith != nil {
		return Task{}, f.failWith
	}
	task.ID = "task-1"
	f.created = append(f.created, task)
	return task, nil
}

func (f *fakeClient) ListTasks(_ context.Context, _ string) ([]Task, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.tasks, nil
}

func (f *fakeClient) CompleteTask(_ context.Context, title string) (Task, error) {
	if f.failWith != nil {
		return Task{}, f.failWith
	}
	f.completed = title
	return Task{Title: title, Completed: true}, nil
}

func (f *fakeClient) DeleteTask(_ context.Context, title string) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	f.deleted = title
	return title, nil
}

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestAdapter(t *testing.T, client *fakeClient) *Adapter {
	t.Helper()
	a, err := NewAdapter(client, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return a
}

func TestSpecsAreWellFormed(t *testing.T) {
	specs := Specs()
	require.Len(t, specs, 6)
	for _, spec := range specs {
		require.NoError(t, spec.Validate())
		require.Equal(t, Family, spec.Family)
	}
}

func TestCreateTask(t *testing.T) {
	client := &fakeClient{}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolCreateTask,
		InvocationID: "inv-1",
		Args: map[string]any{
			"title":           "Fix login bug",
			"priority":        "high",
			"estimated_hours": 3.0,
			"due":             "tomorrow",
		},
	})
	require.Nil(t, res.Err)
	require.Len(t, client.created, 1)
	created := client.created[0]
	require.Equal(t, "Fix login bug", created.Title)
	require.Equal(t, "high", created.Priority)
	require.NotNil(t, created.Due)
	require.Equal(t, time.Date(2026, time.March, 11, 23, 59, 59, 0, time.UTC), *created.Due)
}

func TestCreateTaskRejectsBadDue(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})
	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolCreateTask,
		InvocationID: "inv-1",
		Args: map[string]any{
			"title": "X", "priority": "low", "estimated_hours": 1.0, "due": "someday",
		},
	})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindInvalidArguments, res.Err.Kind)
}

func TestCreateTaskRejectsNonPositiveEstimate(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})
	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolCreateTask,
		InvocationID: "inv-1",
		Args:         map[string]any{"title": "X", "priority": "low", "estimated_hours": -1.0},
	})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindInvalidArguments, res.Err.Kind)
}

func TestListTasksDefaultsToPending(t *testing.T) {
	client := &fakeClient{tasks: []Task{{Title: "A"}, {Title: "B"}}}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{Tool: ToolListTasks, InvocationID: "inv-1"})
	require.Nil(t, res.Err)
	payload := res.Payload.(map[string]any)
	require.Equal(t, "pending", payload["status"])
	require.Equal(t, 2, payload["count"])
}

func TestCompleteAndDelete(t *testing.T) {
	client := &fakeClient{}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolCompleteTask,
		InvocationID: "inv-1",
		Args:         map[string]any{"title": "Fix login bug"},
	})
	require.Nil(t, res.Err)
	require.Equal(t, "Fix login bug", client.completed)

	res = a.Invoke(context.Background(), capability.Call{
		Tool:         ToolDeleteTask,
		InvocationID: "inv-2",
		Args:         map[string]any{"title": "Fix login bug"},
	})
	require.Nil(t, res.Err)
	require.Equal(t, "Fix login bug", client.deleted)
}

func TestStatistics(t *testing.T) {
	overdue := testNow.Add(-24 * time.Hour)
	upcoming := testNow.Add(24 * time.Hour)
	client := &fakeClient{tasks: []Task{
		{Title: "A", Completed: true, EstimatedHours: 2},
		{Title: "B", EstimatedHours: 3, Due: &overdue},
		{Title: "C", EstimatedHours: 1, Due: &upcoming},
		{Title: "D", EstimatedHours: 4},
	}}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{Tool: ToolStatistics, InvocationID: "inv-1"})
	require.Nil(t, res.Err)
	payload := res.Payload.(map[string]any)
	stats := payload["statistics"].(Statistics)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 1, stats.Completed)
	require.Equal(t, 3, stats.Pending)
	require.Equal(t, 1, stats.Overdue)
	require.Equal(t, 25.0, stats.CompletionRate)
	require.Equal(t, 8.0, stats.PendingHours)
}

func TestStatisticsOnEmptyList(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})
	res := a.Invoke(context.Background(), capability.Call{Tool: ToolStatistics, InvocationID: "inv-1"})
	require.Nil(t, res.Err)
	stats := res.Payload.(map[string]any)["statistics"].(Statistics)
	require.Equal(t, 0, stats.Total)
	require.Equal(t, 0.0, stats.CompletionRate)
}

func TestPrioritizeOrdersByPriorityThenDue(t *testing.T) {
	overdue := testNow.Add(-36 * time.Hour)
	today := testNow.Add(6 * time.Hour)
	soon := testNow.Add(48 * time.Hour)
	later := testNow.Add(240 * time.Hour)
	client := &fakeClient{tasks: []Task{
		{Title: "Write release notes", Priority: "low", Due: &later},
		{Title: "Fix prod outage", Priority: "critical", Due: &today},
		{Title: "Review PR", Priority: "high", Due: &soon},
		{Title: "Pay invoice", Priority: "high", Due: &overdue},
		{Title: "Refactor config", Priority: "high"},
	}}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{Tool: ToolPrioritize, InvocationID: "inv-1"})
	require.Nil(t, res.Err)
	recs := res.Payload.(map[string]any)["recommendations"].([]Recommendation)
	require.Len(t, recs, 5)

	titles := make([]string, len(recs))
	for i, r := range recs {
		require.Equal(t, i+1, r.Rank)
		titles[i] = r.Title
	}
	require.Equal(t, []string{
		"Fix prod outage", "Pay invoice", "Review PR", "Refactor config", "Write release notes",
	}, titles)

	require.Equal(t, "due today", recs[0].Note)
	require.Equal(t, "overdue by 2 days", recs[1].Note)
	require.Equal(t, "due in 2 days", recs[2].Note)
	require.Empty(t, recs[3].Note)
	require.Empty(t, recs[4].Note)
}

func TestPrioritizeCapsRecommendations(t *testing.T) {
	var tasks []Task
	for i := 0; i < 15; i++ {
		tasks = append(tasks, Task{Title: "T", Priority: "medium"})
	}
	a := newTestAdapter(t, &fakeClient{tasks: tasks})

	res := a.Invoke(context.Background(), capability.Call{Tool: ToolPrioritize, InvocationID: "inv-1"})
	require.Nil(t, res.Err)
	recs := res.Payload.(map[string]any)["recommendations"].([]Recommendation)
	require.Len(t, recs, maxRecommendations)
}

func TestPrioritizeWithNoPendingTasks(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})
	res := a.Invoke(context.Background(), capability.Call{Tool: ToolPrioritize, InvocationID: "inv-1"})
	require.Nil(t, res.Err)
	payload := res.Payload.(map[string]any)
	require.Empty(t, payload["recommendations"])
	require.Contains(t, payload["message"], "No pending tasks")
}

func TestClientFailuresKeepTheirKind(t *testing.T) {
	client := &fakeClient{failWith: toolerrors.New(toolerrors.KindTransient, "task API returned 503")}
	a := newTestAdapter(t, client)

	res := a.Invoke(context.Background(), capability.Call{Tool: ToolListTasks, InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindTransient, res.Err.Kind)
}

func TestUnknownToolInFamily(t *testing.T) {
	a := newTestAdapter(t, &fakeClient{})
	res := a.Invoke(context.Background(), capability.Call{Tool: "list_calendar_events", InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindUnknownTool, res.Err.Kind)
}
