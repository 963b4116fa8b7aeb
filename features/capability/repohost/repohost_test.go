package repohost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/aide/runtime/agent/capability"
	"goa.design/aide/runtime/agent/toolerrors"
)

type fakeClient struct {
	assigned  []Item
	authored  []Item
	issues    []Item
	pulls     []Item
	lastRepo  string
	lastState string
	failWith  error
}

func (f *fakeClient) AssignedIssues(_ context.Context) ([]Item, error) {
	return f.assigned, f.failWith
}

func (f *fakeClient) MyPullRequests(_ context.Context) ([]Item, error) {
	return f.authored, f.failWith
}

func (f *fakeClient) RepoIssues(_ context.Context, repo, state string) ([]Item, error) {
	f.lastRepo, f.lastState = repo, state
	return f.issues, f.failWith
}

func (f *fakeClient) RepoPulls(_ context.Context, repo, state string) ([]Item, error) {
	f.lastRepo, f.lastState = repo, state
	return f.pulls, f.failWith
}

func TestSpecsAreWellFormed(t *testing.T) {
	specs := Specs()
	require.Len(t, specs, 4)
	for _, spec := range specs {
		require.NoError(t, spec.Validate())
		require.Equal(t, Family, spec.Family)
		require.Equal(t, "repo:read", spec.Scope)
	}
}

func TestAssignedIssues(t *testing.T) {
	client := &fakeClient{assigned: []Item{
		{Number: 12, Title: "Fix flaky test", Repo: "acme/api", State: "open"},
	}}
	a, err := NewAdapter(client)
	require.NoError(t, err)

	res := a.Invoke(context.Background(), capability.Call{Tool: ToolAssignedIssues, InvocationID: "inv-1"})
	require.Nil(t, res.Err)
	payload := res.Payload.(map[string]any)
	require.Equal(t, 1, payload["count"])
	require.Equal(t, client.assigned, payload["issues"])
}

func TestRepoIssuesForwardsRepoAndState(t *testing.T) {
	client := &fakeClient{}
	a, err := NewAdapter(client)
	require.NoError(t, err)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolRepoIssues,
		InvocationID: "inv-1",
		Args:         map[string]any{"repo": "acme/api", "state": "closed"},
	})
	require.Nil(t, res.Err)
	require.Equal(t, "acme/api", client.lastRepo)
	require.Equal(t, "closed", client.lastState)
}

func TestListResultsAreCapped(t *testing.T) {
	many := make([]Item, maxItems+10)
	for i := range many {
		many[i] = Item{Number: i + 1, Title: "Issue"}
	}
	client := &fakeClient{pulls: many}
	a, err := NewAdapter(client)
	require.NoError(t, err)

	res := a.Invoke(context.Background(), capability.Call{
		Tool:         ToolRepoPulls,
		InvocationID: "inv-1",
		Args:         map[string]any{"repo": "acme/api"},
	})
	require.Nil(t, res.Err)
	payload := res.Payload.(map[string]any)
	require.Equal(t, maxItems, payload["count"])
	require.Len(t, payload["pull_requests"].([]Item), maxItems)
}

func TestClientFailuresKeepTheirKind(t *testing.T) {
	client := &fakeClient{failWith: toolerrors.New(toolerrors.KindTransient, "host returned 502")}
	a, err := NewAdapter(client)
	require.NoError(t, err)

	res := a.Invoke(context.Background(), capability.Call{Tool: ToolMyPullRequests, InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindTransient, res.Err.Kind)
}

func TestUnknownToolInFamily(t *testing.T) {
	a, err := NewAdapter(&fakeClient{})
	require.NoError(t, err)
	res := a.Invoke(context.Background(), capability.Call{Tool: "create_task", InvocationID: "inv-1"})
	require.NotNil(t, res.Err)
	require.Equal(t, toolerrors.KindUnknownTool, res.Err.Kind)
}

func TestRepoFromURL(t *testing.T) {
	require.Equal(t, "acme/api", repoFromURL("https://api.example.com/repos/acme/api"))
	require.Equal(t, "", repoFromURL("https://api.example.com/other"))
}
