// Package repohost implements the repository-host capability family:
// read-only queries for assigned issues and pull requests over a REST API
// shaped like the GitHub v3 API.
package repohost

import (
	"context"
	"fmt"

	"goa.design/aide/features/capability/toolargs"
	"goa.design/aide/runtime/agent/capability"
	"goa.design/aide/runtime/agent/toolerrors"
	"goa.design/aide/runtime/agent/tools"
)

// Family is the capability family identifier.
const Family = "repohost"

// Tool identifiers served by this family. All are read-only.
const (
	ToolAssignedIssues tools.Ident = "assigned_issues"
	ToolMyPullRequests tools.Ident = "my_pull_requests"
	ToolRepoIssues     tools.Ident = "list_repo_issues"
	ToolRepoPulls      tools.Ident = "list_pull_requests"
)

// maxItems caps list responses so transcripts stay small.
const maxItems = 15

type (
	// Item is an issue or pull request.
	Item struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Repo   string `json:"repo,omitempty"`
		State  string `json:"state"`
		URL    string `json:"url,omitempty"`
	}

	// Client abstracts the repository host API.
	Client interface {
		// AssignedIssues returns open issues assigned to the authenticated
		// user across repositories.
		AssignedIssues(ctx context.Context) ([]Item, error)
		// MyPullRequests returns open pull requests authored by the
		// authenticated user.
		MyPullRequests(ctx context.Context) ([]Item, error)
		// RepoIssues returns issues in the given "owner/repo" repository.
		RepoIssues(ctx context.Context, repo, state string) ([]Item, error)
		// RepoPulls returns pull requests in the given "owner/repo"
		// repository.
		RepoPulls(ctx context.Context, repo, state string) ([]Item, error)
	}

	// Adapter exposes the repository host tools to the capability dispatcher.
	Adapter struct {
		client Client
	}
)

// NewAdapter wraps the client in a capability adapter.
func NewAdapter(client Client) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("repohost client is required")
	}
	return &Adapter{client: client}, nil
}

// Family implements capability.Adapter.
func (a *Adapter) Family() string { return Family }

// Invoke implements capability.Adapter.
func (a *Adapter) Invoke(ctx context.Context, call capability.Call) capability.Result {
	switch call.Tool {
	case ToolAssignedIssues:
		items, err := a.client.AssignedIssues(ctx)
		return listResult(call.InvocationID, "issues", items, err)
	case ToolMyPullRequests:
		items, err := a.client.MyPullRequests(ctx)
		return listResult(call.InvocationID, "pull_requests", items, err)
	case ToolRepoIssues:
		repo := toolargs.String(call.Args, "repo", "")
		items, err := a.client.RepoIssues(ctx, repo, toolargs.String(call.Args, "state", "open"))
		return listResult(call.InvocationID, "issues", items, err)
	case ToolRepoPulls:
		repo := toolargs.String(call.Args, "repo", "")
		items, err := a.client.RepoPulls(ctx, repo, toolargs.String(call.Args, "state", "open"))
		return listResult(call.InvocationID, "pull_requests", items, err)
	default:
		return capability.Failure(call.InvocationID, toolerrors.KindUnknownTool,
			fmt.Sprintf("repohost family does not serve tool %q", call.Tool))
	}
}

func listResult(invocationID, key string, items []Item, err error) capability.Result {
	if err != nil {
		return capability.FailureErr(invocationID, toolerrors.FromError(err))
	}
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return capability.Success(invocationID, map[string]any{
		"count": len(items),
		key:     items,
	})
}

// Specs returns the tool catalog served by this family.
func Specs() []tools.Spec {
	return []tools.Spec{
		{
			Name:        ToolAssignedIssues,
			Description: "List open issues assigned to you across repositories.",
			Family:      Family,
			Scope:       "repo:read",
		},
		{
			Name:        ToolMyPullRequests,
			Description: "List your open pull requests.",
			Family:      Family,
			Scope:       "repo:read",
		},
		{
			Name:        ToolRepoIssues,
			Description: "List issues in a repository.",
			Family:      Family,
			Scope:       "repo:read",
			Params: map[string]tools.Param{
				"repo": {Type: tools.ParamString, Description: "Repository in owner/repo form.", Required: true},
				"state": {Type: tools.ParamString, Description: "Issue state filter.",
					Enum: []string{"open", "closed", "all"}, Default: "open"},
			},
		},
		{
			Name:        ToolRepoPulls,
			Description: "List pull requests in a repository.",
			Family:      Family,
			Scope:       "repo:read",
			Params: map[string]tools.Param{
				"repo": {Type: tools.ParamString, Description: "Repository in owner/repo form.", Required: true},
				"state": {Type: tools.ParamString, Description: "Pull request state filter.",
					Enum: []string{"open", "closed", "all"}, Default: "open"},
			},
		},
	}
}
