package repohost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"goa.design/aide/features/capability/httpapi"
	"goa.design/aide/runtime/agent/toolerrors"
)

type (
	// httpClient implements Client over a GitHub-style REST API.
	httpClient struct {
		api  *httpapi.Client
		user string
	}

	searchResponse struct {
		Items []issuePayload `json:"items"`
	}

	issuePayload struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		State   string `json:"state"`
		HTMLURL string `json:"html_url"`
		RepoURL string `json:"repository_url"`
		// PullRequest is set on search results that are PRs, used to filter
		// them out of issue listings.
		PullRequest *struct{} `json:"pull_request,omitempty"`
	}
)

// NewClient returns a Client for the repository host API. The user login is
// used in search queries for assigned issues and authored pull requests.
func NewClient(opts httpapi.Options, user string) (Client, error) {
	if user == "" {
		return nil, fmt.Errorf("user login is required")
	}
	api, err := httpapi.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &httpClient{api: api, user: user}, nil
}

// AssignedIssues implements Client.
func (c *httpClient) AssignedIssues(ctx context.Context) ([]Item, error) {
	return c.search(ctx, fmt.Sprintf("assignee:%s is:issue is:open", c.user))
}

// MyPullRequests implements Client.
func (c *httpClient) MyPullRequests(ctx context.Context) ([]Item, error) {
	return c.search(ctx, fmt.Sprintf("author:%s is:pr is:open", c.user))
}

// RepoIssues implements Client.
func (c *httpClient) RepoIssues(ctx context.Context, repo, state string) ([]Item, error) {
	if err := checkRepo(repo); err != nil {
		return nil, err
	}
	var payload []issuePayload
	query := url.Values{"state": []string{state}, "per_page": []string{"30"}}
	if err := c.api.DoJSON(ctx, http.MethodGet, "/repos/"+repo+"/issues", query, nil, &payload); err != nil {
		return nil, httpapi.Classify(err)
	}
	items := make([]Item, 0, len(payload))
	for _, p := range payload {
		// The issues endpoint also returns pull requests.
		if p.PullRequest != nil {
			continue
		}
		items = append(items, toItem(p, repo))
	}
	return items, nil
}

// RepoPulls implements Client.
func (c *httpClient) RepoPulls(ctx context.Context, repo, state string) ([]Item, error) {
	if err := checkRepo(repo); err != nil {
		return nil, err
	}
	var payload []issuePayload
	query := url.Values{"state": []string{state}, "per_page": []string{"30"}}
	if err := c.api.DoJSON(ctx, http.MethodGet, "/repos/"+repo+"/pulls", query, nil, &payload); err != nil {
		return nil, httpapi.Classify(err)
	}
	items := make([]Item, len(payload))
	for i, p := range payload {
		items[i] = toItem(p, repo)
	}
	return items, nil
}

func (c *httpClient) search(ctx context.Context, q string) ([]Item, error) {
	query := url.Values{"q": []string{q}, "per_page": []string{"30"}}
	var out searchResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, "/search/issues", query, nil, &out); err != nil {
		return nil, httpapi.Classify(err)
	}
	items := make([]Item, len(out.Items))
	for i, p := range out.Items {
		items[i] = toItem(p, repoFromURL(p.RepoURL))
	}
	return items, nil
}

func checkRepo(repo string) error {
	if repo == "" || !strings.Contains(repo, "/") {
		return toolerrors.Newf(toolerrors.KindInvalidArguments, "repo %q is not in owner/repo form", repo)
	}
	return nil
}

// repoFromURL extracts "owner/repo" from an API repository URL.
func repoFromURL(raw string) string {
	const marker = "/repos/"
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return ""
	}
	return raw[idx+len(marker):]
}

func toItem(p issuePayload, repo string) Item {
	return Item{
		Number: p.Number,
		Title:  p.Title,
		Repo:   repo,
		State:  p.State,
		URL:    p.HTMLURL,
	}
}
