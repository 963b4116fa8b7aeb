// Package httpapi provides the REST plumbing shared by the capability
// adapters: a JSON request helper, status-aware errors, and the mapping from
// transport failures to the tool error taxonomy.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"goa.design/aide/runtime/agent/toolerrors"
)

// maxErrorBody caps how much of an error response body is retained for
// diagnostics.
const maxErrorBody = 2048

type (
	// Client issues JSON requests against a single API base URL. The zero
	// value is not usable; construct with NewClient.
	Client struct {
		base   *url.URL
		token  string
		http   *http.Client
		header http.Header
	}

	// Options configures a Client.
	Options struct {
		// BaseURL is the API root (e.g., "https://api.example.com/v1").
		BaseURL string
		// Token, when set, is sent as a bearer token.
		Token string
		// HTTPClient defaults to a client with a 30s timeout. The capability
		// dispatcher bounds each call separately via context.
		HTTPClient *http.Client
		// Header carries extra headers sent with every request.
		Header http.Header
	}

	// StatusError is returned for non-2xx responses.
	StatusError struct {
		// Code is the HTTP status code.
		Code int
		// Body is the (truncated) response body.
		Body string
	}
)

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// NewClient validates the options and returns a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q is not absolute", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:   base,
		token:  opts.Token,
		http:   httpClient,
		header: opts.Header,
	}, nil
}

// DoJSON issues a request with an optional JSON body and decodes the JSON
// response into out (when out is non-nil). Non-2xx responses are returned as
// *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Classify maps a transport error to the tool failure taxonomy. Timeouts,
// cancellation, connection failures, 429s, and 5xx responses are transient;
// other HTTP statuses are permanent. Errors that already carry a ToolError
// keep their kind.
func Classify(err error) *toolerrors.ToolError {
	if err == nil {
		return nil
	}
	var te *toolerrors.ToolError
	if errors.As(err, &te) {
		return te
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return toolerrors.New(toolerrors.KindTransient, se.Error())
		case se.Code >= 500:
			return toolerrors.New(toolerrors.KindTransient, se.Error())
		default:
			return toolerrors.New(toolerrors.KindPermanent, se.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return toolerrors.Newf(toolerrors.KindTransient, "request interrupted; result unknown: %v", err)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		// Network-level failures (DNS, refused connections, resets) are
		// retryable.
		return toolerrors.New(toolerrors.KindTransient, err.Error())
	}
	return toolerrors.New(toolerrors.KindPermanent, err.Error())
}
