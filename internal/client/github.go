package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kubev2v/workflow-dispatcher/pkg/metrics"
)

const (
	// StatusCompleted is the only run status carrying a conclusion.
	StatusCompleted = "completed"
	// ConclusionSuccess is the conclusion of a passing run.
	ConclusionSuccess = "success"
	// EventWorkflowDispatch is the event of runs created by Trigger.
	EventWorkflowDispatch = "workflow_dispatch"

	createdLayout = "2006-01-02T15:04:05Z"
	maxErrorBody  = 4096
)

// Operation names, used in errors and metrics.
const (
	OperationTrigger  = "trigger"
	OperationListRuns = "list_runs"
	OperationGetRun   = "get_run"
)

// HTTPError is returned when the API answered with a non-2xx status.
// Transport failures are never reported as HTTPError.
type HTTPError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

// IsHTTPError reports whether err carries a non-2xx response.
func IsHTTPError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}

// StatusCode returns the HTTP status carried by err, or 0 for transport errors.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Input is one workflow_dispatch input.
type Input struct {
	Name  string
	Value string
}

// Inputs keeps the order of the inputs when encoded as a JSON object.
type Inputs []Input

func (in Inputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, input := range in {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(input.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(input.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Run is a workflow run as reported by the API.
type Run struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name,omitempty"`
	Event      string    `json:"event,omitempty"`
	HeadBranch string    `json:"head_branch,omitempty"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion,omitempty"`
	HTMLURL    string    `json:"html_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Completed reports whether the run reached its final status.
func (r *Run) Completed() bool {
	return r.Status == StatusCompleted
}

// Succeeded reports whether the run completed with a success conclusion.
func (r *Run) Succeeded() bool {
	return r.Completed() && r.Conclusion == ConclusionSuccess
}

type dispatchRequest struct {
	Ref    string `json:"ref"`
	Inputs Inputs `json:"inputs,omitempty"`
}

type runList struct {
	TotalCount   int    `json:"total_count"`
	WorkflowRuns []*Run `json:"workflow_runs"`
}

// ListRunsOptions narrows the runs returned by ListRuns.
type ListRunsOptions struct {
	CreatedAfter  time.Time
	CreatedBefore time.Time
	// Branch filters on the head branch when set.
	Branch string
	// Event defaults to workflow_dispatch.
	Event string
}

// GitHubClient talks to the GitHub Actions REST API.
type GitHubClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewGitHubClient(config *Config) (*GitHubClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &GitHubClient{
		baseURL:    strings.TrimRight(config.Server, "/"),
		token:      config.Token,
		httpClient: NewHTTPClientFromConfig(config),
	}, nil
}

// Trigger creates a workflow_dispatch event. The API does not return the id
// of the run it creates.
func (c *GitHubClient) Trigger(ctx context.Context, owner, repo, workflow, ref string, inputs Inputs) error {
	body, err := json.Marshal(dispatchRequest{Ref: ref, Inputs: inputs})
	if err != nil {
		return errors.Wrap(err, "failed to marshal dispatch request")
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/dispatches",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(workflow))

	return c.do(ctx, OperationTrigger, http.MethodPost, path, nil, body, nil)
}

// ListRuns returns the runs of workflow created within the requested window.
func (c *GitHubClient) ListRuns(ctx context.Context, owner, repo, workflow string, opts ListRunsOptions) ([]*Run, error) {
	query := url.Values{}
	event := opts.Event
	if event == "" {
		event = EventWorkflowDispatch
	}
	query.Set("event", event)
	query.Set("per_page", "100")
	if !opts.CreatedAfter.IsZero() || !opts.CreatedBefore.IsZero() {
		query.Set("created", createdRange(opts.CreatedAfter, opts.CreatedBefore))
	}
	if opts.Branch != "" {
		query.Set("branch", opts.Branch)
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/runs",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(workflow))

	var list runList
	if err := c.do(ctx, OperationListRuns, http.MethodGet, path, query, nil, &list); err != nil {
		return nil, err
	}
	return list.WorkflowRuns, nil
}

// GetRun returns the current status of a run.
func (c *GitHubClient) GetRun(ctx context.Context, owner, repo string, runID int64) (*Run, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%s",
		url.PathEscape(owner), url.PathEscape(repo), strconv.FormatInt(runID, 10))

	var run Run
	if err := c.do(ctx, OperationGetRun, http.MethodGet, path, nil, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *GitHubClient) do(ctx context.Context, operation, method, path string, query url.Values, body []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s request", operation)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncreaseRemoteCallsMetric(operation, metrics.ResultTransportFail)
		return errors.Wrapf(err, "failed to call %s", operation)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.IncreaseRemoteCallsMetric(operation, metrics.ResultHTTPError)
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		// Drain body to enable connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.IncreaseRemoteCallsMetric(operation, metrics.ResultOK)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.IncreaseRemoteCallsMetric(operation, metrics.ResultTransportFail)
		return errors.Wrapf(err, "failed to decode %s response", operation)
	}
	metrics.IncreaseRemoteCallsMetric(operation, metrics.ResultOK)
	return nil
}

func createdRange(after, before time.Time) string {
	from, to := "*", "*"
	if !after.IsZero() {
		from = after.UTC().Format(createdLayout)
	}
	if !before.IsZero() {
		to = before.UTC().Format(createdLayout)
	}
	return from + ".." + to
}
