package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/cli/go-gh/v2/pkg/repository"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when recent API failures tripped the circuit breaker.
var ErrCircuitOpen = errors.New("github api circuit open")

// Options configures a Client.
type Options struct {
	Host     string
	Token    string
	Repo     string // owner/name
	Workflow string // workflow file name, e.g. dart.yml

	// Transport overrides the HTTP transport. Used by tests.
	Transport http.RoundTripper

	MaxFailures uint32
	Timeout     time.Duration
}

// Client talks to the GitHub REST API for a single upstream repository.
type Client struct {
	rest     *api.RESTClient
	breaker  *gobreaker.CircuitBreaker
	repo     repository.Repository
	workflow string
}

// NewClient creates a REST client scoped to opts.Repo and opts.Workflow.
func NewClient(opts Options) (*Client, error) {
	if opts.Host == "" {
		opts.Host = "github.com"
	}
	repo, err := repository.ParseWithHost(opts.Repo, opts.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid repository %q: %w", opts.Repo, err)
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 3
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	rest, err := api.NewRESTClient(api.ClientOptions{
		Host:      opts.Host,
		AuthToken: opts.Token,
		Transport: opts.Transport,
		Headers: map[string]string{
			"Accept": "application/vnd.github+json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create REST client: %w", err)
	}

	maxFailures := opts.MaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "github:" + repo.Owner + "/" + repo.Name,
		MaxRequests: 1,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			var httpErr *api.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
				return true
			}
			return err == nil
		},
	})

	return &Client{
		rest:     rest,
		breaker:  breaker,
		repo:     repo,
		workflow: opts.Workflow,
	}, nil
}

// CommitURL returns the web link for a commit in the upstream repository.
func (c *Client) CommitURL(sha string) string {
	return CommitURL(c.repo.Host, c.repo.Owner+"/"+c.repo.Name, sha)
}

// CommitURL builds the web link for sha in repo (owner/name) on host.
func CommitURL(host, repo, sha string) string {
	if host == "" {
		host = "github.com"
	}
	return fmt.Sprintf("https://%s/%s/commit/%s", host, repo, sha)
}

// Commits returns up to limit commits of the default branch, newest first.
func (c *Client) Commits(ctx context.Context, limit int) ([]Commit, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage(limit)))

	var resp []commitResponse
	if err := c.get(ctx, c.repoPath("commits", q), &resp); err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}

	commits := make([]Commit, 0, len(resp))
	for _, r := range resp {
		commits = append(commits, r.toCommit())
	}
	return commits, nil
}

// CompletedRuns lists the most recent completed runs of the configured workflow.
func (c *Client) CompletedRuns(ctx context.Context, limit int) ([]WorkflowRun, error) {
	q := url.Values{}
	q.Set("status", StatusCompleted)
	q.Set("per_page", strconv.Itoa(perPage(limit)))
	return c.listRuns(ctx, q)
}

// RunsForCommit lists runs of the configured workflow whose head commit is sha, any status.
func (c *Client) RunsForCommit(ctx context.Context, sha string) ([]WorkflowRun, error) {
	q := url.Values{}
	q.Set("head_sha", sha)
	q.Set("per_page", "20")
	return c.listRuns(ctx, q)
}

func (c *Client) listRuns(ctx context.Context, q url.Values) ([]WorkflowRun, error) {
	var resp RunsResponse
	path := c.repoPath("actions/workflows/"+url.PathEscape(c.workflow)+"/runs", q)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list runs for %s: %w", c.workflow, err)
	}
	return resp.WorkflowRuns, nil
}

// Jobs lists the jobs belonging to a workflow run.
func (c *Client) Jobs(ctx context.Context, runID int64) ([]Job, error) {
	q := url.Values{}
	q.Set("per_page", "100")

	var resp JobsResponse
	path := c.repoPath(fmt.Sprintf("actions/runs/%d/jobs", runID), q)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch jobs: %w", err)
	}
	return resp.Jobs, nil
}

// JobLog downloads the raw textual log of a job.
func (c *Client) JobLog(ctx context.Context, jobID int64) (string, error) {
	path := c.repoPath(fmt.Sprintf("actions/jobs/%d/logs", jobID), nil)

	out, err := c.execute(func() (interface{}, error) {
		resp, err := c.rest.RequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return string(body), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch log for job %d: %w", jobID, err)
	}
	return out.(string), nil
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	_, err := c.execute(func() (interface{}, error) {
		return nil, c.rest.DoWithContext(ctx, http.MethodGet, path, nil, v)
	})
	return err
}

func (c *Client) execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return out, err
}

func (c *Client) repoPath(suffix string, q url.Values) string {
	path := fmt.Sprintf("repos/%s/%s/%s", c.repo.Owner, c.repo.Name, suffix)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path
}

func perPage(limit int) int {
	switch {
	case limit <= 0:
		return 30
	case limit > 100:
		return 100
	default:
		return limit
	}
}
