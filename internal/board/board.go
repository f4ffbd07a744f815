// Package board provides a thin client for the GitHub-style project
// board, driven entirely through the external gh CLI. All invocations go
// through the resilient executor so transient API failures are retried
// and permanent ones surface immediately.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/ghexec"
	"github.com/gaffer-sh/gaffer/internal/logging"
	"github.com/gaffer-sh/gaffer/internal/schema"
)

// Issue is one actionable board item.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	State  string `json:"state"`
}

// issueSchema validates one issue object from gh's JSON output. gh is an
// external process whose output shape can drift across versions, so
// responses are validated the same way persisted files are, with corrupt
// elements dropped rather than failing the whole listing.
var issueSchema = schema.Schema{
	Name: "board_issue",
	Fields: map[string]schema.Field{
		"number": {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(1)},
		"title":  {Type: schema.TypeString, Required: true},
		"url":    {Type: schema.TypeString, Required: true},
		"state":  {Type: schema.TypeString, Required: true, Default: "OPEN", HasDefault: true},
	},
}

// Client runs board operations against one repository.
type Client struct {
	runner *ghexec.Runner
	repo   string // owner/name
	logger *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for board operations.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a board client for the given owner/name repository.
func NewClient(runner *ghexec.Runner, repo string, opts ...Option) *Client {
	c := &Client{
		runner: runner,
		repo:   repo,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NextIssues returns up to limit open issues carrying the given label,
// oldest first. These are the board's actionable items.
func (c *Client) NextIssues(ctx context.Context, label string, limit int) ([]Issue, error) {
	if limit <= 0 {
		limit = 10
	}

	args := []string{
		"issue", "list",
		"--repo", c.repo,
		"--state", "open",
		"--json", "number,title,url,state",
		"--limit", strconv.Itoa(limit),
	}
	if label != "" {
		args = append(args, "--label", label)
	}

	out, err := c.runner.ExecuteWithRetry(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list board issues: %w", err)
	}

	items, err := schema.ParseArray([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("unexpected issue list output: %w", err)
	}

	res := schema.ValidateArray(items, issueSchema, schema.Options{Recover: true})
	if !res.Valid {
		c.logger.Warn("dropped malformed issues from listing",
			"kept", len(res.Data),
			"total", len(items),
		)
	}

	var issues []Issue
	if err := remap(res.Data, &issues); err != nil {
		return nil, fmt.Errorf("unexpected issue list output: %w", err)
	}
	return issues, nil
}

// Comment posts a comment on the issue. Comments carry workflow state
// (claims, results) so failures are surfaced, not swallowed.
func (c *Client) Comment(ctx context.Context, issueNumber int, body string) error {
	_, err := c.runner.ExecuteWithRetry(ctx,
		"issue", "comment", strconv.Itoa(issueNumber),
		"--repo", c.repo,
		"--body", body,
	)
	if err != nil {
		return fmt.Errorf("failed to comment on issue #%d: %w", issueNumber, err)
	}
	return nil
}

// Close closes the issue.
func (c *Client) Close(ctx context.Context, issueNumber int) error {
	_, err := c.runner.ExecuteWithRetry(ctx,
		"issue", "close", strconv.Itoa(issueNumber),
		"--repo", c.repo,
	)
	if err != nil {
		return fmt.Errorf("failed to close issue #%d: %w", issueNumber, err)
	}
	c.logger.Info("closed issue", "issue", issueNumber)
	return nil
}

// AddLabel attaches a label best-effort. Label bookkeeping is cosmetic
// enrichment; a failed call must not fail the task.
func (c *Client) AddLabel(ctx context.Context, issueNumber int, label string) {
	c.runner.SafeExecute(ctx,
		"issue", "edit", strconv.Itoa(issueNumber),
		"--repo", c.repo,
		"--add-label", label,
	)
}

// RemoveLabel detaches a label best-effort.
func (c *Client) RemoveLabel(ctx context.Context, issueNumber int, label string) {
	c.runner.SafeExecute(ctx,
		"issue", "edit", strconv.Itoa(issueNumber),
		"--repo", c.repo,
		"--remove-label", label,
	)
}

// ViewIssue fetches one issue by number.
func (c *Client) ViewIssue(ctx context.Context, issueNumber int) (*Issue, error) {
	out, err := c.runner.ExecuteWithRetry(ctx,
		"issue", "view", strconv.Itoa(issueNumber),
		"--repo", c.repo,
		"--json", "number,title,url,state",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to view issue #%d: %w", issueNumber, err)
	}

	obj, err := schema.ParseObject([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("unexpected issue view output: %w", err)
	}
	res := schema.Validate(obj, issueSchema, schema.Options{})
	if !res.Valid {
		return nil, fmt.Errorf("%w: issue view output failed validation", errors.ErrCorruptRecord)
	}

	var issue Issue
	if err := remap(res.Data, &issue); err != nil {
		return nil, fmt.Errorf("unexpected issue view output: %w", err)
	}
	return &issue, nil
}

// remap converts generic validated data into a typed value through a JSON
// round trip.
func remap(from any, to any) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, to)
}

func floatPtr(f float64) *float64 { return &f }
