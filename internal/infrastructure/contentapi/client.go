package contentapi

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

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/content"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
)

// Options configures the remote content-system client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// The breaker opens after MaxFailures consecutive failures and stays
	// open for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Client implements content.System over JSON/HTTP.
type Client struct {
	base    string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

var _ content.System = (*Client)(nil)

// StatusError is a non-2xx response from the content system.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// New creates a client. BaseURL is required.
func New(opts Options, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("content api base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid content api url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	log := logger.With().Str("component", "contentapi").Logger()
	maxFailures := opts.MaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "content-system",
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Client errors and caller cancellation say nothing about remote health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return &Client{
		base:    base,
		token:   opts.Token,
		http:    &http.Client{Timeout: opts.Timeout},
		breaker: breaker,
		logger:  log,
	}, nil
}

// do sends one request through the breaker and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, in, out)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errs.Wrap(errs.KindExternalService, op, err, "content system unavailable")
	}
	return errs.Wrap(errs.KindExternalService, op, err, "content system call failed")
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func contentPath(uid string, parts ...string) string {
	p := "/content/" + url.PathEscape(uid)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) GetContentByUID(ctx context.Context, uid string) (*content.Summary, error) {
	var out content.Summary
	err := c.do(ctx, "contentapi.GetContentByUID", http.MethodGet, contentPath(uid), nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetWorkflowInfo(ctx context.Context, uid string) (*content.WorkflowInfo, error) {
	var out content.WorkflowInfo
	if err := c.do(ctx, "contentapi.GetWorkflowInfo", http.MethodGet, contentPath(uid, "workflow"), nil, &out); err != nil {
		return nil, err
	}
	if out.Transitions == nil {
		out.Transitions = []content.TransitionInfo{}
	}
	return &out, nil
}

func (c *Client) CreateWorkflow(ctx context.Context, workflowID string, def *content.WorkflowDefinition) error {
	return c.do(ctx, "contentapi.CreateWorkflow", http.MethodPut, "/workflows/"+url.PathEscape(workflowID), def, nil)
}

func (c *Client) DeleteWorkflow(ctx context.Context, workflowID string) error {
	return c.do(ctx, "contentapi.DeleteWorkflow", http.MethodDelete, "/workflows/"+url.PathEscape(workflowID), nil, nil)
}

func (c *Client) AssignWorkflowToContent(ctx context.Context, uid, workflowID string) error {
	body := map[string]string{"workflowId": workflowID}
	return c.do(ctx, "contentapi.AssignWorkflowToContent", http.MethodPut, contentPath(uid, "workflow"), body, nil)
}

func (c *Client) SetWorkflowState(ctx context.Context, uid, stateID string) error {
	body := map[string]string{"state": stateID}
	return c.do(ctx, "contentapi.SetWorkflowState", http.MethodPut, contentPath(uid, "workflow", "state"), body, nil)
}

func (c *Client) AssignLocalRoles(ctx context.Context, uid, externalRole string, userIDs []string) error {
	body := map[string][]string{"userIds": userIDs}
	return c.do(ctx, "contentapi.AssignLocalRoles", http.MethodPut, contentPath(uid, "local-roles", url.PathEscape(externalRole)), body, nil)
}

func (c *Client) UpdateContentMetadata(ctx context.Context, uid string, patch map[string]interface{}) error {
	return c.do(ctx, "contentapi.UpdateContentMetadata", http.MethodPatch, contentPath(uid, "metadata"), patch, nil)
}

func (c *Client) ExecuteWorkflowTransition(ctx context.Context, uid, transitionID, comments string) (*content.TransitionOutcome, error) {
	var out content.TransitionOutcome
	body := map[string]string{"comments": comments}
	path := contentPath(uid, "workflow", "transitions", url.PathEscape(transitionID))
	if err := c.do(ctx, "contentapi.ExecuteWorkflowTransition", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CanUserExecuteTransition(ctx context.Context, uid, transitionID, userID string) (bool, error) {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	path := contentPath(uid, "workflow", "transitions", url.PathEscape(transitionID), "authorize") + "?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, "contentapi.CanUserExecuteTransition", http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (c *Client) GetUserRolesForContent(ctx context.Context, uid, userID string) ([]string, error) {
	var out struct {
		Roles []string `json:"roles"`
	}
	path := contentPath(uid, "roles") + "?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, "contentapi.GetUserRolesForContent", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Roles == nil {
		out.Roles = []string{}
	}
	return out.Roles, nil
}
