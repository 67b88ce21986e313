package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Header names sent with every request.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// StreamRequest is one prompt submission.
type StreamRequest struct {
	Context  map[string]interface{} `json:"context"`
	Prompt   string                 `json:"prompt"`
	TenantID string                 `json:"-"`
	Token    string                 `json:"-"`
	UserID   string                 `json:"-"`
}

// ApprovalRequest carries a human decision on a pending approval.
type ApprovalRequest struct {
	EditedContent *string `json:"editedContent,omitempty"`
	RequestID     string  `json:"requestId"`
	Comment       string  `json:"comment,omitempty"`
	TenantID      string  `json:"-"`
	Token         string  `json:"-"`
	UserID        string  `json:"-"`
	Approved      bool    `json:"approved"`
}

// Client opens agent event streams. It performs no retries; wrap the
// http.Client's transport for that.
type Client struct {
	httpClient       *http.Client
	logger           *slog.Logger
	endpoint         string
	approvalEndpoint string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithApprovalEndpoint sets the URL approval decisions are posted to.
func WithApprovalEndpoint(url string) ClientOption {
	return func(c *Client) {
		c.approvalEndpoint = url
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the given agent endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the agent endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

// HasApprovalEndpoint reports whether approval decisions are posted anywhere.
func (c *Client) HasApprovalEndpoint() bool { return c.approvalEndpoint != "" }

// Open posts the prompt and returns a Reader over the response body. A
// non-success status fails before any body read is attempted.
func (c *Client) Open(ctx context.Context, req StreamRequest) (*Reader, error) {
	if req.Context == nil {
		req.Context = map[string]interface{}{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Message: "failed to build request", Cause: err}
	}
	setHeaders(httpReq, req.TenantID, req.Token, req.UserID)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Message: "request failed", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drainAndClose(resp.Body)
		return nil, &TransportError{Message: "unexpected response status", StatusCode: resp.StatusCode}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &TransportError{Message: "body reader unavailable", StatusCode: resp.StatusCode, Cause: ErrNoBody}
	}

	c.logger.Debug("stream opened", "endpoint", c.endpoint, "status", resp.StatusCode)
	return NewReader(ctx, resp.Body)
}

// SubmitApproval posts an approval decision. It is a no-op when no approval
// endpoint is configured.
func (c *Client) SubmitApproval(ctx context.Context, req ApprovalRequest) error {
	if c.approvalEndpoint == "" {
		return nil
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode approval: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.approvalEndpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Message: "failed to build approval request", Cause: err}
	}
	setHeaders(httpReq, req.TenantID, req.Token, req.UserID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return &TransportError{Message: "approval request failed", Cause: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Message: "approval rejected by server", StatusCode: resp.StatusCode}
	}
	c.logger.Debug("approval submitted", "request_id", req.RequestID, "approved", req.Approved)
	return nil
}

func setHeaders(r *http.Request, tenantID, token, userID string) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(HeaderTenantID, tenantID)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if userID != "" {
		r.Header.Set(HeaderUserID, userID)
	}
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
