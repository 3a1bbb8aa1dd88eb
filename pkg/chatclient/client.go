// Package chatclient consumes the conversation read API and maintains a
// local chat view: server snapshots projected into view-models, overlaid
// with optimistic local mutations until the server catches up.
package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
)

// ErrNotFound signals a conversation the server does not know.
var ErrNotFound = fmt.Errorf("conversation not found")

// Client fetches conversations from the inbox API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithToken sets a bearer token for authenticated deployments.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// NewClient creates an API client for the given base URL
// (e.g. "http://localhost:4000").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conversations fetches the full conversation list, in the server's
// recency order.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var convs []model.Conversation
	if err := c.get(ctx, "/api/conversations", &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Conversation fetches a single conversation by ID.
func (c *Client) Conversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.get(ctx, "/api/conversations/"+id, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
