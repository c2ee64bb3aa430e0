// Package directory is a client for the user directory backend.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultTimeout = 30 * time.Second
)

// User is one entry of the global user directory.
type User struct {
	ID       string `json:"id,omitempty"`
	UserName string `json:"userName"`
	Email    string `json:"email,omitempty"`
	IsOnline *bool  `json:"isOnline,omitempty"`
}

// Client talks to the directory backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a new directory client
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory API error (status %d): %s", e.StatusCode, e.Body)
}

// Users fetches the full user directory. The backend answers either with a
// bare array or with {"users": [...]}.
func (c *Client) Users(ctx context.Context, authToken string) ([]User, error) {
	req, err := c.newRequest(ctx, "/api/users/all", authToken)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}
	return decodeUsers(raw)
}

func decodeUsers(raw json.RawMessage) ([]User, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var users []User
		if err := json.Unmarshal(raw, &users); err != nil {
			return nil, fmt.Errorf("decoding users: %w", err)
		}
		return users, nil
	}

	var wrapped struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	if wrapped.Users == nil {
		return []User{}, nil
	}
	return wrapped.Users, nil
}

func (c *Client) newRequest(ctx context.Context, path, authToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
