// Package ctlclient talks to a profile daemon's control API over its unix
// socket.
package ctlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/thread"
)

// baseURL is a placeholder host; every request is dialed to the socket.
const baseURL = "http://chatsyncd"

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon error (status %d): %s", e.StatusCode, e.Message)
}

// Client is a control API client bound to one socket.
type Client struct {
	http *http.Client
}

// New returns a client that dials socketPath for every request.
func New(socketPath string) *Client {
	var d net.Dialer
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{http: &http.Client{Transport: transport}}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var out api.StatusResponse
	return &out, c.do(ctx, http.MethodGet, "/status", nil, &out)
}

// SignIn signs the daemon in with an auth token.
func (c *Client) SignIn(ctx context.Context, token string) (*api.SignInResponse, error) {
	var out api.SignInResponse
	return &out, c.do(ctx, http.MethodPost, "/session/signin", api.SignInRequest{Token: token}, &out)
}

// SignOut signs the daemon out.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/session/signout", nil, nil)
}

// Inbox loads the merged conversation list.
func (c *Client) Inbox(ctx context.Context) (*api.InboxResponse, error) {
	var out api.InboxResponse
	return &out, c.do(ctx, http.MethodGet, "/inbox", nil, &out)
}

// Direct opens or creates the direct conversation with userName.
func (c *Client) Direct(ctx context.Context, userName string) (*api.OpenResponse, error) {
	var out api.OpenResponse
	return &out, c.do(ctx, http.MethodPost, "/inbox/direct", api.DirectRequest{UserName: userName}, &out)
}

// CreateGroup creates a group conversation and opens it.
func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (*api.OpenResponse, error) {
	var out api.OpenResponse
	return &out, c.do(ctx, http.MethodPost, "/inbox/groups", api.GroupRequest{Name: name, Members: members}, &out)
}

// Open opens a conversation from the list.
func (c *Client) Open(ctx context.Context, sid string) (*api.OpenResponse, error) {
	var out api.OpenResponse
	return &out, c.do(ctx, http.MethodPost, "/inbox/"+url.PathEscape(sid)+"/open", nil, &out)
}

// Thread returns the open thread's snapshot.
func (c *Client) Thread(ctx context.Context, sid string) (*thread.Snapshot, error) {
	var out thread.Snapshot
	return &out, c.do(ctx, http.MethodGet, threadPath(sid, ""), nil, &out)
}

// CloseThread closes the open thread.
func (c *Client) CloseThread(ctx context.Context, sid string) error {
	return c.do(ctx, http.MethodDelete, threadPath(sid, ""), nil, nil)
}

// SendText sends a text message to the open thread.
func (c *Client) SendText(ctx context.Context, sid, body string) error {
	return c.do(ctx, http.MethodPost, threadPath(sid, "/messages"), api.TextRequest{Body: body}, nil)
}

// SendMedia sends an attachment to the open thread.
func (c *Client) SendMedia(ctx context.Context, sid string, req api.MediaRequest) error {
	return c.do(ctx, http.MethodPost, threadPath(sid, "/media"), req, nil)
}

// AddParticipants adds identities to the open thread.
func (c *Client) AddParticipants(ctx context.Context, sid string, identities ...string) error {
	return c.do(ctx, http.MethodPost, threadPath(sid, "/participants"), api.ParticipantsRequest{Identities: identities}, nil)
}

// RemoveParticipant removes identity from the open thread.
func (c *Client) RemoveParticipant(ctx context.Context, sid, identity string) error {
	return c.do(ctx, http.MethodDelete, threadPath(sid, "/participants/"+url.PathEscape(identity)), nil, nil)
}

// Rename renames the open thread.
func (c *Client) Rename(ctx context.Context, sid, name string) (*thread.Snapshot, error) {
	var out thread.Snapshot
	return &out, c.do(ctx, http.MethodPut, threadPath(sid, "/name"), api.RenameRequest{Name: name}, &out)
}

// Leave leaves the open thread's conversation.
func (c *Client) Leave(ctx context.Context, sid string) error {
	return c.do(ctx, http.MethodPost, threadPath(sid, "/leave"), nil, nil)
}

// Media resolves a temporary URL for a message attachment.
func (c *Client) Media(ctx context.Context, conversationSID, messageSID, contentType string) (*api.MediaResponse, error) {
	path := "/media/" + url.PathEscape(conversationSID) + "/" + url.PathEscape(messageSID)
	if contentType != "" {
		path += "?contentType=" + url.QueryEscape(contentType)
	}
	var out api.MediaResponse
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// Notify delivers a notification of kind foreground, tap or initial.
func (c *Client) Notify(ctx context.Context, kind string, n notify.Notification) (*api.NotificationResponse, error) {
	var out api.NotificationResponse
	return &out, c.do(ctx, http.MethodPost, "/notifications/"+url.PathEscape(kind), n, &out)
}

// Ready marks navigation as mounted.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/navigation/ready", nil, nil)
}

// Pending returns the navigation target still waiting for readiness.
func (c *Client) Pending(ctx context.Context) (*api.PendingResponse, error) {
	var out api.PendingResponse
	return &out, c.do(ctx, http.MethodGet, "/navigation/pending", nil, &out)
}

func threadPath(sid, suffix string) string {
	return "/threads/" + url.PathEscape(sid) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var eb api.ErrorBody
		msg := string(raw)
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
