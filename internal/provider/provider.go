// Package provider defines the contract of the real-time messaging provider:
// the client handle, conversations, messages, and the typed live event stream.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a conversation or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the identity is not a participant.
	ErrForbidden = errors.New("identity is not a participant")
	// ErrConflict is returned when a unique name is already taken.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized is returned for unknown or expired tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrShutdown is returned by a client after Shutdown.
	ErrShutdown = errors.New("client shut down")
)

// Conversation status values as reported to the local identity.
const (
	StatusJoined           = "joined"
	StatusNotParticipating = "notParticipating"
)

// MessageType distinguishes text from attachment messages.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageMedia MessageType = "media"
)

// Message is one entry of a conversation, ordered by Index.
type Message struct {
	SID             string      `json:"sid"`
	ConversationSID string      `json:"conversationSid"`
	Index           int64       `json:"index"`
	Author          string      `json:"author"`
	Body            string      `json:"body,omitempty"`
	Type            MessageType `json:"type"`
	Media           *MediaRef   `json:"media,omitempty"`
	DateCreated     time.Time   `json:"dateCreated"`
}

// MediaRef points at the single attachment of a message. ID is the owning
// message SID.
type MediaRef struct {
	ID              string `json:"id"`
	ConversationSID string `json:"conversationSid"`
	ContentType     string `json:"contentType"`
	Filename        string `json:"filename,omitempty"`
}

// MediaUpload is the payload of an outgoing media message.
type MediaUpload struct {
	ContentType string
	Filename    string
	Data        []byte
}

// CreateOptions configures CreateConversation.
type CreateOptions struct {
	FriendlyName string
	UniqueName   string
}

// Connector initializes a client from a provider access token.
type Connector interface {
	Initialize(ctx context.Context, token string) (Client, error)
}

// Client is the process-wide provider handle bound to one identity.
type Client interface {
	Identity() string
	ConversationBySID(ctx context.Context, sid string) (Conversation, error)
	CreateConversation(ctx context.Context, opts CreateOptions) (Conversation, error)
	SubscribedConversations(ctx context.Context) ([]Conversation, error)
	// TemporaryMediaURL returns a short-lived fetch URL for an attachment.
	TemporaryMediaURL(ctx context.Context, ref MediaRef) (string, error)
	// MessageMedia returns the attachment of a media message.
	MessageMedia(ctx context.Context, conversationSID, messageSID string) (MediaRef, error)
	UpdateToken(ctx context.Context, token string) error
	// Events streams client-level events (token lifecycle).
	Events() (<-chan Event, func())
	Shutdown() error
}

// Conversation is a provider conversation as seen by the client identity.
type Conversation interface {
	SID() string
	UniqueName() string
	FriendlyName() string
	Status() string
	DateCreated() time.Time

	// Messages returns the most recent pageSize messages, oldest first.
	Messages(ctx context.Context, pageSize int) ([]Message, error)
	Participants(ctx context.Context) ([]string, error)
	Add(ctx context.Context, identity string) error
	RemoveParticipant(ctx context.Context, identity string) error
	UpdateFriendlyName(ctx context.Context, name string) error
	Leave(ctx context.Context) error
	SetAllMessagesRead(ctx context.Context) error
	UnreadMessagesCount(ctx context.Context) (int, error)
	// SendText and SendMedia return the index of the created message.
	SendText(ctx context.Context, body string) (int64, error)
	SendMedia(ctx context.Context, upload MediaUpload) (int64, error)

	// Subscribe streams this conversation's live events in provider order.
	// The returned function unsubscribes and is safe to call more than once.
	Subscribe() (<-chan Event, func())
}

// ClientSource hands out the current process-wide client.
type ClientSource interface {
	Client() (Client, error)
}
