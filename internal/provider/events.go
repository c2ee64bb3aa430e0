package provider

import "time"

// EventKind names a live event variant.
type EventKind string

const (
	KindMessageAdded        EventKind = "messageAdded"
	KindParticipantJoined   EventKind = "participantJoined"
	KindParticipantLeft     EventKind = "participantLeft"
	KindConversationUpdated EventKind = "conversationUpdated"
	KindTokenAboutToExpire  EventKind = "tokenAboutToExpire"
	KindTokenExpired        EventKind = "tokenExpired"
)

// Event is a tagged variant delivered on a subscription channel.
type Event interface {
	Kind() EventKind
}

// MessageAdded carries a new message appended to the conversation.
type MessageAdded struct {
	Message Message
}

// ParticipantJoined reports an identity added to the roster.
type ParticipantJoined struct {
	ConversationSID string
	Identity        string
}

// ParticipantLeft reports an identity removed from the roster.
type ParticipantLeft struct {
	ConversationSID string
	Identity        string
}

// ConversationUpdated reports conversation metadata changes.
type ConversationUpdated struct {
	ConversationSID string
	FriendlyName    string
}

// TokenAboutToExpire is emitted ahead of token expiry so the holder can refresh.
type TokenAboutToExpire struct {
	ExpiresAt time.Time
}

// TokenExpired is emitted once the token is no longer valid.
type TokenExpired struct{}

func (MessageAdded) Kind() EventKind        { return KindMessageAdded }
func (ParticipantJoined) Kind() EventKind   { return KindParticipantJoined }
func (ParticipantLeft) Kind() EventKind     { return KindParticipantLeft }
func (ConversationUpdated) Kind() EventKind { return KindConversationUpdated }
func (TokenAboutToExpire) Kind() EventKind  { return KindTokenAboutToExpire }
func (TokenExpired) Kind() EventKind        { return KindTokenExpired }
