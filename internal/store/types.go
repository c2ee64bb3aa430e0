package store

// Conversation is a stored provider conversation.
type Conversation struct {
	SID          string
	UniqueName   string
	FriendlyName string
	CreatedAt    int64
}

// Message is a stored conversation message. Index is dense per conversation,
// starting at 0.
type Message struct {
	ID              int64
	ConversationSID string
	Index           int64
	SID             string
	Author          string
	Body            string
	MessageType     string
	MediaKey        string
	ContentType     string
	Filename        string
	CreatedAt       int64
}

// Token binds a provider access token to an identity until ExpiresAt (unix ms).
type Token struct {
	Token     string
	Identity  string
	ExpiresAt int64
}
