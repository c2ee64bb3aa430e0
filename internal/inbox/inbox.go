// Package inbox builds the merged conversation list: subscribed conversations
// enriched with their latest state, plus directory users the local identity
// has no direct conversation with yet.
package inbox

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/directory"
)

// GroupPrefix marks the unique name of group conversations.
const GroupPrefix = "group-"

// MediaPreview stands in for the body of an attachment-only message.
const MediaPreview = "📎 Media"

// LastMessage summarizes the newest message of a conversation.
type LastMessage struct {
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	DateCreated time.Time `json:"dateCreated"`
}

// Conversation is an enriched subscribed conversation.
type Conversation struct {
	SID          string       `json:"sid"`
	UniqueName   string       `json:"uniqueName"`
	IsGroup      bool         `json:"isGroup"`
	DisplayName  string       `json:"displayName"`
	FriendlyName string       `json:"friendlyName,omitempty"`
	Participants []string     `json:"participants"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount  int          `json:"unreadCount"`
	DateCreated  time.Time    `json:"dateCreated"`
}

// Activity is the time the conversation was last active.
func (c Conversation) Activity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.DateCreated
	}
	return c.DateCreated
}

// directPeer returns the other participant of a direct conversation with self.
func (c Conversation) directPeer(self string) (string, bool) {
	if c.IsGroup || len(c.Participants) != 2 || !slices.Contains(c.Participants, self) {
		return "", false
	}
	for _, p := range c.Participants {
		if p != self {
			return p, true
		}
	}
	return "", false
}

// EntryKind tags a list entry.
type EntryKind string

const (
	KindConversation EntryKind = "conversation"
	KindUser         EntryKind = "user"
)

// Entry is one row of the merged list.
type Entry struct {
	Kind         EntryKind       `json:"kind"`
	Conversation *Conversation   `json:"conversation,omitempty"`
	User         *directory.User `json:"user,omitempty"`
}

// Key is a stable list key for the entry.
func (e Entry) Key() string {
	if e.Kind == KindConversation {
		return string(e.Kind) + "-" + e.Conversation.SID
	}
	id := e.User.ID
	if id == "" {
		id = e.User.UserName
	}
	return string(e.Kind) + "-" + id
}

// Recompute merges users and conversations into the display order:
// conversations by most recent activity, then users not already covered by a
// direct conversation with self, by name. It does not modify its inputs.
func Recompute(users []directory.User, convs []Conversation, self string) []Entry {
	covered := make(map[string]struct{})
	for _, c := range convs {
		if peer, ok := c.directPeer(self); ok {
			covered[peer] = struct{}{}
		}
	}

	entries := make([]Entry, 0, len(convs)+len(users))
	for i := range convs {
		c := convs[i]
		entries = append(entries, Entry{Kind: KindConversation, Conversation: &c})
	}
	for i := range users {
		u := users[i]
		if u.UserName == self {
			continue
		}
		if _, ok := covered[u.UserName]; ok {
			continue
		}
		entries = append(entries, Entry{Kind: KindUser, User: &u})
	}

	slices.SortStableFunc(entries, compareEntries)
	return entries
}

func compareEntries(a, b Entry) int {
	if a.Kind != b.Kind {
		if a.Kind == KindConversation {
			return -1
		}
		return 1
	}
	if a.Kind == KindConversation {
		return compareConversations(*a.Conversation, *b.Conversation)
	}
	return strings.Compare(a.User.UserName, b.User.UserName)
}

// compareConversations orders by activity, newest first, then by SID.
func compareConversations(a, b Conversation) int {
	if c := b.Activity().Compare(a.Activity()); c != 0 {
		return c
	}
	return cmp.Compare(a.SID, b.SID)
}

// Preview is the list subtitle for a conversation. Group previews name the
// author of messages not sent by self.
func Preview(c Conversation, self string) string {
	if c.LastMessage == nil {
		return ""
	}
	if c.IsGroup && c.LastMessage.Author != self {
		return c.LastMessage.Author + ": " + c.LastMessage.Body
	}
	return c.LastMessage.Body
}
