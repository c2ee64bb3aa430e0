// Package notify turns push notification payloads into conversation
// navigation, holding a cold-start target until navigation is ready.
package notify

import (
	"encoding/json"
	"net/url"
	"strings"
)

// ScreenChat is the navigation route of a conversation thread.
const ScreenChat = "Chat"

// ChatParams are the navigation parameters of ScreenChat.
type ChatParams struct {
	ConversationSID   string   `json:"conversationSid"`
	IsGroup           bool     `json:"isGroup"`
	GroupName         string   `json:"groupName,omitempty"`
	Participants      []string `json:"participants,omitempty"`
	RecipientUsername string   `json:"recipientUsername,omitempty"`
	RecipientAvatar   string   `json:"recipientAvatar,omitempty"`
}

// Target is a normalized notification destination.
type Target struct {
	ConversationSID   string
	IsGroup           bool
	GroupName         string
	Participants      []string
	RecipientUsername string
	RecipientAvatar   string
}

// Params builds navigation parameters: group targets carry name and roster,
// direct targets carry the recipient.
func (t Target) Params() ChatParams {
	if t.IsGroup {
		participants := t.Participants
		if participants == nil {
			participants = []string{}
		}
		return ChatParams{
			ConversationSID: t.ConversationSID,
			IsGroup:         true,
			GroupName:       t.GroupName,
			Participants:    participants,
		}
	}
	avatar := t.RecipientAvatar
	if avatar == "" {
		avatar = AvatarURL(t.RecipientUsername)
	}
	return ChatParams{
		ConversationSID:   t.ConversationSID,
		RecipientUsername: t.RecipientUsername,
		RecipientAvatar:   avatar,
	}
}

// Normalize converts a raw notification data payload into a Target. Payloads
// without a conversation SID are rejected.
func Normalize(data map[string]any) (Target, bool) {
	sid := strings.TrimSpace(stringField(data, "conversationSid"))
	if sid == "" {
		return Target{}, false
	}
	t := Target{
		ConversationSID:   sid,
		IsGroup:           truthy(data["isGroup"]),
		GroupName:         stringField(data, "groupName"),
		Participants:      participants(data["participants"]),
		RecipientUsername: stringField(data, "recipientUsername"),
		RecipientAvatar:   stringField(data, "recipientAvatar"),
	}
	if t.RecipientAvatar == "" {
		t.RecipientAvatar = AvatarURL(t.RecipientUsername)
	}
	return t, true
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

// participants accepts a JSON-encoded array or an already decoded list.
// Anything else yields an empty roster.
func participants(v any) []string {
	switch p := v.(type) {
	case string:
		var ids []string
		if err := json.Unmarshal([]byte(p), &ids); err != nil {
			return []string{}
		}
		if ids == nil {
			return []string{}
		}
		return ids
	case []string:
		return append([]string{}, p...)
	case []any:
		ids := make([]string, 0, len(p))
		for _, item := range p {
			s, ok := item.(string)
			if !ok {
				return []string{}
			}
			ids = append(ids, s)
		}
		return ids
	}
	return []string{}
}

// AvatarURL returns the generated placeholder avatar for name.
func AvatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + encodeURIComponent(name) + "&background=808080&color=fff"
}

var uriComponentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func encodeURIComponent(s string) string {
	return uriComponentUnescapes.Replace(url.QueryEscape(s))
}
