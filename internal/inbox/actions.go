package inbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/provider"
)

var (
	// ErrInvalidGroup is returned for a blank group name or fewer than two members.
	ErrInvalidGroup = errors.New("a group needs a name and at least 2 members")
	// ErrInvalidUser is returned when opening a direct conversation with
	// nobody or with self.
	ErrInvalidUser = errors.New("invalid direct conversation peer")
)

// Actions opens and creates conversations from the list.
type Actions struct {
	source provider.ClientSource
	logger *zap.Logger
	now    func() time.Time
}

// NewActions creates list actions.
func NewActions(source provider.ClientSource, logger *zap.Logger) *Actions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Actions{
		source: source,
		logger: logger.Named("inbox"),
		now:    time.Now,
	}
}

// OpenOrCreateDirect finds the joined two-person conversation between self
// and userName, creating it when none exists.
func (a *Actions) OpenOrCreateDirect(ctx context.Context, userName string) (notify.ChatParams, error) {
	userName = strings.TrimSpace(userName)
	client, err := a.source.Client()
	if err != nil {
		return notify.ChatParams{}, err
	}
	self := client.Identity()
	if userName == "" || userName == self {
		return notify.ChatParams{}, ErrInvalidUser
	}

	conv, err := a.findDirect(ctx, client, self, userName)
	if err != nil {
		return notify.ChatParams{}, fmt.Errorf("list conversations: %w", err)
	}
	if conv == nil {
		conv, err = a.createDirect(ctx, client, self, userName)
		if err != nil {
			return notify.ChatParams{}, err
		}
	}

	return directParams(conv.SID(), userName), nil
}

func (a *Actions) findDirect(ctx context.Context, client provider.Client, self, userName string) (provider.Conversation, error) {
	subscribed, err := client.SubscribedConversations(ctx)
	if err != nil {
		return nil, err
	}
	for _, conv := range subscribed {
		if conv.Status() != provider.StatusJoined {
			continue
		}
		ids, err := conv.Participants(ctx)
		if err != nil {
			a.logger.Warn("participants unavailable", zap.String("sid", conv.SID()), zap.Error(err))
			continue
		}
		if len(ids) == 2 && slices.Contains(ids, self) && slices.Contains(ids, userName) {
			return conv, nil
		}
	}
	return nil, nil
}

func (a *Actions) createDirect(ctx context.Context, client provider.Client, self, userName string) (provider.Conversation, error) {
	lo, hi := min(self, userName), max(self, userName)
	conv, err := client.CreateConversation(ctx, provider.CreateOptions{
		FriendlyName: userName,
		UniqueName:   fmt.Sprintf("chat-%s-%s-%d", lo, hi, a.now().UnixMilli()),
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if err := conv.Add(ctx, userName); err != nil {
		return nil, fmt.Errorf("add %s: %w", userName, err)
	}
	if err := conv.Add(ctx, self); err != nil {
		return nil, fmt.Errorf("add %s: %w", self, err)
	}
	a.logger.Info("direct conversation created", zap.String("sid", conv.SID()), zap.String("peer", userName))
	return conv, nil
}

// CreateGroup creates a group with members and self. A member that cannot be
// added is skipped.
func (a *Actions) CreateGroup(ctx context.Context, name string, members []string) (notify.ChatParams, error) {
	name = strings.TrimSpace(name)
	members = uniqueMembers(members)
	if name == "" || len(members) < 2 {
		return notify.ChatParams{}, ErrInvalidGroup
	}
	client, err := a.source.Client()
	if err != nil {
		return notify.ChatParams{}, err
	}
	self := client.Identity()

	conv, err := client.CreateConversation(ctx, provider.CreateOptions{
		FriendlyName: name,
		UniqueName:   groupUniqueName(a.now()),
	})
	if err != nil {
		return notify.ChatParams{}, fmt.Errorf("create group: %w", err)
	}
	for _, m := range members {
		if err := conv.Add(ctx, m); err != nil {
			a.logger.Warn("add group member", zap.String("sid", conv.SID()), zap.String("member", m), zap.Error(err))
		}
	}
	if err := conv.Add(ctx, self); err != nil {
		return notify.ChatParams{}, fmt.Errorf("join group: %w", err)
	}
	a.logger.Info("group created", zap.String("sid", conv.SID()), zap.Int("members", len(members)))

	participants := members
	if !slices.Contains(participants, self) {
		participants = append(participants, self)
	}
	return notify.ChatParams{
		ConversationSID: conv.SID(),
		IsGroup:         true,
		GroupName:       name,
		Participants:    participants,
	}, nil
}

// ParamsFor returns the navigation parameters that open an existing list
// conversation.
func ParamsFor(c Conversation, self string) notify.ChatParams {
	if c.IsGroup {
		participants := slices.Clone(c.Participants)
		if participants == nil {
			participants = []string{}
		}
		return notify.ChatParams{
			ConversationSID: c.SID,
			IsGroup:         true,
			GroupName:       c.FriendlyName,
			Participants:    participants,
		}
	}
	var peer string
	for _, p := range c.Participants {
		if p != self {
			peer = p
			break
		}
	}
	return directParams(c.SID, peer)
}

func directParams(sid, peer string) notify.ChatParams {
	return notify.ChatParams{
		ConversationSID:   sid,
		RecipientUsername: peer,
		RecipientAvatar:   notify.AvatarURL(peer),
	}
}

func groupUniqueName(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return GroupPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

func uniqueMembers(members []string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m != "" && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}
