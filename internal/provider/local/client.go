package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/store"
)

type client struct {
	b        *Backend
	id       string
	identity string

	mu     sync.Mutex
	timers []*time.Timer
	closed bool
}

var _ provider.Client = (*client)(nil)

func (c *client) Identity() string { return c.identity }

func (c *client) namespace() string {
	return bus.Topic("client", c.id, "")
}

func (c *client) alive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return provider.ErrShutdown
	}
	return nil
}

func (c *client) ConversationBySID(ctx context.Context, sid string) (provider.Conversation, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	rec, err := c.b.db.GetConversation(sid)
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", sid, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("conversation %s: %w", sid, provider.ErrNotFound)
	}
	member, err := c.b.db.IsParticipant(sid, c.identity)
	if err != nil {
		return nil, err
	}
	return c.wrap(*rec, member), nil
}

func (c *client) CreateConversation(ctx context.Context, opts provider.CreateOptions) (provider.Conversation, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	rec := store.Conversation{
		SID:          newSID("CH"),
		UniqueName:   opts.UniqueName,
		FriendlyName: opts.FriendlyName,
		CreatedAt:    c.b.opts.Now().UnixMilli(),
	}
	if rec.UniqueName == "" {
		rec.UniqueName = rec.SID
	}
	if err := c.b.db.CreateConversation(&rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("unique name %q: %w", rec.UniqueName, provider.ErrConflict)
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	c.b.logger.Info("conversation created",
		zap.String("sid", rec.SID),
		zap.String("unique_name", rec.UniqueName),
		zap.String("by", c.identity),
	)
	return c.wrap(rec, false), nil
}

func (c *client) SubscribedConversations(ctx context.Context) ([]provider.Conversation, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	recs, err := c.b.db.ListConversationsFor(c.identity)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	convs := make([]provider.Conversation, 0, len(recs))
	for _, rec := range recs {
		convs = append(convs, c.wrap(rec, true))
	}
	return convs, nil
}

func (c *client) TemporaryMediaURL(ctx context.Context, ref provider.MediaRef) (string, error) {
	if err := c.alive(); err != nil {
		return "", err
	}
	msg, err := c.b.db.GetMessage(ref.ID)
	if err != nil {
		return "", fmt.Errorf("get message %s: %w", ref.ID, err)
	}
	if msg == nil || msg.MediaKey == "" {
		return "", fmt.Errorf("media %s: %w", ref.ID, provider.ErrNotFound)
	}
	member, err := c.b.db.IsParticipant(msg.ConversationSID, c.identity)
	if err != nil {
		return "", err
	}
	if !member {
		return "", provider.ErrForbidden
	}
	return c.b.objects.PresignGet(ctx, msg.MediaKey, c.b.opts.URLTTL)
}

func (c *client) MessageMedia(ctx context.Context, conversationSID, messageSID string) (provider.MediaRef, error) {
	if err := c.alive(); err != nil {
		return provider.MediaRef{}, err
	}
	msg, err := c.b.db.GetMessage(messageSID)
	if err != nil {
		return provider.MediaRef{}, fmt.Errorf("get message %s: %w", messageSID, err)
	}
	if msg == nil || msg.MediaKey == "" || msg.ConversationSID != conversationSID {
		return provider.MediaRef{}, fmt.Errorf("media %s: %w", messageSID, provider.ErrNotFound)
	}
	member, err := c.b.db.IsParticipant(conversationSID, c.identity)
	if err != nil {
		return provider.MediaRef{}, err
	}
	if !member {
		return provider.MediaRef{}, provider.ErrForbidden
	}
	return *toMessage(*msg).Media, nil
}

func (c *client) UpdateToken(ctx context.Context, token string) error {
	if err := c.alive(); err != nil {
		return err
	}
	tok, err := c.b.lookupToken(token)
	if err != nil {
		return err
	}
	if tok.Identity != c.identity {
		return fmt.Errorf("token identity %q: %w", tok.Identity, provider.ErrUnauthorized)
	}
	c.schedule(time.UnixMilli(tok.ExpiresAt))
	c.b.logger.Debug("token updated", zap.String("identity", c.identity))
	return nil
}

func (c *client) Events() (<-chan provider.Event, func()) {
	return c.b.subscribe(c.namespace())
}

func (c *client) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.b.logger.Info("client shut down", zap.String("identity", c.identity))
	return nil
}

// schedule replaces the token lifecycle timers for a token expiring at expiresAt.
func (c *client) schedule(expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		t.Stop()
	}
	ns := c.namespace()
	untilExpiry := expiresAt.Sub(c.b.opts.Now())
	untilWarning := untilExpiry - c.b.opts.RefreshLead
	c.timers = []*time.Timer{
		time.AfterFunc(max(untilWarning, 0), func() {
			c.b.publish(ns, provider.TokenAboutToExpire{ExpiresAt: expiresAt})
		}),
		time.AfterFunc(max(untilExpiry, 0), func() {
			c.b.publish(ns, provider.TokenExpired{})
		}),
	}
}

func (c *client) wrap(rec store.Conversation, member bool) *conversation {
	status := provider.StatusNotParticipating
	if member {
		status = provider.StatusJoined
	}
	return &conversation{c: c, rec: rec, status: status}
}
