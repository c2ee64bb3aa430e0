package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/store"
)

type conversation struct {
	c *client

	mu     sync.Mutex
	rec    store.Conversation
	status string
}

var _ provider.Conversation = (*conversation)(nil)

func (cv *conversation) SID() string        { return cv.rec.SID }
func (cv *conversation) UniqueName() string { return cv.rec.UniqueName }

func (cv *conversation) FriendlyName() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.rec.FriendlyName
}

func (cv *conversation) Status() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.status
}

func (cv *conversation) DateCreated() time.Time {
	return time.UnixMilli(cv.rec.CreatedAt)
}

func (cv *conversation) setStatus(s string) {
	cv.mu.Lock()
	cv.status = s
	cv.mu.Unlock()
}

func (cv *conversation) requireMember() error {
	if err := cv.c.alive(); err != nil {
		return err
	}
	ok, err := cv.c.b.db.IsParticipant(cv.rec.SID, cv.c.identity)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("conversation %s: %w", cv.rec.SID, provider.ErrForbidden)
	}
	return nil
}

func (cv *conversation) Messages(ctx context.Context, pageSize int) ([]provider.Message, error) {
	if err := cv.requireMember(); err != nil {
		return nil, err
	}
	recs, err := cv.c.b.db.ListMessages(cv.rec.SID, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]provider.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, toMessage(r))
	}
	return msgs, nil
}

func (cv *conversation) Participants(ctx context.Context) ([]string, error) {
	if err := cv.requireMember(); err != nil {
		return nil, err
	}
	return cv.c.b.db.ListParticipants(cv.rec.SID)
}

// Add does not require membership: the creator adds the counterpart before
// joining.
func (cv *conversation) Add(ctx context.Context, identity string) error {
	if err := cv.c.alive(); err != nil {
		return err
	}
	b := cv.c.b
	b.mu.Lock()
	defer b.mu.Unlock()

	added, err := b.db.AddParticipant(cv.rec.SID, identity)
	if err != nil {
		return fmt.Errorf("add participant %s: %w", identity, err)
	}
	if identity == cv.c.identity {
		cv.setStatus(provider.StatusJoined)
	}
	if added {
		b.publish(conversationNamespace(cv.rec.SID), provider.ParticipantJoined{
			ConversationSID: cv.rec.SID,
			Identity:        identity,
		})
	}
	return nil
}

func (cv *conversation) RemoveParticipant(ctx context.Context, identity string) error {
	if err := cv.requireMember(); err != nil {
		return err
	}
	return cv.remove(identity)
}

func (cv *conversation) Leave(ctx context.Context) error {
	if err := cv.requireMember(); err != nil {
		return err
	}
	if err := cv.remove(cv.c.identity); err != nil {
		return err
	}
	cv.setStatus(provider.StatusNotParticipating)
	return nil
}

func (cv *conversation) remove(identity string) error {
	b := cv.c.b
	b.mu.Lock()
	defer b.mu.Unlock()

	removed, err := b.db.RemoveParticipant(cv.rec.SID, identity)
	if err != nil {
		return fmt.Errorf("remove participant %s: %w", identity, err)
	}
	if !removed {
		return fmt.Errorf("participant %s: %w", identity, provider.ErrNotFound)
	}
	b.publish(conversationNamespace(cv.rec.SID), provider.ParticipantLeft{
		ConversationSID: cv.rec.SID,
		Identity:        identity,
	})
	return nil
}

func (cv *conversation) UpdateFriendlyName(ctx context.Context, name string) error {
	if err := cv.requireMember(); err != nil {
		return err
	}
	b := cv.c.b
	b.mu.Lock()
	defer b.mu.Unlock()

	ok, err := b.db.UpdateFriendlyName(cv.rec.SID, name)
	if err != nil {
		return fmt.Errorf("update friendly name: %w", err)
	}
	if !ok {
		return fmt.Errorf("conversation %s: %w", cv.rec.SID, provider.ErrNotFound)
	}
	cv.mu.Lock()
	cv.rec.FriendlyName = name
	cv.mu.Unlock()
	b.publish(conversationNamespace(cv.rec.SID), provider.ConversationUpdated{
		ConversationSID: cv.rec.SID,
		FriendlyName:    name,
	})
	return nil
}

func (cv *conversation) SetAllMessagesRead(ctx context.Context) error {
	if err := cv.requireMember(); err != nil {
		return err
	}
	return cv.c.b.db.MarkAllRead(cv.rec.SID, cv.c.identity)
}

func (cv *conversation) UnreadMessagesCount(ctx context.Context) (int, error) {
	if err := cv.requireMember(); err != nil {
		return 0, err
	}
	return cv.c.b.db.UnreadCount(cv.rec.SID, cv.c.identity)
}

func (cv *conversation) SendText(ctx context.Context, body string) (int64, error) {
	if err := cv.requireMember(); err != nil {
		return 0, err
	}
	return cv.append(&store.Message{
		ConversationSID: cv.rec.SID,
		SID:             newSID("IM"),
		Author:          cv.c.identity,
		Body:            body,
		MessageType:     string(provider.MessageText),
	})
}

func (cv *conversation) SendMedia(ctx context.Context, upload provider.MediaUpload) (int64, error) {
	if err := cv.requireMember(); err != nil {
		return 0, err
	}
	if len(upload.Data) == 0 {
		return 0, errors.New("media payload is empty")
	}
	b := cv.c.b
	sid := newSID("IM")
	key := "media/" + cv.rec.SID + "/" + sid
	if err := b.objects.Put(ctx, key, upload.ContentType, upload.Data); err != nil {
		return 0, fmt.Errorf("store media: %w", err)
	}
	idx, err := cv.append(&store.Message{
		ConversationSID: cv.rec.SID,
		SID:             sid,
		Author:          cv.c.identity,
		MessageType:     string(provider.MessageMedia),
		MediaKey:        key,
		ContentType:     upload.ContentType,
		Filename:        upload.Filename,
	})
	if err != nil {
		if delErr := b.objects.Delete(ctx, key); delErr != nil {
			b.logger.Warn("orphaned media object", zap.String("key", key), zap.Error(delErr))
		}
		return 0, err
	}
	return idx, nil
}

func (cv *conversation) append(m *store.Message) (int64, error) {
	b := cv.c.b
	b.mu.Lock()
	defer b.mu.Unlock()

	m.CreatedAt = b.opts.Now().UnixMilli()
	if err := b.db.AppendMessage(m); err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	b.publish(conversationNamespace(cv.rec.SID), provider.MessageAdded{Message: toMessage(*m)})
	b.logger.Debug("message appended",
		zap.String("conversation", m.ConversationSID),
		zap.Int64("index", m.Index),
		zap.String("type", m.MessageType),
	)
	return m.Index, nil
}

func (cv *conversation) Subscribe() (<-chan provider.Event, func()) {
	return cv.c.b.subscribe(conversationNamespace(cv.rec.SID))
}

func toMessage(r store.Message) provider.Message {
	m := provider.Message{
		SID:             r.SID,
		ConversationSID: r.ConversationSID,
		Index:           r.Index,
		Author:          r.Author,
		Body:            r.Body,
		Type:            provider.MessageType(r.MessageType),
		DateCreated:     time.UnixMilli(r.CreatedAt),
	}
	if m.Type == provider.MessageMedia {
		m.Media = &provider.MediaRef{
			ID:              r.SID,
			ConversationSID: r.ConversationSID,
			ContentType:     r.ContentType,
			Filename:        r.Filename,
		}
	}
	return m
}
