package inbox

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/chatsync/internal/provider"
)

const defaultConcurrency = 8

// Enricher fetches subscribed conversations with participants, last message
// and unread count.
type Enricher struct {
	source      provider.ClientSource
	concurrency int
	logger      *zap.Logger
}

// NewEnricher creates an enricher running at most concurrency fetches at once.
func NewEnricher(source provider.ClientSource, concurrency int, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Enricher{
		source:      source,
		concurrency: concurrency,
		logger:      logger.Named("inbox"),
	}
}

// Conversations returns every subscribed conversation, most recent first. A
// conversation whose details cannot be fetched is still returned in degraded
// form.
func (e *Enricher) Conversations(ctx context.Context) ([]Conversation, error) {
	client, err := e.source.Client()
	if err != nil {
		return nil, err
	}
	subscribed, err := client.SubscribedConversations(ctx)
	if err != nil {
		return nil, err
	}

	self := client.Identity()
	out := make([]Conversation, len(subscribed))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, conv := range subscribed {
		g.Go(func() error {
			out[i] = e.enrich(ctx, conv, self)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(out, compareConversations)
	return out, nil
}

func (e *Enricher) enrich(ctx context.Context, conv provider.Conversation, self string) Conversation {
	participants, err := conv.Participants(ctx)
	if err != nil {
		return e.degraded(conv, err)
	}
	if participants == nil {
		participants = []string{}
	}
	page, err := conv.Messages(ctx, 1)
	if err != nil {
		return e.degraded(conv, err)
	}
	unread, err := conv.UnreadMessagesCount(ctx)
	if err != nil {
		e.logger.Debug("unread count unavailable", zap.String("sid", conv.SID()), zap.Error(err))
		unread = 0
	}

	isGroup := strings.HasPrefix(conv.UniqueName(), GroupPrefix)
	c := Conversation{
		SID:          conv.SID(),
		UniqueName:   conv.UniqueName(),
		IsGroup:      isGroup,
		FriendlyName: conv.FriendlyName(),
		Participants: participants,
		UnreadCount:  unread,
		DateCreated:  conv.DateCreated(),
	}
	if isGroup {
		c.DisplayName = c.FriendlyName
	} else {
		others := make([]string, 0, len(participants))
		for _, p := range participants {
			if p != self {
				others = append(others, p)
			}
		}
		c.DisplayName = strings.Join(others, ", ")
	}
	if len(page) > 0 {
		c.LastMessage = lastMessage(page[len(page)-1])
	}
	return c
}

func (e *Enricher) degraded(conv provider.Conversation, err error) Conversation {
	e.logger.Warn("conversation details unavailable", zap.String("sid", conv.SID()), zap.Error(err))
	name := conv.FriendlyName()
	if name == "" {
		name = "Unknown"
	}
	return Conversation{
		SID:          conv.SID(),
		UniqueName:   conv.UniqueName(),
		DisplayName:  name,
		FriendlyName: conv.FriendlyName(),
		Participants: []string{},
		DateCreated:  conv.DateCreated(),
	}
}

func lastMessage(m provider.Message) *LastMessage {
	body := m.Body
	if body == "" && m.Type == provider.MessageMedia {
		body = MediaPreview
	}
	return &LastMessage{
		Body:        body,
		Author:      m.Author,
		DateCreated: m.DateCreated,
	}
}
