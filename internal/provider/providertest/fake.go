// Package providertest provides in-memory provider fakes with failure
// injection for tests.
package providertest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/provider"
)

// Source hands out a fixed client.
type Source struct {
	C   provider.Client
	Err error
}

func (s Source) Client() (provider.Client, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.C, nil
}

// Client is an in-memory provider client. Set the error fields before use.
type Client struct {
	Self string

	GetErr    error
	CreateErr error
	ListErr   error
	MediaErr  error

	// Block, when set, holds ConversationBySID until it is closed.
	Block chan struct{}

	// OnCreate, when set, sees each conversation made by CreateConversation.
	OnCreate func(*Conversation)

	mu      sync.Mutex
	convs   []*Conversation
	created int
	media   map[string]int
	events  chan provider.Event
}

var _ provider.Client = (*Client)(nil)

// NewClient creates a client for identity self.
func NewClient(self string) *Client {
	return &Client{
		Self:   self,
		media:  make(map[string]int),
		events: make(chan provider.Event, 16),
	}
}

// AddConversation registers conv with the client.
func (c *Client) AddConversation(conv *Conversation) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv.self = c.Self
	c.convs = append(c.convs, conv)
	return conv
}

// Created returns how many conversations CreateConversation made.
func (c *Client) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// MediaCalls returns how many times TemporaryMediaURL was asked for id.
func (c *Client) MediaCalls(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.media[id]
}

// Emit pushes a client-level event.
func (c *Client) Emit(evt provider.Event) { c.events <- evt }

func (c *Client) Identity() string { return c.Self }

func (c *Client) ConversationBySID(ctx context.Context, sid string) (provider.Conversation, error) {
	if c.Block != nil {
		select {
		case <-c.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conv := range c.convs {
		if conv.sid == sid {
			return conv, nil
		}
	}
	return nil, fmt.Errorf("conversation %s: %w", sid, provider.ErrNotFound)
}

func (c *Client) CreateConversation(_ context.Context, opts provider.CreateOptions) (provider.Conversation, error) {
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conv := range c.convs {
		if conv.uniqueName == opts.UniqueName {
			return nil, provider.ErrConflict
		}
	}
	c.created++
	conv := NewConversation(fmt.Sprintf("CHNEW%d", c.created), opts.UniqueName, opts.FriendlyName)
	conv.self = c.Self
	conv.status = provider.StatusNotParticipating
	if c.OnCreate != nil {
		c.OnCreate(conv)
	}
	c.convs = append(c.convs, conv)
	return conv, nil
}

func (c *Client) SubscribedConversations(context.Context) ([]provider.Conversation, error) {
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]provider.Conversation, 0, len(c.convs))
	for _, conv := range c.convs {
		out = append(out, conv)
	}
	return out, nil
}

func (c *Client) TemporaryMediaURL(_ context.Context, ref provider.MediaRef) (string, error) {
	c.mu.Lock()
	c.media[ref.ID]++
	n := c.media[ref.ID]
	c.mu.Unlock()
	if c.MediaErr != nil {
		return "", c.MediaErr
	}
	return fmt.Sprintf("https://media.test/%s?v=%d", ref.ID, n), nil
}

func (c *Client) MessageMedia(_ context.Context, conversationSID, messageSID string) (provider.MediaRef, error) {
	conv, err := c.ConversationBySID(context.Background(), conversationSID)
	if err != nil {
		return provider.MediaRef{}, err
	}
	msgs, err := conv.Messages(context.Background(), 0)
	if err != nil {
		return provider.MediaRef{}, err
	}
	for _, m := range msgs {
		if m.SID == messageSID && m.Media != nil {
			return *m.Media, nil
		}
	}
	return provider.MediaRef{}, fmt.Errorf("media %s: %w", messageSID, provider.ErrNotFound)
}

func (c *Client) UpdateToken(context.Context, string) error { return nil }

func (c *Client) Events() (<-chan provider.Event, func()) { return c.events, func() {} }

func (c *Client) Shutdown() error { return nil }

// Conversation is an in-memory conversation. Sends are echoed back to
// subscribers as MessageAdded events when Echo is set.
type Conversation struct {
	MessagesErr     error
	ParticipantsErr error
	UnreadErr       error
	ActionErr       error
	ReadErr         error
	AddErr          map[string]error
	Echo            bool
	Unread          int

	self         string
	sid          string
	uniqueName   string
	friendlyName string
	status       string
	created      time.Time

	mu           sync.Mutex
	messages     []provider.Message
	participants []string
	reads        int
	subs         map[int]chan provider.Event
	nextSub      int
}

var _ provider.Conversation = (*Conversation)(nil)

// NewConversation creates a joined conversation.
func NewConversation(sid, uniqueName, friendlyName string) *Conversation {
	return &Conversation{
		sid:          sid,
		uniqueName:   uniqueName,
		friendlyName: friendlyName,
		status:       provider.StatusJoined,
		created:      time.Unix(0, 0),
		subs:         make(map[int]chan provider.Event),
	}
}

// WithParticipants sets the roster.
func (c *Conversation) WithParticipants(ids ...string) *Conversation {
	c.participants = ids
	return c
}

// WithMessages sets the history.
func (c *Conversation) WithMessages(msgs ...provider.Message) *Conversation {
	c.messages = msgs
	return c
}

// WithStatus sets the status reported to the client identity.
func (c *Conversation) WithStatus(s string) *Conversation {
	c.status = s
	return c
}

// WithCreated sets the creation time.
func (c *Conversation) WithCreated(t time.Time) *Conversation {
	c.created = t
	return c
}

// Reads returns how many times SetAllMessagesRead was called.
func (c *Conversation) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Subscribers returns the number of live subscriptions.
func (c *Conversation) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Emit delivers evt to every subscriber in order.
func (c *Conversation) Emit(evt provider.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := evt.(provider.MessageAdded); ok {
		c.messages = append(c.messages, m.Message)
	}
	for _, ch := range c.subs {
		ch <- evt
	}
}

func (c *Conversation) SID() string            { return c.sid }
func (c *Conversation) UniqueName() string     { return c.uniqueName }
func (c *Conversation) DateCreated() time.Time { return c.created }

func (c *Conversation) FriendlyName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.friendlyName
}

func (c *Conversation) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Conversation) Messages(_ context.Context, pageSize int) ([]provider.Message, error) {
	if c.MessagesErr != nil {
		return nil, c.MessagesErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.messages
	if pageSize > 0 && len(msgs) > pageSize {
		msgs = msgs[len(msgs)-pageSize:]
	}
	return slices.Clone(msgs), nil
}

func (c *Conversation) Participants(context.Context) ([]string, error) {
	if c.ParticipantsErr != nil {
		return nil, c.ParticipantsErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.participants), nil
}

func (c *Conversation) Add(_ context.Context, identity string) error {
	if err := c.AddErr[identity]; err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.participants, identity) {
		c.participants = append(c.participants, identity)
	}
	if identity == c.self {
		c.status = provider.StatusJoined
	}
	return nil
}

func (c *Conversation) RemoveParticipant(_ context.Context, identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participants = slices.DeleteFunc(c.participants, func(id string) bool { return id == identity })
	return nil
}

func (c *Conversation) UpdateFriendlyName(_ context.Context, name string) error {
	if c.ActionErr != nil {
		return c.ActionErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.friendlyName = name
	return nil
}

func (c *Conversation) Leave(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = provider.StatusNotParticipating
	return nil
}

func (c *Conversation) SetAllMessagesRead(context.Context) error {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.ReadErr
}

func (c *Conversation) UnreadMessagesCount(context.Context) (int, error) {
	if c.UnreadErr != nil {
		return 0, c.UnreadErr
	}
	return c.Unread, nil
}

func (c *Conversation) SendText(_ context.Context, body string) (int64, error) {
	return c.send(provider.Message{Body: body, Type: provider.MessageText})
}

func (c *Conversation) SendMedia(_ context.Context, upload provider.MediaUpload) (int64, error) {
	return c.send(provider.Message{
		Type: provider.MessageMedia,
		Media: &provider.MediaRef{
			ConversationSID: c.sid,
			ContentType:     upload.ContentType,
			Filename:        upload.Filename,
		},
	})
}

func (c *Conversation) send(m provider.Message) (int64, error) {
	if c.ActionErr != nil {
		return 0, c.ActionErr
	}
	c.mu.Lock()
	m.Index = int64(len(c.messages))
	m.SID = fmt.Sprintf("IM%s-%d", c.sid, m.Index)
	m.ConversationSID = c.sid
	m.Author = c.self
	if m.Media != nil {
		m.Media.ID = m.SID
	}
	echo := c.Echo
	c.mu.Unlock()

	if echo {
		c.Emit(provider.MessageAdded{Message: m})
	} else {
		c.mu.Lock()
		c.messages = append(c.messages, m)
		c.mu.Unlock()
	}
	return m.Index, nil
}

func (c *Conversation) Subscribe() (<-chan provider.Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan provider.Event, 64)
	c.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Msg builds a text message.
func Msg(sid string, index int64, author, body string, at time.Time) provider.Message {
	return provider.Message{
		SID:         sid,
		Index:       index,
		Author:      author,
		Body:        body,
		Type:        provider.MessageText,
		DateCreated: at,
	}
}
