// Package thread keeps the local view of one open conversation in step with
// the provider: a bootstrap page followed by live events applied in arrival
// order by a single dispatch loop.
package thread

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/provider"
)

// DefaultPageSize is the size of the bootstrap page when none is configured.
const DefaultPageSize = 30

var (
	// ErrSetup wraps failures to fetch the conversation or its initial state.
	ErrSetup = errors.New("conversation setup failed")
	// ErrAction wraps failures of user actions (send, add, rename, leave).
	ErrAction = errors.New("conversation action failed")
	// ErrClosed is returned by a thread after Close.
	ErrClosed = errors.New("thread closed")
	// ErrNotLive is returned by actions attempted before bootstrap completed.
	ErrNotLive = errors.New("thread is not live")

	ErrEmptyMessage = errors.New("message is empty")
	ErrEmptyName    = errors.New("name is empty")
)

// State is the lifecycle state of a thread.
type State string

const (
	Idle          State = "IDLE"
	Bootstrapping State = "BOOTSTRAPPING"
	Live          State = "LIVE"
	Closed        State = "CLOSED"
)

// Options identifies the conversation a thread follows.
type Options struct {
	SID      string
	IsGroup  bool
	PageSize int
}

// Snapshot is a copy of a thread's local state.
type Snapshot struct {
	SID          string             `json:"sid"`
	IsGroup      bool               `json:"isGroup"`
	State        State              `json:"state"`
	Name         string             `json:"name,omitempty"`
	Messages     []provider.Message `json:"messages"`
	Participants []string           `json:"participants"`
}

// Thread reconciles one conversation.
type Thread struct {
	sid      string
	isGroup  bool
	pageSize int
	source   provider.ClientSource
	logger   *zap.Logger

	mu           sync.Mutex
	state        State
	conv         provider.Conversation
	messages     []provider.Message
	participants []string
	name         string
	unsub        func()
	cancel       context.CancelFunc
	done         chan struct{}
	booted       chan struct{}
	bootErr      error

	updates   chan struct{}
	closeOnce sync.Once
}

// New creates an idle thread. Call Open to bootstrap it.
func New(source provider.ClientSource, opts Options, logger *zap.Logger) *Thread {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Thread{
		sid:      opts.SID,
		isGroup:  opts.IsGroup,
		pageSize: opts.PageSize,
		source:   source,
		logger:   logger.Named("thread").With(zap.String("sid", opts.SID)),
		state:    Idle,
		updates:  make(chan struct{}, 1),
	}
}

// SID returns the conversation SID.
func (t *Thread) SID() string { return t.sid }

// State returns the current lifecycle state.
func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Updates signals local state changes. Signals coalesce: one pending signal
// stands for any number of changes.
func (t *Thread) Updates() <-chan struct{} { return t.updates }

func (t *Thread) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the local state.
func (t *Thread) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		SID:          t.sid,
		IsGroup:      t.isGroup,
		State:        t.state,
		Name:         t.name,
		Messages:     slices.Clone(t.messages),
		Participants: slices.Clone(t.participants),
	}
}

// Open bootstraps the thread and subscribes to live events. On failure the
// thread returns to Idle and Open may be called again.
func (t *Thread) Open(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case Closed:
		t.mu.Unlock()
		return ErrClosed
	case Live:
		t.mu.Unlock()
		return nil
	case Bootstrapping:
		booted := t.booted
		t.mu.Unlock()
		return t.awaitBootstrap(ctx, booted)
	}
	t.state = Bootstrapping
	booted := make(chan struct{})
	t.booted = booted
	t.mu.Unlock()
	t.notify()

	boot, err := t.bootstrap(ctx)

	t.mu.Lock()
	defer close(booted)
	if t.state == Closed {
		t.bootErr = ErrClosed
		t.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		t.state = Idle
		t.bootErr = fmt.Errorf("%w: %w", ErrSetup, err)
		t.mu.Unlock()
		t.notify()
		t.logger.Error("bootstrap failed", zap.Error(err))
		return t.bootErr
	}
	t.bootErr = nil

	t.conv = boot.conv
	t.messages = boot.messages
	t.participants = boot.participants
	t.name = boot.name

	events, unsub := boot.conv.Subscribe()
	loopCtx, cancel := context.WithCancel(context.Background())
	t.unsub = unsub
	t.cancel = cancel
	t.done = make(chan struct{})
	t.state = Live
	go t.loop(loopCtx, events, t.done)
	t.mu.Unlock()

	t.notify()
	t.logger.Info("thread live",
		zap.Int("messages", len(boot.messages)),
		zap.Bool("group", t.isGroup),
	)
	t.markRead(ctx, boot.conv)
	return nil
}

// awaitBootstrap waits for another caller's bootstrap and reports its outcome.
func (t *Thread) awaitBootstrap(ctx context.Context, booted <-chan struct{}) error {
	select {
	case <-booted:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Live:
		return nil
	case Closed:
		return ErrClosed
	}
	return t.bootErr
}

type bootstrapResult struct {
	conv         provider.Conversation
	messages     []provider.Message
	participants []string
	name         string
}

func (t *Thread) bootstrap(ctx context.Context) (*bootstrapResult, error) {
	client, err := t.source.Client()
	if err != nil {
		return nil, err
	}
	conv, err := client.ConversationBySID(ctx, t.sid)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	msgs, err := conv.Messages(ctx, t.pageSize)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	res := &bootstrapResult{
		conv:     conv,
		messages: msgs,
		name:     conv.FriendlyName(),
	}
	if t.isGroup {
		roster, err := conv.Participants(ctx)
		if err != nil {
			return nil, fmt.Errorf("get participants: %w", err)
		}
		res.participants = roster
	}
	return res, nil
}

func (t *Thread) loop(ctx context.Context, events <-chan provider.Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			t.dispatch(evt)
		}
	}
}

func (t *Thread) dispatch(evt provider.Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("event handler panicked",
				zap.String("event", fmt.Sprintf("%T", evt)),
				zap.Any("panic", r),
			)
		}
	}()

	if t.applyLive(evt) {
		t.notify()
	}
}

// applyHook, when set, runs before each event is applied. Tests use it to
// make a handler fail.
var applyHook func(provider.Event)

func (t *Thread) applyLive(evt provider.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Live {
		return false
	}
	return t.apply(evt)
}

// apply mutates local state for one event. Caller holds mu.
func (t *Thread) apply(evt provider.Event) bool {
	if applyHook != nil {
		applyHook(evt)
	}
	switch e := evt.(type) {
	case provider.MessageAdded:
		t.messages = append(t.messages, e.Message)
		return true
	}
	if !t.isGroup {
		return false
	}
	switch e := evt.(type) {
	case provider.ParticipantJoined:
		if slices.Contains(t.participants, e.Identity) {
			return false
		}
		t.participants = append(t.participants, e.Identity)
		return true
	case provider.ParticipantLeft:
		n := len(t.participants)
		t.participants = slices.DeleteFunc(t.participants, func(id string) bool { return id == e.Identity })
		return len(t.participants) != n
	case provider.ConversationUpdated:
		if e.FriendlyName == "" || e.FriendlyName == t.name {
			return false
		}
		t.name = e.FriendlyName
		return true
	}
	return false
}

// Close unsubscribes from live events and waits for the dispatch loop to
// exit. No local state changes after Close returns.
func (t *Thread) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.state = Closed
		unsub, cancel, done := t.unsub, t.cancel, t.done
		t.mu.Unlock()

		if unsub != nil {
			unsub()
		}
		if cancel != nil {
			cancel()
		}
		if done != nil {
			<-done
		}
		t.notify()
		t.logger.Debug("thread closed")
	})
}

func (t *Thread) markRead(ctx context.Context, conv provider.Conversation) {
	if err := conv.SetAllMessagesRead(ctx); err != nil {
		t.logger.Warn("mark read failed", zap.Error(err))
	}
}

func (t *Thread) live() (provider.Conversation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Closed:
		return nil, ErrClosed
	case Live:
		return t.conv, nil
	}
	return nil, ErrNotLive
}

func (t *Thread) actionFailed(action string, err error) error {
	t.logger.Error("action failed", zap.String("action", action), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrAction, action, err)
}

// SendText sends a text message. The local list only grows when the
// provider echoes the message back.
func (t *Thread) SendText(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	conv, err := t.live()
	if err != nil {
		return err
	}
	if _, err := conv.SendText(ctx, body); err != nil {
		return t.actionFailed("send message", err)
	}
	t.markRead(ctx, conv)
	return nil
}

// SendMedia sends an attachment. A missing content type is sniffed from the
// payload and a missing filename derived from it.
func (t *Thread) SendMedia(ctx context.Context, upload provider.MediaUpload) error {
	if len(upload.Data) == 0 {
		return ErrEmptyMessage
	}
	conv, err := t.live()
	if err != nil {
		return err
	}
	if upload.ContentType == "" || upload.Filename == "" {
		mt := mimetype.Detect(upload.Data)
		if upload.ContentType == "" {
			upload.ContentType = mt.String()
		}
		if upload.Filename == "" {
			upload.Filename = "attachment" + mt.Extension()
		}
	}
	upload.Filename = filepath.Base(upload.Filename)

	if _, err := conv.SendMedia(ctx, upload); err != nil {
		return t.actionFailed("send media", err)
	}
	t.markRead(ctx, conv)
	return nil
}

// AddParticipants adds identities in order and stops at the first failure.
func (t *Thread) AddParticipants(ctx context.Context, identities ...string) error {
	conv, err := t.live()
	if err != nil {
		return err
	}
	for _, id := range identities {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := conv.Add(ctx, id); err != nil {
			return t.actionFailed("add participant "+id, err)
		}
	}
	return nil
}

// RemoveParticipant removes identity from the conversation.
func (t *Thread) RemoveParticipant(ctx context.Context, identity string) error {
	conv, err := t.live()
	if err != nil {
		return err
	}
	if err := conv.RemoveParticipant(ctx, identity); err != nil {
		return t.actionFailed("remove participant "+identity, err)
	}
	return nil
}

// Rename updates the conversation's friendly name.
func (t *Thread) Rename(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	conv, err := t.live()
	if err != nil {
		return err
	}
	if err := conv.UpdateFriendlyName(ctx, name); err != nil {
		return t.actionFailed("rename", err)
	}

	t.mu.Lock()
	changed := t.state == Live && t.name != name
	if changed {
		t.name = name
	}
	t.mu.Unlock()
	if changed {
		t.notify()
	}
	return nil
}

// Leave leaves the conversation and closes the thread.
func (t *Thread) Leave(ctx context.Context) error {
	conv, err := t.live()
	if err != nil {
		return err
	}
	if err := conv.Leave(ctx); err != nil {
		return t.actionFailed("leave", err)
	}
	t.Close()
	return nil
}
