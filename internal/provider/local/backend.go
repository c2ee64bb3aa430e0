// Package local is a sqlite-backed provider backend that runs inside the
// daemon. Subscribers get every live event in store order; the in-process bus
// carries a copy for observers. Media payloads live in an object store.
package local

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/storage"
	"github.com/matheus3301/chatsync/internal/store"
)

// Options tunes token and media URL lifetimes.
type Options struct {
	TokenTTL    time.Duration
	RefreshLead time.Duration
	URLTTL      time.Duration
	Now         func() time.Time
}

// Backend owns the provider state. All writes go through mu together with the
// publication of their event, so subscribers observe store order.
type Backend struct {
	db      *store.DB
	bus     *bus.Bus
	objects storage.ObjectStore
	logger  *zap.Logger
	opts    Options

	mu sync.Mutex

	feedMu sync.Mutex
	feeds  map[string]map[*feed]struct{}
}

var _ provider.Connector = (*Backend)(nil)

// New creates a backend. Zero option values fall back to defaults.
func New(db *store.DB, b *bus.Bus, objects storage.ObjectStore, logger *zap.Logger, opts Options) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.RefreshLead <= 0 {
		opts.RefreshLead = 3 * time.Minute
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Backend{
		db:      db,
		bus:     b,
		objects: objects,
		logger:  logger.Named("provider"),
		opts:    opts,
		feeds:   make(map[string]map[*feed]struct{}),
	}
}

// IssueToken mints a provider token for identity valid for ttl.
func (b *Backend) IssueToken(ctx context.Context, identity string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", provider.ErrUnauthorized
	}
	tok := &store.Token{
		Token:     uuid.NewString(),
		Identity:  identity,
		ExpiresAt: b.opts.Now().Add(ttl).UnixMilli(),
	}
	if err := b.db.SaveToken(tok); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return tok.Token, nil
}

// ProviderToken exchanges an auth token for a provider token. The local
// backend has no credential store: the auth token names the identity.
func (b *Backend) ProviderToken(ctx context.Context, authToken string) (string, error) {
	identity := strings.TrimSpace(authToken)
	if identity == "" {
		return "", provider.ErrUnauthorized
	}
	return b.IssueToken(ctx, identity, b.opts.TokenTTL)
}

// Initialize binds a client to the identity behind token.
func (b *Backend) Initialize(ctx context.Context, token string) (provider.Client, error) {
	tok, err := b.lookupToken(token)
	if err != nil {
		return nil, err
	}
	c := &client{
		b:        b,
		id:       uuid.NewString(),
		identity: tok.Identity,
	}
	c.schedule(time.UnixMilli(tok.ExpiresAt))
	b.logger.Info("client initialized", zap.String("identity", tok.Identity))
	return c, nil
}

// PurgeExpiredTokens removes tokens that can no longer initialize a client.
func (b *Backend) PurgeExpiredTokens() (int64, error) {
	n, err := b.db.PurgeExpiredTokens(b.opts.Now())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return n, nil
}

func (b *Backend) lookupToken(token string) (*store.Token, error) {
	tok, err := b.db.LookupToken(token)
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if tok == nil || !b.opts.Now().Before(time.UnixMilli(tok.ExpiresAt)) {
		return nil, provider.ErrUnauthorized
	}
	return tok, nil
}

// publish hands evt to every subscriber of namespace, then mirrors it on the
// bus for observers.
func (b *Backend) publish(namespace string, evt provider.Event) {
	b.deliver(namespace, evt)
	b.bus.Publish(bus.Event{
		Kind:      namespace + string(evt.Kind()),
		Timestamp: b.opts.Now(),
		Payload:   evt,
	})
}

func conversationNamespace(sid string) string {
	return bus.Topic("conv", sid, "")
}

func newSID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
