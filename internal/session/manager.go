package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/status"
)

// ErrNotInitialized is returned when the provider client is requested before sign-in.
var ErrNotInitialized = errors.New("provider client not initialized")

const refreshTimeout = 30 * time.Second

// TokenSource exchanges the auth token for a provider token.
type TokenSource interface {
	ProviderToken(ctx context.Context, authToken string) (string, error)
}

// UserSource lists the user directory.
type UserSource interface {
	Users(ctx context.Context, authToken string) ([]directory.User, error)
}

// Manager owns the process-wide provider client. It is initialized at most
// once per sign-in and refreshed in place when the provider warns about token
// expiry.
type Manager struct {
	connector provider.Connector
	tokens    TokenSource
	users     UserSource
	machine   *status.Machine
	logger    *zap.Logger

	mu        sync.Mutex
	client    provider.Client
	authToken string
	stopWatch context.CancelFunc
	onSignOut []func()
}

// NewManager creates a session manager.
func NewManager(connector provider.Connector, tokens TokenSource, users UserSource, machine *status.Machine, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		connector: connector,
		tokens:    tokens,
		users:     users,
		machine:   machine,
		logger:    logger.Named("session"),
	}
}

// Boot moves the session out of BOOTING into AUTH_REQUIRED.
func (m *Manager) Boot() error {
	return m.machine.TransitionIfNot(status.AuthRequired)
}

// OnSignOut registers fn to run before the client is torn down.
func (m *Manager) OnSignOut(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSignOut = append(m.onSignOut, fn)
}

// SignIn initializes the provider client for authToken. A second call while
// signed in returns the existing client.
func (m *Manager) SignIn(ctx context.Context, authToken string) (provider.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}
	if err := m.machine.Transition(status.Connecting); err != nil {
		return nil, err
	}

	token, err := m.tokens.ProviderToken(ctx, authToken)
	if err != nil {
		m.fail("provider token", err)
		return nil, fmt.Errorf("provider token: %w", err)
	}
	client, err := m.connector.Initialize(ctx, token)
	if err != nil {
		m.fail("initialize client", err)
		return nil, fmt.Errorf("initialize client: %w", err)
	}

	m.client = client
	m.authToken = authToken
	watchCtx, cancel := context.WithCancel(context.Background())
	m.stopWatch = cancel
	go m.watch(watchCtx, client)

	if err := m.machine.Transition(status.Ready); err != nil {
		m.logger.Warn("status transition", zap.Error(err))
	}
	m.logger.Info("signed in", zap.String("identity", client.Identity()))
	return client, nil
}

func (m *Manager) fail(step string, err error) {
	m.logger.Error("sign-in failed", zap.String("step", step), zap.Error(err))
	if terr := m.machine.Transition(status.AuthRequired); terr != nil {
		m.logger.Warn("status transition", zap.Error(terr))
	}
}

// Client returns the current provider client.
func (m *Manager) Client() (provider.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, ErrNotInitialized
	}
	return m.client, nil
}

// Identity returns the signed-in identity, or "" when signed out.
func (m *Manager) Identity() string {
	c, err := m.Client()
	if err != nil {
		return ""
	}
	return c.Identity()
}

// Users fetches the directory with the session's auth token.
func (m *Manager) Users(ctx context.Context) ([]directory.User, error) {
	m.mu.Lock()
	token, signedIn := m.authToken, m.client != nil
	m.mu.Unlock()
	if !signedIn {
		return nil, ErrNotInitialized
	}
	return m.users.Users(ctx, token)
}

// TemporaryMediaURL resolves an attachment through the current client.
func (m *Manager) TemporaryMediaURL(ctx context.Context, ref provider.MediaRef) (string, error) {
	c, err := m.Client()
	if err != nil {
		return "", err
	}
	return c.TemporaryMediaURL(ctx, ref)
}

// MessageMedia looks up an attachment through the current client.
func (m *Manager) MessageMedia(ctx context.Context, conversationSID, messageSID string) (provider.MediaRef, error) {
	c, err := m.Client()
	if err != nil {
		return provider.MediaRef{}, err
	}
	return c.MessageMedia(ctx, conversationSID, messageSID)
}

// SignOut runs the sign-out hooks and shuts the client down.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teardown()
}

func (m *Manager) teardown() error {
	if m.client == nil {
		return nil
	}
	for _, fn := range m.onSignOut {
		fn()
	}
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	err := m.client.Shutdown()
	identity := m.client.Identity()
	m.client = nil
	m.authToken = ""
	if terr := m.machine.TransitionIfNot(status.AuthRequired); terr != nil {
		m.logger.Warn("status transition", zap.Error(terr))
	}
	m.logger.Info("signed out", zap.String("identity", identity))
	return err
}

func (m *Manager) watch(ctx context.Context, client provider.Client) {
	events, unsub := client.Events()
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.(type) {
			case provider.TokenAboutToExpire:
				m.refresh(ctx, client)
			case provider.TokenExpired:
				m.expire(client)
				return
			}
		}
	}
}

func (m *Manager) refresh(ctx context.Context, client provider.Client) {
	m.mu.Lock()
	if m.client != client {
		m.mu.Unlock()
		return
	}
	authToken := m.authToken
	m.mu.Unlock()

	if err := m.machine.Transition(status.Refreshing); err != nil {
		m.logger.Warn("status transition", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	err := func() error {
		token, err := m.tokens.ProviderToken(ctx, authToken)
		if err != nil {
			return fmt.Errorf("provider token: %w", err)
		}
		return client.UpdateToken(ctx, token)
	}()
	if err != nil {
		m.logger.Error("token refresh failed", zap.Error(err))
		if terr := m.machine.Transition(status.Error); terr != nil {
			m.logger.Warn("status transition", zap.Error(terr))
		}
		return
	}
	if err := m.machine.Transition(status.Ready); err != nil {
		m.logger.Warn("status transition", zap.Error(err))
	}
	m.logger.Info("token refreshed")
}

func (m *Manager) expire(client provider.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != client {
		return
	}
	m.logger.Warn("provider token expired")
	if err := m.teardown(); err != nil {
		m.logger.Warn("client shutdown", zap.Error(err))
	}
}
