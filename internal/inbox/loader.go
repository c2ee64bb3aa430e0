package inbox

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/provider"
)

// UserSource lists the user directory for the signed-in session.
type UserSource interface {
	Users(ctx context.Context) ([]directory.User, error)
}

// Snapshot is one load of the merged list. A failing half leaves its input
// empty and its error set; the other half still contributes entries.
type Snapshot struct {
	Self             string  `json:"self"`
	Entries          []Entry `json:"entries"`
	UsersErr         error   `json:"-"`
	ConversationsErr error   `json:"-"`
}

// Loader fetches both inputs of the merged list concurrently.
type Loader struct {
	source   provider.ClientSource
	users    UserSource
	enricher *Enricher
	logger   *zap.Logger
}

// NewLoader creates a loader.
func NewLoader(source provider.ClientSource, users UserSource, enricher *Enricher, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		source:   source,
		users:    users,
		enricher: enricher,
		logger:   logger.Named("inbox"),
	}
}

// Load fetches the directory and the enriched conversations and merges them.
// It fails only when there is no provider client.
func (l *Loader) Load(ctx context.Context) (Snapshot, error) {
	client, err := l.source.Client()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Self: client.Identity()}

	var (
		g     errgroup.Group
		users []directory.User
		convs []Conversation
	)
	g.Go(func() error {
		users, snap.UsersErr = l.users.Users(ctx)
		return nil
	})
	g.Go(func() error {
		convs, snap.ConversationsErr = l.enricher.Conversations(ctx)
		return nil
	})
	_ = g.Wait()

	if snap.UsersErr != nil {
		l.logger.Warn("directory fetch failed", zap.Error(snap.UsersErr))
		users = nil
	}
	if snap.ConversationsErr != nil {
		l.logger.Warn("conversation fetch failed", zap.Error(snap.ConversationsErr))
		convs = nil
	}
	snap.Entries = Recompute(users, convs, snap.Self)
	return snap, nil
}
