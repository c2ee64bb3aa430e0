package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/thread"
)

// Bus event kinds published by the daemon's navigation surface.
const (
	KindNavigated = "nav.navigated"
	KindDisplayed = "notify.displayed"
)

const navigateTimeout = 30 * time.Second

// Navigation is the payload of KindNavigated.
type Navigation struct {
	Screen string
	Params notify.ChatParams
}

// Navigator opens the conversation thread behind a chat navigation. It is
// the daemon's stand-in for a mounted navigation tree.
type Navigator struct {
	threads *thread.Registry
	bus     *bus.Bus
	logger  *zap.Logger
}

var _ notify.Navigator = (*Navigator)(nil)

// NewNavigator creates a navigator over threads.
func NewNavigator(threads *thread.Registry, b *bus.Bus, logger *zap.Logger) *Navigator {
	return &Navigator{threads: threads, bus: b, logger: logger.Named("nav")}
}

// Navigate opens params' conversation as the active thread.
func (n *Navigator) Navigate(screen string, params notify.ChatParams) error {
	if screen != notify.ScreenChat {
		return fmt.Errorf("unknown screen %q", screen)
	}
	ctx, cancel := context.WithTimeout(context.Background(), navigateTimeout)
	defer cancel()
	if _, err := n.threads.Open(ctx, params.ConversationSID, params.IsGroup); err != nil {
		return err
	}
	n.bus.Publish(bus.Event{
		Kind:      KindNavigated,
		Timestamp: time.Now(),
		Payload:   Navigation{Screen: screen, Params: params},
	})
	n.logger.Info("navigated", zap.String("conversation", params.ConversationSID), zap.Bool("group", params.IsGroup))
	return nil
}

// Displayer surfaces foreground notifications on the bus and in the log.
type Displayer struct {
	bus    *bus.Bus
	logger *zap.Logger
}

var _ notify.Displayer = (*Displayer)(nil)

// NewDisplayer creates a displayer.
func NewDisplayer(b *bus.Bus, logger *zap.Logger) *Displayer {
	return &Displayer{bus: b, logger: logger.Named("display")}
}

func (d *Displayer) Display(n notify.Notification) error {
	d.bus.Publish(bus.Event{Kind: KindDisplayed, Timestamp: time.Now(), Payload: n})
	d.logger.Info("notification", zap.String("title", n.Title), zap.String("body", n.Body))
	return nil
}
