package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Notification is a push message as received from the push service.
type Notification struct {
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Navigator performs navigation once the navigation tree is mounted.
type Navigator interface {
	Navigate(screen string, params ChatParams) error
}

// Displayer shows a notification locally without navigating.
type Displayer interface {
	Display(n Notification) error
}

// Router delivers notification targets to the navigator. Targets captured
// before MarkReady wait in a single pending slot; Run is the only consumer of
// that slot and delivers each captured target once.
type Router struct {
	nav     Navigator
	display Displayer
	logger  *zap.Logger

	mu      sync.Mutex
	pending *Target

	wake      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// NewRouter creates a router that is not ready yet.
func NewRouter(nav Navigator, display Displayer, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		nav:     nav,
		display: display,
		logger:  logger.Named("notify"),
		wake:    make(chan struct{}, 1),
		ready:   make(chan struct{}),
	}
}

// MarkReady signals that navigation is mounted. Later calls do nothing.
func (r *Router) MarkReady() {
	r.readyOnce.Do(func() {
		close(r.ready)
		r.logger.Info("navigation ready")
	})
}

// Ready reports whether MarkReady was called.
func (r *Router) Ready() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// Tap handles a notification the user tapped while the app was running.
// Returns false when the payload was dropped.
func (r *Router) Tap(data map[string]any) bool {
	return r.capture("tap", data)
}

// Initial handles the notification that launched the app.
func (r *Router) Initial(data map[string]any) bool {
	return r.capture("initial", data)
}

// Foreground re-displays a notification that arrived while the app was in
// the foreground. It never navigates.
func (r *Router) Foreground(n Notification) {
	if r.display == nil {
		r.logger.Debug("foreground notification ignored", zap.String("title", n.Title))
		return
	}
	if err := r.display.Display(n); err != nil {
		r.logger.Warn("display notification", zap.Error(err))
	}
}

func (r *Router) capture(source string, data map[string]any) bool {
	t, ok := Normalize(data)
	if !ok {
		r.logger.Debug("notification without conversation dropped", zap.String("source", source))
		return false
	}
	r.mu.Lock()
	r.pending = &t
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	r.logger.Debug("notification captured",
		zap.String("source", source),
		zap.String("conversation", t.ConversationSID),
	)
	return true
}

// Pending returns the captured target that has not been delivered yet.
func (r *Router) Pending() (Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Target{}, false
	}
	return *r.pending, true
}

func (r *Router) take() *Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.pending
	r.pending = nil
	return t
}

// Run waits for readiness, then delivers captured targets until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ready:
	}

	for {
		if t := r.take(); t != nil {
			r.route(*t)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		}
	}
}

func (r *Router) route(t Target) {
	if err := r.nav.Navigate(ScreenChat, t.Params()); err != nil {
		r.logger.Error("navigate to conversation",
			zap.String("conversation", t.ConversationSID),
			zap.Error(err),
		)
		return
	}
	r.logger.Info("routed notification",
		zap.String("conversation", t.ConversationSID),
		zap.Bool("group", t.IsGroup),
	)
}

// Listen feeds a push source into the router until ctx is done.
func (r *Router) Listen(ctx context.Context, src Source) error {
	initial, err := src.InitialNotification(ctx)
	if err != nil {
		r.logger.Warn("initial notification", zap.Error(err))
	} else if initial != nil {
		r.Initial(initial.Data)
	}

	foreground, taps := src.Foreground(), src.Taps()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-foreground:
			r.Foreground(n)
		case n := <-taps:
			r.Tap(n.Data)
		}
	}
}
