package notify

import (
	"context"
	"sync"
)

// Source is the push service as seen by the router.
type Source interface {
	Foreground() <-chan Notification
	Taps() <-chan Notification
	// InitialNotification returns the notification that launched the
	// process, or nil.
	InitialNotification(ctx context.Context) (*Notification, error)
}

// ChannelSource is an in-process Source fed by the daemon's control API.
type ChannelSource struct {
	foreground chan Notification
	taps       chan Notification

	mu      sync.Mutex
	initial *Notification
}

var _ Source = (*ChannelSource)(nil)

// NewChannelSource creates a source with buffered channels of size buf.
func NewChannelSource(buf int) *ChannelSource {
	return &ChannelSource{
		foreground: make(chan Notification, buf),
		taps:       make(chan Notification, buf),
	}
}

func (s *ChannelSource) Foreground() <-chan Notification { return s.foreground }
func (s *ChannelSource) Taps() <-chan Notification       { return s.taps }

// InitialNotification hands out the launch notification once.
func (s *ChannelSource) InitialNotification(context.Context) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.initial
	s.initial = nil
	return n, nil
}

// SetInitial records the launch notification.
func (s *ChannelSource) SetInitial(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initial = &n
}

// PushForeground queues a foreground notification. Returns false when full.
func (s *ChannelSource) PushForeground(n Notification) bool {
	select {
	case s.foreground <- n:
		return true
	default:
		return false
	}
}

// PushTap queues a tapped notification. Returns false when full.
func (s *ChannelSource) PushTap(n Notification) bool {
	select {
	case s.taps <- n:
		return true
	default:
		return false
	}
}
