package thread

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/provider"
)

// Registry holds the active thread. One thread is open at a time: opening a
// different conversation closes the previous one.
type Registry struct {
	source   provider.ClientSource
	pageSize int
	logger   *zap.Logger

	mu     sync.Mutex
	active *Thread
}

// NewRegistry creates an empty registry.
func NewRegistry(source provider.ClientSource, pageSize int, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		source:   source,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Open returns the thread for sid, bootstrapping it when needed. A thread
// whose bootstrap failed stays registered so a later Open retries it.
func (r *Registry) Open(ctx context.Context, sid string, isGroup bool) (*Thread, error) {
	r.mu.Lock()
	if th := r.active; th != nil && th.SID() == sid && th.State() != Closed {
		r.mu.Unlock()
		return th, th.Open(ctx)
	}
	prev := r.active
	th := New(r.source, Options{SID: sid, IsGroup: isGroup, PageSize: r.pageSize}, r.logger)
	r.active = th
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return th, th.Open(ctx)
}

// Get returns the open thread for sid.
func (r *Registry) Get(sid string) (*Thread, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.SID() != sid || r.active.State() == Closed {
		return nil, false
	}
	return r.active, true
}

// Close closes the thread for sid. Returns false when it was not open.
func (r *Registry) Close(sid string) bool {
	r.mu.Lock()
	th := r.active
	if th == nil || th.SID() != sid {
		r.mu.Unlock()
		return false
	}
	r.active = nil
	r.mu.Unlock()

	th.Close()
	return true
}

// CloseAll closes the active thread, if any.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	th := r.active
	r.active = nil
	r.mu.Unlock()

	if th != nil {
		th.Close()
	}
}
