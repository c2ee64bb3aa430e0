// Package media resolves attachment references to short-lived fetch URLs and
// keeps a bounded insertion-ordered cache of the results.
package media

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/matheus3301/chatsync/internal/provider"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = 5 * time.Minute
)

// ErrNoMediaID is returned for a reference without an owning message.
var ErrNoMediaID = errors.New("media reference has no id")

// Resolver issues temporary URLs for attachments.
type Resolver interface {
	TemporaryMediaURL(ctx context.Context, ref provider.MediaRef) (string, error)
}

// Resolved is a cached temporary URL.
type Resolved struct {
	URL                  string    `json:"url"`
	ExpiresApproximately time.Time `json:"expiresApproximately"`
}

// Options configures a Cache.
type Options struct {
	Capacity int
	TTL      time.Duration
	Now      func() time.Time
}

type entry struct {
	key string
	val Resolved
}

// Cache maps media ids to resolved URLs. Eviction is by insertion order, not
// access. Concurrent misses for one id share a single provider call.
type Cache struct {
	resolver Resolver
	capacity int
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element

	group singleflight.Group
}

// NewCache creates an empty cache.
func NewCache(resolver Resolver, opts Options, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		resolver: resolver,
		capacity: opts.Capacity,
		ttl:      opts.TTL,
		now:      opts.Now,
		logger:   logger.Named("media"),
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Resolve returns the URL for ref, asking the provider on a miss. Entries past
// their approximate expiry count as misses.
func (c *Cache) Resolve(ctx context.Context, ref provider.MediaRef) (Resolved, error) {
	if ref.ID == "" {
		return Resolved{}, ErrNoMediaID
	}
	if r, ok := c.lookup(ref.ID); ok {
		return r, nil
	}

	ch := c.group.DoChan(ref.ID, func() (any, error) {
		if r, ok := c.lookup(ref.ID); ok {
			return r, nil
		}
		url, err := c.resolver.TemporaryMediaURL(context.WithoutCancel(ctx), ref)
		if err != nil {
			return nil, err
		}
		r := Resolved{URL: url, ExpiresApproximately: c.now().Add(c.ttl)}
		c.insert(ref.ID, r)
		return r, nil
	})

	select {
	case <-ctx.Done():
		return Resolved{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn("resolve failed", zap.String("media", ref.ID), zap.Error(res.Err))
			return Resolved{}, fmt.Errorf("resolve media %s: %w", ref.ID, res.Err)
		}
		return res.Val.(Resolved), nil
	}
}

func (c *Cache) lookup(key string) (Resolved, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return Resolved{}, false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.val.ExpiresApproximately) {
		c.order.Remove(el)
		delete(c.index, key)
		return Resolved{}, false
	}
	return e.val, true
}

func (c *Cache) insert(key string, r Resolved) {
	c.mu.Lock()
	if el, ok := c.index[key]; ok {
		c.order.Remove(el)
	}
	c.index[key] = c.order.PushBack(&entry{key: key, val: r})
	c.mu.Unlock()

	c.EvictOldestIfOverCapacity()
}

// EvictOldestIfOverCapacity drops the oldest-inserted entries until the cache
// fits its capacity. Returns the number of evicted entries.
func (c *Cache) EvictOldestIfOverCapacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for c.order.Len() > c.capacity {
		front := c.order.Front()
		c.order.Remove(front)
		delete(c.index, front.Value.(*entry).key)
		n++
	}
	return n
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.index)
}
