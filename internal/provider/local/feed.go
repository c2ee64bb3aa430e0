package local

import (
	"sync"

	"github.com/matheus3301/chatsync/internal/provider"
)

// feed is one subscriber's event stream. Pushes never block and never drop:
// events queue until the reader catches up.
type feed struct {
	mu     sync.Mutex
	queue  []provider.Event
	signal chan struct{}
	done   chan struct{}
	out    chan provider.Event
}

func newFeed() *feed {
	f := &feed{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan provider.Event),
	}
	go f.run()
	return f
}

func (f *feed) push(evt provider.Event) {
	f.mu.Lock()
	f.queue = append(f.queue, evt)
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *feed) pop() (provider.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, false
	}
	evt := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	return evt, true
}

func (f *feed) run() {
	defer close(f.out)
	for {
		evt, ok := f.pop()
		if !ok {
			select {
			case <-f.signal:
				continue
			case <-f.done:
				return
			}
		}
		select {
		case f.out <- evt:
		case <-f.done:
			return
		}
	}
}

func (f *feed) stop() { close(f.done) }

// subscribe registers a lossless feed for namespace. The channel is closed
// after unsubscribe.
func (b *Backend) subscribe(namespace string) (<-chan provider.Event, func()) {
	f := newFeed()

	b.feedMu.Lock()
	set, ok := b.feeds[namespace]
	if !ok {
		set = make(map[*feed]struct{})
		b.feeds[namespace] = set
	}
	set[f] = struct{}{}
	b.feedMu.Unlock()

	var once sync.Once
	return f.out, func() {
		once.Do(func() {
			b.feedMu.Lock()
			delete(b.feeds[namespace], f)
			if len(b.feeds[namespace]) == 0 {
				delete(b.feeds, namespace)
			}
			b.feedMu.Unlock()
			f.stop()
		})
	}
}

func (b *Backend) deliver(namespace string, evt provider.Event) {
	b.feedMu.Lock()
	defer b.feedMu.Unlock()
	for f := range b.feeds[namespace] {
		f.push(evt)
	}
}
