// Package bus is the in-process publish/subscribe link between the session
// machine and its observers.
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/meetloop/callcore/internal/core"
)

// Bus delivers every published event to all subscribers, in subscription
// order, synchronously on the publisher's goroutine. The session machine
// publishes from its single loop, which is what gives per-stream ordering;
// subscribers must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(core.Event)
	order  []int
}

func New() *Bus {
	return &Bus{subs: make(map[int]func(core.Event))}
}

// Subscribe registers fn and returns an id for Unsubscribe.
func (b *Bus) Subscribe(fn func(core.Event)) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.order = append(b.order, id)
	return id
}

func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish invokes every subscriber with e. A subscriber unsubscribing during
// dispatch stops receiving from the next publish, not mid-dispatch.
func (b *Bus) Publish(e core.Event) {
	b.mu.RLock()
	fns := make([]func(core.Event), 0, len(b.order))
	for _, id := range b.order {
		if fn, ok := b.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.RUnlock()

	log.Debug().Str("module", "bus").Type("event", e).Int("subs", len(fns)).Msg("publish")
	for _, fn := range fns {
		fn(e)
	}
}
