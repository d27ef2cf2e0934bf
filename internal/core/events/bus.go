package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Handler receives one event.
type Handler func(Event)

// Unsubscribe removes the handler it was returned for. Calling it more than once is a no-op.
type Unsubscribe func()

type listener struct {
	id      uint64
	fn      Handler
	once    bool
	removed atomic.Bool
}

// Bus is an in-process, synchronous publish/subscribe hub.
type Bus struct {
	logger *zap.SugaredLogger

	mu        sync.Mutex
	nextID    uint64
	listeners map[Name][]*listener
}

func NewBus(logger *zap.SugaredLogger) *Bus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bus{
		logger:    logger,
		listeners: make(map[Name][]*listener),
	}
}

// On registers h for name.
func (b *Bus) On(name Name, h Handler) Unsubscribe {
	return b.add(name, h, false)
}

// Once registers h for a single delivery.
func (b *Bus) Once(name Name, h Handler) Unsubscribe {
	return b.add(name, h, true)
}

func (b *Bus) add(name Name, h Handler, once bool) Unsubscribe {
	if h == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	l := &listener{id: b.nextID, fn: h, once: once}
	b.listeners[name] = append(b.listeners[name], l)
	b.mu.Unlock()

	return func() {
		l.removed.Store(true)
		b.remove(name, l.id)
	}
}

func (b *Bus) remove(name Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[name]
	for i, l := range ls {
		if l.id != id {
			continue
		}
		b.listeners[name] = append(ls[:i:i], ls[i+1:]...)
		break
	}
	if len(b.listeners[name]) == 0 {
		delete(b.listeners, name)
	}
}

// Emit delivers e to the handlers registered for its name, in registration
// order, before returning. A panicking handler is logged and skipped.
func (b *Bus) Emit(e Event) {
	if e == nil {
		return
	}
	name := e.EventName()

	b.mu.Lock()
	current := b.listeners[name]
	snapshot := make([]*listener, len(current))
	copy(snapshot, current)

	kept := current[:0:0]
	for _, l := range current {
		if l.once {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) != len(current) {
		if len(kept) == 0 {
			delete(b.listeners, name)
		} else {
			b.listeners[name] = kept
		}
	}
	b.mu.Unlock()

	for _, l := range snapshot {
		if l.removed.Load() {
			continue
		}
		b.invoke(name, l, e)
	}
}

func (b *Bus) invoke(name Name, l *listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("event handler panicked",
				"event", name,
				"listener", l.id,
				"panic", r,
			)
		}
	}()
	l.fn(e)
}

// Clear drops every handler.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ls := range b.listeners {
		for _, l := range ls {
			l.removed.Store(true)
		}
	}
	b.listeners = make(map[Name][]*listener)
}

// ClearEvent drops every handler for name.
func (b *Bus) ClearEvent(name Name) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.listeners[name] {
		l.removed.Store(true)
	}
	delete(b.listeners, name)
}

// ListenerCount returns the number of handlers registered for name.
func (b *Bus) ListenerCount(name Name) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[name])
}

// Subscribe binds a typed handler to E's event name.
func Subscribe[E Event](b *Bus, fn func(E)) Unsubscribe {
	var zero E
	return b.On(zero.EventName(), func(e Event) {
		if typed, ok := e.(E); ok {
			fn(typed)
		}
	})
}

// SubscribeOnce is Subscribe for a single delivery.
func SubscribeOnce[E Event](b *Bus, fn func(E)) Unsubscribe {
	var zero E
	return b.Once(zero.EventName(), func(e Event) {
		if typed, ok := e.(E); ok {
			fn(typed)
		}
	})
}
