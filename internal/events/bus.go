package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus is an asynchronous publish-subscribe hub. Network observers
// forward onto it so telemetry and the admin API never sit on a peer's
// receive path.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  bool
	wg       sync.WaitGroup
}

type handlerEntry struct {
	name    string
	handler HandlerFunc
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]handlerEntry),
		stopCh:   make(chan struct{}),
	}
}

// Subscribe registers a named handler for an event type. Registering the
// same name twice replaces the earlier handler.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	entries := eb.handlers[eventType]
	for i, h := range entries {
		if h.name == name {
			entries[i].handler = handler
			return
		}
	}
	eb.handlers[eventType] = append(entries, handlerEntry{name: name, handler: handler})

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed to event")
}

// Unsubscribe removes a named handler from an event type.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	entries := eb.handlers[eventType]
	filtered := entries[:0:0]
	for _, h := range entries {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) == 0 {
		delete(eb.handlers, eventType)
		return
	}
	eb.handlers[eventType] = filtered
}

// snapshot returns the handlers for t and reserves a wait slot for each,
// or nil once the bus is stopped.
func (eb *EventBus) snapshot(t EventType) []handlerEntry {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		return nil
	}
	entries := eb.handlers[t]
	if len(entries) == 0 {
		return nil
	}
	out := make([]handlerEntry, len(entries))
	copy(out, entries)
	eb.wg.Add(len(out))
	return out
}

func (eb *EventBus) run(ctx context.Context, h handlerEntry, event Event) (err error) {
	defer eb.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err = h.handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", h.name).
			Msg("handler returned error")
	}
	return err
}

// Emit publishes an event to every subscribed handler. Each handler runs in
// its own goroutine; Emit never blocks on them.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	handlers := eb.snapshot(event.Type)
	if handlers == nil {
		return
	}

	log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(handlers)).
		Msg("emitting event")

	for _, h := range handlers {
		go eb.run(ctx, h, event)
	}
}

// EmitSync publishes an event and waits for all handlers to complete.
// It returns the first handler error.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	handlers := eb.snapshot(event.Type)
	if handlers == nil {
		return nil
	}

	errs := make([]error, len(handlers))
	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for i, h := range handlers {
		go func(i int, h handlerEntry) {
			defer wg.Done()
			errs[i] = eb.run(ctx, h, event)
		}(i, h)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop stops accepting events and waits for in-flight handlers. It is safe
// to call more than once.
func (eb *EventBus) Stop() {
	eb.stopOnce.Do(func() {
		eb.mu.Lock()
		eb.stopped = true
		close(eb.stopCh)
		eb.mu.Unlock()

		eb.wg.Wait()
		log.Info().Msg("event bus stopped")
	})
}

// StopCh returns a channel that is closed when the EventBus is stopped.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.stopCh
}

// HandlerCount returns the number of handlers registered for an event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
