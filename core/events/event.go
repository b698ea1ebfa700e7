package events

import (
	"sync"

	"invokeledger/core/types"
)

// Event represents a structured state change emitted by the settlement layer.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render themselves as a generic
// attribute map for archives and streams.
type Payload interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. archives, streams).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

// Emit implements the Emitter interface.
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Fanout delivers every event to each configured emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Render converts an event into its generic representation. Events that do not
// implement Payload are rendered with their type only.
func Render(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if p, ok := evt.(Payload); ok {
		if rendered := p.Event(); rendered != nil {
			return rendered
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Recorder captures emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in emission order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
