// Package presencetest provides a recording Emitter for tests.
package presencetest

import (
	"sync"

	"github.com/vedesh-padal/tal-chat-app/internal/components/presence"
)

// Event is one recorded emission.
type Event struct {
	Room    string
	Kind    presence.EventKind
	Payload any
}

// Recorder records every Emit call.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(room string, kind presence.EventKind, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Room: room, Kind: kind, Payload: payload})
}

// Events returns a copy of what was recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Of returns the recorded events of one kind.
func (r *Recorder) Of(kind presence.EventKind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

var _ presence.Emitter = (*Recorder)(nil)
