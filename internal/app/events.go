package app

import (
	"sync"
	"time"

	"github.com/ayusman/drishti/internal/session"
)

// EventType names what an Event carries.
type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventState    EventType = "state"
)

// State is the kiosk's externally visible state.
type State struct {
	Enabled bool `json:"enabled"`
	Active  bool `json:"active"`
}

// Event is published to subscribers such as the websocket hub and the tray.
type Event struct {
	Type     EventType         `json:"type"`
	Time     time.Time         `json:"time"`
	Progress *session.Progress `json:"progress,omitempty"`
	Result   *session.Result   `json:"result,omitempty"`
	State    *State            `json:"state,omitempty"`
}

// Bus fans events out to subscribers. Handlers run synchronously on the
// publishing goroutine and must not block.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]func(Event)
	next int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers e to every subscriber.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
