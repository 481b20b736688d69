// Agent event protocol.
//
// Agents talk to each other only through events. Every agent owns a
// listener registry; a parent subscribes to the events of its children
// when the tree is built.

package agent

import (
	"slices"
	"sync"
	"time"

	"github.com/ElectronicaGitHub/agented-io/model"
)

// EventType names an event on the agent protocol.
type EventType string

const (
	// EventMainResponse carries a terminal reply to the parent.
	EventMainResponse        EventType = "main_response"
	// EventReflectionResponse carries a reflection agent's reply to its parent.
	EventReflectionResponse  EventType = "reflection_response"
	// EventResponse is an intermediate or terminal broadcast.
	EventResponse            EventType = "response"
	EventStatusChanged       EventType = "status_changed"
	EventPing                EventType = "ping"
	EventPong                EventType = "pong"
	EventRequestLastResponse EventType = "request_last_response"
	// EventMessagesUpdated is emitted after every history append.
	EventMessagesUpdated     EventType = "messages_updated"
	// EventProviderStatus reports a backend stop status (e.g. 429).
	EventProviderStatus      EventType = "provider_status"
)

// Event is one message on the protocol. Only the fields relevant to Type
// are set.
type Event struct {
	Type EventType
	// Agent is the agent that emitted the event.
	Agent     string
	CreatedAt time.Time

	// Text is the reply text for responses and the progress note for pongs.
	Text string
	// Sender is the requesting agent for pings and last-response requests.
	Sender string
	// Message is the recorded reply behind a response or a buffered pong.
	Message *model.Message

	Status         model.Status
	PreviousStatus model.Status
	Error          string

	// Parent and Messages describe a history append.
	Parent   string
	Messages []model.Message

	Provider   string
	HTTPStatus int
}

// Listener handles an event. Listeners run synchronously on the emitting
// goroutine and must not block.
type Listener func(Event)

type registry struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[EventType][]subscription
}

type subscription struct {
	id uint64
	fn Listener
}

// on adds fn and returns a func that removes it again.
func (r *registry) on(t EventType, fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners == nil {
		r.listeners = make(map[EventType][]subscription)
	}
	r.nextID++
	id := r.nextID
	r.listeners[t] = append(r.listeners[t], subscription{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.listeners[t]
		for i, s := range subs {
			if s.id == id {
				r.listeners[t] = slices.Delete(subs, i, i+1)
				return
			}
		}
	}
}

func (r *registry) count(t EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[t])
}

func (r *registry) emit(ev Event) {
	r.mu.RLock()
	subs := append([]subscription(nil), r.listeners[ev.Type]...)
	r.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
