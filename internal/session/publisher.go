package session

import (
	"sync"

	"github.com/stemsi/tricol-console/internal/model"
)

// EventKind names what changed the current user.
type EventKind string

const (
	EventCurrent EventKind = "current"
	EventRestore EventKind = "restore"
	EventLogin   EventKind = "login"
	EventRefresh EventKind = "refresh"
	EventLogout  EventKind = "logout"
)

// LoginPath is where a signed-out user is sent.
const LoginPath = "/login"

// Event is one change of the current user. User is nil when nobody is signed in.
type Event struct {
	Kind     EventKind           `json:"kind"`
	User     *model.UserIdentity `json:"user"`
	Redirect string              `json:"redirect,omitempty"`
}

func (e Event) clone() Event {
	if e.User != nil {
		u := e.User.Clone()
		e.User = &u
	}
	return e
}

// Publisher holds the current user in memory and fans changes out to
// subscribers. Every value handed out is a private copy.
type Publisher struct {
	mu      sync.RWMutex
	current *model.UserIdentity
	subs    map[uint64]chan Event
	nextID  uint64
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[uint64]chan Event)}
}

// Current returns a snapshot of the signed-in user, or nil.
func (p *Publisher) Current() *model.UserIdentity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	u := p.current.Clone()
	return &u
}

// Publish replaces the current user and notifies every subscriber.
// A subscriber that is not keeping up loses its oldest pending event.
func (p *Publisher) Publish(ev Event) {
	ev = ev.clone()

	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.User != nil {
		u := ev.User.Clone()
		p.current = &u
	} else {
		p.current = nil
	}

	for _, ch := range p.subs {
		deliver(ch, ev.clone())
	}
}

// Subscribe registers a listener. The channel immediately receives the
// current value as an EventCurrent event. Call the returned function to
// unsubscribe; it closes the channel.
func (p *Publisher) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	first := Event{Kind: EventCurrent, User: p.current}
	if first.User == nil {
		first.Redirect = LoginPath
	}
	deliver(ch, first.clone())
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports how many listeners are registered.
func (p *Publisher) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

func deliver(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
