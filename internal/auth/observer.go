package auth

import (
	"sync"
	"time"
)

// EventKind names a session state change.
type EventKind string

const (
	SignedIn        EventKind = "signed-in"
	SignedOut       EventKind = "signed-out"
	ProfileUpdated  EventKind = "profile-updated"
	EmailUpdated    EventKind = "email-updated"
	PasswordUpdated EventKind = "password-updated"
)

type SessionEvent struct {
	Kind   EventKind
	UserID string
	// Token is the session that caused the change.
	Token string
	At    time.Time
}

// Observer lets components react to session changes.
type Observer interface {
	// OnChange registers fn and returns a func that removes it.
	OnChange(fn func(SessionEvent)) (unsubscribe func())
}

// Hub fans session events out to subscribers, synchronously and in
// subscription order.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func(SessionEvent)
}

var _ Observer = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) OnChange(fn func(SessionEvent)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscription{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every current subscriber. Subscribers may
// unsubscribe from inside their handler.
func (h *Hub) Publish(ev SessionEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.Lock()
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Len reports the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
