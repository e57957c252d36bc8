// Package auth tracks the authenticated identity: a subscription source for
// identity changes, token verifiers, and the HTTP middleware that binds a
// verified identity to a request.
package auth

import (
	"sync"
)

// Identity is an authenticated user. Only UID is used as the listing owner.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// Listener receives the current identity, or nil once signed out.
type Listener func(id *Identity)

// Source emits identity changes. Subscribe delivers the current state
// immediately and returns a function that removes the listener.
type Source interface {
	Subscribe(l Listener) (unsubscribe func())
}

// Session is a Source owned by whatever shell knows who is signed in: the
// API binds one per draft to the verified request identity, the CLI binds
// one to the configured owner.
type Session struct {
	mu        sync.Mutex
	current   *Identity
	nextID    int
	listeners map[int]Listener
}

// NewSession returns a signed-out session.
func NewSession() *Session {
	return &Session{listeners: make(map[int]Listener)}
}

// NewSignedInSession returns a session already signed in as id.
func NewSignedInSession(id Identity) *Session {
	s := NewSession()
	s.current = &id
	return s
}

// Current returns a copy of the signed-in identity, or nil.
func (s *Session) Current() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneIdentity(s.current)
}

// SignIn sets the identity and notifies listeners. Signing in again as the
// same UID is not a transition and notifies nobody.
func (s *Session) SignIn(id Identity) {
	s.mu.Lock()
	if s.current != nil && s.current.UID == id.UID {
		s.mu.Unlock()
		return
	}
	s.current = &id
	ls := s.snapshot()
	s.mu.Unlock()

	notify(ls, &id)
}

// SignOut clears the identity and notifies listeners.
func (s *Session) SignOut() {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	s.current = nil
	ls := s.snapshot()
	s.mu.Unlock()

	notify(ls, nil)
}

func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	cur := cloneIdentity(s.current)
	s.mu.Unlock()

	l(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Listeners returns the number of active subscriptions.
func (s *Session) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// snapshot must be called with mu held. Listeners run outside the lock so
// they may unsubscribe from inside the callback.
func (s *Session) snapshot() []Listener {
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	return ls
}

func notify(ls []Listener, id *Identity) {
	for _, l := range ls {
		l(cloneIdentity(id))
	}
}

func cloneIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
