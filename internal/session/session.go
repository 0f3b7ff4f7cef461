package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")
var ErrTransportBound = errors.New("transport already bound to another session")

// Verifier turns an auth token into the account it was issued for.
type Verifier interface {
	Verify(token string) (accountID string, err error)
}

// Session is the durable player handle. It outlives transport connections
// and matches; TransportID is empty while the player is disconnected.
type Session struct {
	ID          string
	AccountID   string
	TransportID string
	MatchID     string
	Bot         bool
}

func (s *Session) Connected() bool { return s.Bot || s.TransportID != "" }

func (s *Session) InMatch() bool { return s.MatchID != "" }

// Binding is the result of a successful Bind.
type Binding struct {
	Session *Session
	Created bool
	// Stale is the transport the session was bound to before, if any. Its
	// mapping has already been dropped.
	Stale string
}

// Registry owns the transport <-> session mapping. It is not safe for
// concurrent use; the hub goroutine is its only caller.
type Registry struct {
	verifier    Verifier
	sessions    map[string]*Session
	byTransport map[string]string
}

func NewRegistry(v Verifier) *Registry {
	return &Registry{
		verifier:    v,
		sessions:    make(map[string]*Session),
		byTransport: make(map[string]string),
	}
}

// Bind attaches transportID to sessionID after verifying token. An empty
// sessionID asks for a fresh session. A failed verification leaves the
// registry untouched.
func (r *Registry) Bind(transportID, sessionID, token string) (Binding, error) {
	accountID, err := r.verifier.Verify(token)
	if err != nil || accountID == "" {
		return Binding{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	s, exists := r.sessions[sessionID]
	if exists && (s.Bot || s.AccountID != accountID) {
		return Binding{}, fmt.Errorf("%w: session belongs to another account", ErrUnauthorized)
	}
	if bound, ok := r.byTransport[transportID]; ok && bound != sessionID {
		return Binding{}, ErrTransportBound
	}

	b := Binding{}
	if !exists {
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		s = &Session{ID: sessionID, AccountID: accountID}
		r.sessions[sessionID] = s
		b.Created = true
	}

	// Last writer wins: a reload or second tab takes the session over.
	if s.TransportID != "" && s.TransportID != transportID {
		delete(r.byTransport, s.TransportID)
		b.Stale = s.TransportID
	}
	s.TransportID = transportID
	r.byTransport[transportID] = s.ID
	b.Session = s
	return b, nil
}

func (r *Registry) Resolve(transportID string) (*Session, bool) {
	id, ok := r.byTransport[transportID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Unbind drops the mapping for transportID and returns the session that was
// bound to it. The session itself is kept.
func (r *Registry) Unbind(transportID string) (*Session, bool) {
	s, ok := r.Resolve(transportID)
	delete(r.byTransport, transportID)
	if !ok {
		return nil, false
	}
	if s.TransportID == transportID {
		s.TransportID = ""
	}
	return s, true
}

func (r *Registry) Get(sessionID string) (*Session, bool) {
	s, ok := r.sessions[sessionID]
	return s, ok
}

// AddBot registers a session with no transport for a bot seat.
func (r *Registry) AddBot(accountID string) *Session {
	s := &Session{ID: "bot-" + uuid.NewString(), AccountID: accountID, Bot: true}
	r.sessions[s.ID] = s
	return s
}

// Remove forgets a session entirely. Only bot sessions are removed; player
// sessions are durable.
func (r *Registry) Remove(sessionID string) {
	s, ok := r.sessions[sessionID]
	if !ok || !s.Bot {
		return
	}
	delete(r.sessions, sessionID)
}

// Bound reports how many transports are currently bound.
func (r *Registry) Bound() int { return len(r.byTransport) }
