// Package client is the consuming side of the authorization core: a session
// state machine, persisted credentials, an HTTP client whose response
// interceptor reacts to lost authentication, a background token refresher and
// a navigation guard that evaluates views with the shared authz rules.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"parss/internal/domain"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusFailed         Status = "failed"
)

// State is an immutable snapshot of the session.
//
// Generation changes whenever the identity behind the session changes (login
// start or logout). Work started under one generation must not be applied to
// another.
type State struct {
	Status     Status
	Principal  *domain.Principal
	Credential domain.Credential
	Err        error
	Generation uint64
}

// Authenticated reports whether the state holds a live principal.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Principal != nil
}

// Action is a session transition request.
type Action interface {
	action()
}

// LoginStart begins a login or registration attempt.
type LoginStart struct{}

// LoginSuccess completes a login attempt.
type LoginSuccess struct {
	Principal  domain.Principal
	Credential domain.Credential
}

// LoginFailure records a failed login attempt.
type LoginFailure struct {
	Err error
}

// Logout ends the session. It is accepted in every state.
type Logout struct{}

// TokenRefreshed installs a rotated credential obtained under Generation.
type TokenRefreshed struct {
	Credential domain.Credential
	Generation uint64
}

// ProfileUpdated replaces the principal's profile without touching the credential.
type ProfileUpdated struct {
	Principal domain.Principal
}

func (LoginStart) action()     {}
func (LoginSuccess) action()   {}
func (LoginFailure) action()   {}
func (Logout) action()         {}
func (TokenRefreshed) action() {}
func (ProfileUpdated) action() {}

// Reduce returns the state that follows s under a. Transitions that do not
// apply to s leave it unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case LoginStart:
		return State{Status: StatusAuthenticating, Generation: s.Generation + 1}

	case LoginSuccess:
		if s.Status != StatusAuthenticating {
			return s
		}
		p := a.Principal
		return State{
			Status:     StatusAuthenticated,
			Principal:  &p,
			Credential: a.Credential,
			Generation: s.Generation,
		}

	case LoginFailure:
		if s.Status != StatusAuthenticating {
			return s
		}
		return State{Status: StatusFailed, Err: a.Err, Generation: s.Generation}

	case Logout:
		return State{Status: StatusAnonymous, Generation: s.Generation + 1}

	case TokenRefreshed:
		if !s.Authenticated() || a.Generation != s.Generation || a.Credential.Empty() {
			return s
		}
		s.Credential = a.Credential
		return s

	case ProfileUpdated:
		if !s.Authenticated() || a.Principal.ID != s.Principal.ID {
			return s
		}
		p := a.Principal
		s.Principal = &p
		return s

	default:
		return s
	}
}

// Session holds the current State and mirrors it into a Store. It is safe for
// concurrent use.
type Session struct {
	mu     sync.Mutex
	state  State
	store  Store
	nextID int
	subs   map[int]func(State)
}

// NewSession creates an anonymous session persisted to store.
func NewSession(store Store) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{
		state: State{Status: StatusAnonymous},
		store: store,
		subs:  make(map[int]func(State)),
	}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Principal returns the live principal, if any.
func (s *Session) Principal() (*domain.Principal, bool) {
	st := s.State()
	if !st.Authenticated() {
		return nil, false
	}
	return st.Principal, true
}

// Dispatch applies a and returns the resulting state. Authenticated states are
// written to the store; logout clears it.
func (s *Session) Dispatch(a Action) State {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	s.state = next
	s.persist(prev, next)
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

func (s *Session) persist(prev, next State) {
	switch {
	case next.Authenticated():
		if prev.Authenticated() && prev.Credential == next.Credential && prev.Principal == next.Principal {
			return
		}
		if err := saveCredentials(s.store, next.Credential, *next.Principal); err != nil {
			slog.Warn("persisting session", "error", err)
		}
	case next.Generation != prev.Generation:
		if err := clearCredentials(s.store); err != nil {
			slog.Warn("clearing stored credentials", "error", err)
		}
	}
}

// Subscribe registers fn to receive every state produced by Dispatch. The
// returned function removes the subscription.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// ErrNoStoredSession is returned by Restore when the store holds no credential.
var ErrNoStoredSession = errors.New("no stored session")

// Restore rehydrates the session from the store without contacting the
// server. The restored access token may already be expired; the first API
// call or refresh settles that.
func (s *Session) Restore(ctx context.Context) error {
	cred, p, err := loadCredentials(ctx, s.store)
	if errors.Is(err, ErrNoStoredSession) {
		if cerr := clearCredentials(s.store); cerr != nil {
			slog.Warn("clearing stored credentials", "error", cerr)
		}
		return err
	}
	if err != nil {
		return err
	}
	s.Dispatch(LoginStart{})
	s.Dispatch(LoginSuccess{Principal: p, Credential: cred})
	return nil
}
