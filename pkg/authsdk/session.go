package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrLoginSuperseded is returned by Login when Logout ran while the login
// request was in flight. The token from that response is discarded.
var ErrLoginSuperseded = errors.New("authsdk: login superseded by logout")

// State is the authentication state published by a Session.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is a client-side session cache. It owns the current token, keeps
// it in a TokenStore and publishes the authentication state to subscribers.
type Session struct {
	client *SDKClient
	store  TokenStore

	mu         sync.Mutex
	token      string
	state      State
	generation uint64 // bumped by Logout
	subs       map[<-chan State]chan State
}

// NewSession creates a session over store. A stored token makes the session
// start authenticated; its expiry is not checked.
func NewSession(client *SDKClient, store TokenStore) (*Session, error) {
	token, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	s := &Session{
		client: client,
		store:  store,
		token:  token,
		subs:   make(map[<-chan State]chan State),
	}
	if token != "" {
		s.state = StateAuthenticated
	}
	return s, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAuthenticated reports whether the session holds a token.
func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

// Token returns the current token, or "" when anonymous.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Login authenticates against the service and stores the token. On failure
// the session state is left as it was.
func (s *Session) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	resp, err := s.client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if resp.Token == "" {
		return errors.New("authsdk: login response carried no token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return ErrLoginSuperseded
	}
	if err := s.store.Save(resp.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	s.token = resp.Token
	s.setStateLocked(StateAuthenticated)
	return nil
}

// Logout clears the token and moves the session to StateAnonymous. Any login
// still in flight is superseded.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.token = ""
	s.setStateLocked(StateAnonymous)

	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// Dashboard fetches the dashboard data with the session token. A 401 ends
// the session.
func (s *Session) Dashboard(ctx context.Context) (*DashboardResponse, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrNoToken
	}

	out, err := s.client.Dashboard(ctx, token)
	if err != nil {
		s.handleAuthError(token, err)
		return nil, err
	}
	return out, nil
}

// handleAuthError drops the session when the server rejected token, unless
// the token has been replaced in the meantime.
func (s *Session) handleAuthError(token string, err error) {
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != token {
		return
	}

	s.token = ""
	s.setStateLocked(StateAnonymous)
	// The in-memory state is authoritative; a stale file only means the
	// next process starts authenticated and gets another 401.
	_ = s.store.Clear()
}

// Subscribe returns a channel that receives the current state immediately and
// then every change. The channel holds only the latest state, so a slow
// reader skips intermediate values rather than blocking the session.
func (s *Session) Subscribe() <-chan State {
	ch := make(chan State, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	ch <- s.state
	s.subs[ch] = ch
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (s *Session) Unsubscribe(ch <-chan State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(w)
	}
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st

	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			// Replace the unread value with the latest one.
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}
