// Package session tracks whether the user is logged in. The persisted store
// is the source of truth; a Session only caches what it last read or wrote.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"eventreg/internal/apiclient"
	"eventreg/internal/model"
	"eventreg/internal/repo"

	"github.com/rs/zerolog"
)

const (
	KeyAuthenticated = "isAuthenticated"
	KeyUser          = "user"

	loginFailed = "Login failed. Please try again."
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (model.User, error)
	Logout(ctx context.Context) error
}

// LoginError carries the message to show the user.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string { return e.Message }

func (e *LoginError) Unwrap() error { return e.Err }

type Session struct {
	store repo.Store
	auth  Authenticator
	log   *zerolog.Logger

	mu            sync.RWMutex
	authenticated bool
	user          model.User
}

// Load builds a session from what the store holds. A missing or malformed
// record means logged out; only store read failures are returned.
func Load(ctx context.Context, store repo.Store, auth Authenticator, log *zerolog.Logger) (*Session, error) {
	s := &Session{store: store, auth: auth, log: log}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh re-reads the persisted state.
func (s *Session) Refresh(ctx context.Context) error {
	authenticated, user, err := s.read(ctx)
	s.mu.Lock()
	s.authenticated, s.user = authenticated, user
	s.mu.Unlock()
	return err
}

func (s *Session) read(ctx context.Context) (bool, model.User, error) {
	flag, err := s.store.Get(ctx, KeyAuthenticated)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("read auth flag: %w", err)
	}
	if flag != "true" {
		return false, nil, nil
	}
	raw, err := s.store.Get(ctx, KeyUser)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("read user: %w", err)
	}
	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user == nil {
		s.log.Warn().Err(err).Msg("stored user record is malformed, treating session as logged out")
		return false, nil, nil
	}
	return true, user, nil
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// User returns the cached user record, nil when logged out.
func (s *Session) User() model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Login authenticates against the API and persists the result. On failure
// the session keeps its current state and a *LoginError is returned.
func (s *Session) Login(ctx context.Context, email, password string) (model.User, error) {
	user, err := s.auth.Login(ctx, email, password)
	if err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("login failed")
		return nil, &LoginError{Message: apiclient.Message(err, loginFailed), Err: err}
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return nil, &LoginError{Message: loginFailed, Err: fmt.Errorf("encode user: %w", err)}
	}
	if err := s.store.Set(ctx, KeyUser, string(raw)); err != nil {
		return nil, &LoginError{Message: loginFailed, Err: err}
	}
	if err := s.store.Set(ctx, KeyAuthenticated, "true"); err != nil {
		_ = s.store.Remove(ctx, KeyUser)
		return nil, &LoginError{Message: loginFailed, Err: err}
	}

	s.mu.Lock()
	s.authenticated, s.user = true, user
	s.mu.Unlock()

	s.log.Info().Str("email", user.Email()).Msg("user logged in")
	return user, nil
}

// Logout always ends in the logged out state. The remote call is best
// effort: its error is logged and discarded so a dead API cannot keep a
// user logged in locally. Only a failure to clear the store is returned.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.auth.Logout(ctx); err != nil {
		s.log.Debug().Err(err).Msg("remote logout failed, clearing local session anyway")
	}

	errFlag := s.store.Remove(ctx, KeyAuthenticated)
	errUser := s.store.Remove(ctx, KeyUser)

	s.mu.Lock()
	s.authenticated, s.user = false, nil
	s.mu.Unlock()

	if err := errors.Join(errFlag, errUser); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.log.Info().Msg("user logged out")
	return nil
}
