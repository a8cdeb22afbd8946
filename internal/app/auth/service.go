/*
Package auth implements login and logout, the only writers of the active Session.
*/
package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"eduportal/internal/app/session"
	"eduportal/internal/pkg/auth/token"
	"eduportal/internal/pkg/errs"
	"eduportal/internal/pkg/logx"
)

// Service replaces and clears the Session. Calls are serialized.
type Service struct {
	authenticator Authenticator
	store         session.Store

	mu     sync.Mutex
	logger zerolog.Logger
}

// NewService returns a Service writing to store.
func NewService(authenticator Authenticator, store session.Store) *Service {
	return &Service{
		authenticator: authenticator,
		store:         store,
		logger:        logx.Component("auth"),
	}
}

// Login authenticates against the backend and replaces the Session with the issued token.
// The token must decode; its signature is not checked here.
func (s *Service) Login(ctx context.Context, username, password string, remember bool) (session.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return session.Session{}, errs.NewError(errs.ErrInvalidParams)
	}

	raw, err := s.authenticator.Login(ctx, Credentials{Username: username, Password: password})
	if err != nil {
		return session.Session{}, errs.From(err)
	}

	if _, err := token.Decode(raw); err != nil {
		s.logger.Warn().Err(err).Msg("Backend issued an unreadable token")
		return session.Session{}, errs.Wrap(errs.ErrTokenMalformed, err)
	}

	sess := session.Session{Token: raw, Remember: remember}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(sess); err != nil {
		return session.Session{}, errs.Wrap(errs.ErrUnknown, err)
	}

	s.logger.Info().Str("username", username).Bool("remember", remember).Msg("Session started")
	return sess, nil
}

// Logout clears the Session. Logging out without a Session is not an error.
func (s *Service) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		return errs.Wrap(errs.ErrUnknown, err)
	}

	s.logger.Info().Msg("Session cleared")
	return nil
}
