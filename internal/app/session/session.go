/*
Package session holds the gateway's single active Session: the raw token plus the remember flag.

A Session is created by login, replaced wholesale (never edited), and destroyed by logout.
Storage is split like a browser profile: remembered sessions go to a persistent key/value backend,
the rest to an ephemeral one that lives as long as the process. Both backends use the same keys
for every read and write path.
*/
package session

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"eduportal/internal/pkg/logx"
)

// Storage keys shared by the login write path and every read path.
const (
	// TokenKey holds the raw session token.
	TokenKey = "eduportal.auth_token"

	// RememberKey holds "true" or "false".
	RememberKey = "eduportal.remember_me"
)

// ErrEmptyToken is returned when a Session without a token is stored.
var ErrEmptyToken = errors.New("session token is empty")

// Session is the active authenticated credential.
type Session struct {
	// Token is the raw compact token as issued by the backend.
	Token string

	// Remember selects the persistent backend.
	Remember bool
}

// Store is the Session Store: get, set and clear of the one active Session.
type Store interface {
	// Get returns the active Session and whether one exists.
	Get() (Session, bool)

	// Set replaces the active Session.
	Set(s Session) error

	// Clear removes the active Session from every backend.
	Clear() error
}

// KV is a string key/value backend.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool)

	// Set stores value under key.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// KVStore implements Store on top of a persistent and an ephemeral KV.
type KVStore struct {
	persistent KV
	ephemeral  KV
	logger     zerolog.Logger
}

var _ Store = (*KVStore)(nil)

// NewStore returns a Store writing remembered sessions to persistent and the rest to ephemeral.
func NewStore(persistent, ephemeral KV) *KVStore {
	return &KVStore{
		persistent: persistent,
		ephemeral:  ephemeral,
		logger:     logx.Component("session"),
	}
}

// NewMemoryStore returns a Store whose backends are both in memory.
func NewMemoryStore() *KVStore {
	return NewStore(NewMemoryKV(), NewMemoryKV())
}

// Get reads the ephemeral backend first, then the persistent one.
func (s *KVStore) Get() (Session, bool) {
	for _, kv := range []KV{s.ephemeral, s.persistent} {
		raw, ok := kv.Get(TokenKey)
		if !ok || raw == "" {
			continue
		}

		remember := false
		if flag, ok := kv.Get(RememberKey); ok {
			parsed, err := strconv.ParseBool(flag)
			if err != nil {
				s.logger.Warn().Str("value", flag).Msg("Ignoring unreadable remember flag")
			}
			remember = parsed
		}

		return Session{Token: raw, Remember: remember}, true
	}

	return Session{}, false
}

// Set clears any previous Session and writes sess to the backend its Remember flag selects.
func (s *KVStore) Set(sess Session) error {
	if sess.Token == "" {
		return ErrEmptyToken
	}

	if err := s.Clear(); err != nil {
		return err
	}

	target := s.ephemeral
	if sess.Remember {
		target = s.persistent
	}

	if err := target.Set(TokenKey, sess.Token); err != nil {
		return fmt.Errorf("store session token: %w", err)
	}

	if err := target.Set(RememberKey, strconv.FormatBool(sess.Remember)); err != nil {
		return fmt.Errorf("store remember flag: %w", err)
	}

	s.logger.Debug().Bool("remember", sess.Remember).Msg("Session stored")
	return nil
}

// Clear deletes both keys from both backends.
func (s *KVStore) Clear() error {
	var errList []error
	for _, kv := range []KV{s.ephemeral, s.persistent} {
		for _, key := range []string{TokenKey, RememberKey} {
			if err := kv.Delete(key); err != nil {
				errList = append(errList, fmt.Errorf("delete %s: %w", key, err))
			}
		}
	}

	return errors.Join(errList...)
}
