package tokenstore

import (
	"fmt"
	"iter"
	"maps"

	"github.com/florianilch/directus-client/internal/token"
)

// DefaultSessionKey is the session slot used when none is given.
const DefaultSessionKey = "@directus_tokens"

// Session is a host-managed key/value scope, such as an HTTP session.
// Its lifecycle (creation, expiry, persistence) belongs to the host.
type Session interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// SessionStore keeps the token map in a session slot, so cached tokens live
// exactly as long as the host's session does.
type SessionStore struct {
	*support
}

// Compile-time check to ensure SessionStore implements TokenStore
var _ TokenStore = (*SessionStore)(nil)

// NewSessionStore binds a store to key in session, initializing the slot if
// it is empty. Returns error if the slot already holds something else.
func NewSessionStore(session Session, key string) (*SessionStore, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if key == "" {
		key = DefaultSessionKey
	}

	value, ok := session.Get(key)
	if !ok || value == nil {
		session.Set(key, map[string]*token.Token{})
	} else if _, ok := value.(map[string]*token.Token); !ok {
		return nil, fmt.Errorf("session slot %q holds %T, not a token map", key, value)
	}

	return &SessionStore{
		support: newSupport(&sessionTokens{session: session, key: key}),
	}, nil
}

// Close is a no-op; the session owns the data.
func (s *SessionStore) Close() error {
	return nil
}

// sessionTokens resolves the map from the session on every access and writes
// it back after mutations, for sessions that store values by copy.
type sessionTokens struct {
	session Session
	key     string
}

func (s *sessionTokens) tokens() map[string]*token.Token {
	if value, ok := s.session.Get(s.key); ok {
		if m, ok := value.(map[string]*token.Token); ok && m != nil {
			return m
		}
	}
	// Slot was cleared by the host (e.g. session regenerated)
	m := map[string]*token.Token{}
	s.session.Set(s.key, m)
	return m
}

func (s *sessionTokens) Load(project string) (*token.Token, bool) {
	tok, ok := s.tokens()[project]
	return tok, ok
}

func (s *sessionTokens) Store(project string, tok *token.Token) {
	m := s.tokens()
	m[project] = tok
	s.session.Set(s.key, m)
}

func (s *sessionTokens) Delete(project string) {
	m := s.tokens()
	delete(m, project)
	s.session.Set(s.key, m)
}

func (s *sessionTokens) All() iter.Seq2[string, *token.Token] {
	return maps.All(s.tokens())
}
