package tokenstore

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/florianilch/directus-client/internal/token"
)

// support implements the caching policy shared by every backend on top of a
// Tokens map. Backends embed it and add their own persistence.
type support struct {
	mu     sync.Mutex
	tokens Tokens
}

func newSupport(tokens Tokens) *support {
	return &support{tokens: tokens}
}

// GetToken returns the cached token for project, evicting it if expired.
func (s *support) GetToken(ctx context.Context, project string) (*token.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens.Load(project)
	if !ok {
		return nil, ErrTokenNotFound
	}

	if tok.Expired() {
		s.tokens.Delete(project)
		return nil, ErrTokenNotFound
	}

	return tok, nil
}

// PutToken caches tok for project, replacing any previous entry.
func (s *support) PutToken(ctx context.Context, project string, tok *token.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tok == nil {
		return fmt.Errorf("tokenstore: nil token for project %q", project)
	}
	if tok.Expired() {
		return ErrExpiredToken
	}

	s.mu.Lock()
	s.tokens.Store(project, tok)
	s.mu.Unlock()

	return nil
}

// RemoveToken expires the cached token in place, so other holders of the same
// instance observe it, then drops the entry.
func (s *support) RemoveToken(ctx context.Context, project string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok := s.tokens.Load(project); ok {
		tok.Expire()
		s.tokens.Delete(project)
	}

	return nil
}

// Projects lists the projects currently held in the map, expired or not, sorted.
func (s *support) Projects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var projects []string
	for project := range s.tokens.All() {
		projects = append(projects, project)
	}
	slices.Sort(projects)
	return projects
}

// snapshot copies the map for persistence.
func (s *support) snapshot() map[string]*token.Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Collect(s.tokens.All())
}

// tokenMap is the plain in-process Tokens implementation.
type tokenMap map[string]*token.Token

var _ Tokens = tokenMap(nil)

func (m tokenMap) Load(project string) (*token.Token, bool) {
	tok, ok := m[project]
	return tok, ok
}

func (m tokenMap) Store(project string, tok *token.Token) {
	m[project] = tok
}

func (m tokenMap) Delete(project string) {
	delete(m, project)
}

func (m tokenMap) All() iter.Seq2[string, *token.Token] {
	return maps.All(m)
}
