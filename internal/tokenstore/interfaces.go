package tokenstore

import (
	"context"
	"errors"
	"iter"

	"github.com/florianilch/directus-client/internal/token"
)

var (
	// ErrTokenNotFound is returned when no usable token is cached for a project.
	ErrTokenNotFound = errors.New("tokenstore: no token found")

	// ErrExpiredToken is returned when storing a token that has already expired.
	ErrExpiredToken = errors.New("tokenstore: expired tokens cannot be stored")

	// ErrStorage wraps failures of the underlying persistence medium.
	ErrStorage = errors.New("tokenstore: storage failure")
)

// TokenStore caches at most one token per project.
type TokenStore interface {
	// GetToken returns the cached token for project. Returns ErrTokenNotFound if
	// nothing is cached or the cached token has expired (which also evicts it).
	GetToken(ctx context.Context, project string) (*token.Token, error)

	// PutToken replaces the cached token for project. Returns ErrExpiredToken
	// without touching the cache if tok has already expired.
	PutToken(ctx context.Context, project string, tok *token.Token) error

	// RemoveToken force-expires and drops the cached token for project, if any.
	RemoveToken(ctx context.Context, project string) error

	// Close persists pending changes (for durable backends) and releases resources.
	Close() error
}

// Tokens is the project → token map a store's policy operates on.
// Implementations need not be safe for concurrent use; the policy serializes access.
type Tokens interface {
	Load(project string) (*token.Token, bool)
	Store(project string, tok *token.Token)
	Delete(project string)
	All() iter.Seq2[string, *token.Token]
}
