package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/florianilch/directus-client/internal/token"
)

const createTokensTable = `
	CREATE TABLE IF NOT EXISTS directus_tokens (
		project    TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		threshold  BIGINT NOT NULL DEFAULT 0
	)
`

// PostgresStore shares the token cache between processes through a table.
// Rows are loaded at construction; changes are written back in one
// transaction on Flush or Close. Only projects this store touched are
// written, so other processes' projects survive.
type PostgresStore struct {
	*support
	db     *sql.DB
	tokens *trackedTokens

	closeOnce sync.Once
	closeErr  error
}

// Compile-time check to ensure PostgresStore implements TokenStore
var _ TokenStore = (*PostgresStore)(nil)

// NewPostgresStore creates the tokens table if needed and loads its rows.
// The caller owns db; Close does not close it.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	if _, err := db.ExecContext(ctx, createTokensTable); err != nil {
		return nil, fmt.Errorf("%w: create directus_tokens table: %w", ErrStorage, err)
	}

	rows, err := db.QueryContext(ctx, `SELECT project, value, expires_at, threshold FROM directus_tokens`)
	if err != nil {
		return nil, fmt.Errorf("%w: load tokens: %w", ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	tokens := newTrackedTokens()
	for rows.Next() {
		var (
			project   string
			value     string
			expiresAt time.Time
			threshold int64
		)
		if err := rows.Scan(&project, &value, &expiresAt, &threshold); err != nil {
			return nil, fmt.Errorf("%w: scan token row: %w", ErrStorage, err)
		}
		tokens.tokens[project] = token.Restore(value, expiresAt, token.WithThreshold(time.Duration(threshold)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load tokens: %w", ErrStorage, err)
	}

	return &PostgresStore{
		support: newSupport(tokens),
		db:      db,
		tokens:  tokens,
	}, nil
}

// Flush upserts tokens stored through this store and deletes the rows of
// projects it removed or evicted.
func (p *PostgresStore) Flush(ctx context.Context) error {
	p.mu.Lock()
	upserts := make(map[string]*token.Token, len(p.tokens.dirty))
	deletes := make([]string, 0, len(p.tokens.deleted))
	for project := range p.tokens.dirty {
		upserts[project] = p.tokens.tokens[project]
	}
	for project := range p.tokens.deleted {
		deletes = append(deletes, project)
	}
	p.mu.Unlock()

	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStorage, err)
	}

	for _, project := range deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM directus_tokens WHERE project = $1`, project); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: delete token for %s: %w", ErrStorage, project, err)
		}
	}

	for project, tok := range upserts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO directus_tokens (project, value, expires_at, threshold)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (project) DO UPDATE
			SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, threshold = EXCLUDED.threshold
		`, project, tok.Value(), tok.ExpiresAt(), int64(tok.Threshold())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: upsert token for %s: %w", ErrStorage, project, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorage, err)
	}

	p.mu.Lock()
	p.tokens.reset(upserts, deletes)
	p.mu.Unlock()

	return nil
}

// Close writes pending changes once. Later calls return the first result.
func (p *PostgresStore) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.Flush(context.Background())
	})
	return p.closeErr
}

// trackedTokens records which projects changed since the last flush.
type trackedTokens struct {
	tokens  tokenMap
	dirty   map[string]struct{}
	deleted map[string]struct{}
}

func newTrackedTokens() *trackedTokens {
	return &trackedTokens{
		tokens:  tokenMap{},
		dirty:   map[string]struct{}{},
		deleted: map[string]struct{}{},
	}
}

func (t *trackedTokens) Load(project string) (*token.Token, bool) {
	return t.tokens.Load(project)
}

func (t *trackedTokens) Store(project string, tok *token.Token) {
	t.tokens.Store(project, tok)
	t.dirty[project] = struct{}{}
	delete(t.deleted, project)
}

func (t *trackedTokens) Delete(project string) {
	t.tokens.Delete(project)
	t.deleted[project] = struct{}{}
	delete(t.dirty, project)
}

func (t *trackedTokens) All() iter.Seq2[string, *token.Token] {
	return t.tokens.All()
}

// reset clears change marks for entries that were flushed and not touched since.
func (t *trackedTokens) reset(upserts map[string]*token.Token, deletes []string) {
	for project, tok := range upserts {
		if current, ok := t.tokens[project]; ok && current == tok {
			delete(t.dirty, project)
		}
	}
	for _, project := range deletes {
		if _, ok := t.tokens[project]; !ok {
			delete(t.deleted, project)
		}
	}
}
