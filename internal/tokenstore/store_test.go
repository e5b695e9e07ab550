package tokenstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/florianilch/directus-client/internal/token"
	"github.com/florianilch/directus-client/internal/tokenstore"
)

// projectLister is implemented by every backend through the shared policy.
type projectLister interface {
	Projects() []string
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mapSession map[string]any

func (s mapSession) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

func (s mapSession) Set(key string, value any) {
	s[key] = value
}

// backends returns a constructor per TokenStore implementation that can run
// without external services.
func backends(t *testing.T) map[string]func(t *testing.T) tokenstore.TokenStore {
	t.Helper()
	return map[string]func(t *testing.T) tokenstore.TokenStore{
		"memory": func(t *testing.T) tokenstore.TokenStore {
			return tokenstore.NewMemoryStore()
		},
		"session": func(t *testing.T) tokenstore.TokenStore {
			store, err := tokenstore.NewSessionStore(mapSession{}, "")
			require.NoError(t, err)
			return store
		},
		"file": func(t *testing.T) tokenstore.TokenStore {
			store, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
			require.NoError(t, err)
			return store
		},
		"keyring": func(t *testing.T) tokenstore.TokenStore {
			keyring.MockInit()
			store, err := tokenstore.NewKeyringStore("directus-client-test", t.Name())
			require.NoError(t, err)
			return store
		},
	}
}

func TestTokenStore_Policy(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("missing project", func(t *testing.T) {
				store := newStore(t)
				tok, err := store.GetToken(ctx, "p")
				require.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
				require.Nil(t, tok)
			})

			t.Run("put then get returns same instance", func(t *testing.T) {
				store := newStore(t)
				tok := token.New("abc")
				require.NoError(t, store.PutToken(ctx, "p", tok))

				got, err := store.GetToken(ctx, "p")
				require.NoError(t, err)
				require.Same(t, tok, got)
			})

			t.Run("put overwrites", func(t *testing.T) {
				store := newStore(t)
				first := token.New("first")
				second := token.New("second")
				require.NoError(t, store.PutToken(ctx, "p", first))
				require.NoError(t, store.PutToken(ctx, "p", second))

				got, err := store.GetToken(ctx, "p")
				require.NoError(t, err)
				require.Same(t, second, got)
				require.True(t, first.Valid(), "overwritten token is not expired")
			})

			t.Run("put expired token fails without altering map", func(t *testing.T) {
				store := newStore(t)
				existing := token.New("existing")
				require.NoError(t, store.PutToken(ctx, "p", existing))

				expired := token.New("expired")
				expired.Expire()
				err := store.PutToken(ctx, "p", expired)
				require.ErrorIs(t, err, tokenstore.ErrExpiredToken)

				got, err := store.GetToken(ctx, "p")
				require.NoError(t, err)
				require.Same(t, existing, got)

				err = store.PutToken(ctx, "q", expired)
				require.ErrorIs(t, err, tokenstore.ErrExpiredToken)
				require.Equal(t, []string{"p"}, store.(projectLister).Projects())
			})

			t.Run("get evicts expired token", func(t *testing.T) {
				store := newStore(t)
				clock := newTestClock()
				tok := token.New("abc", token.WithClock(clock.Now))
				require.NoError(t, store.PutToken(ctx, "p", tok))

				clock.Advance(token.DefaultTTL)

				_, err := store.GetToken(ctx, "p")
				require.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
				_, err = store.GetToken(ctx, "p")
				require.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
				require.Empty(t, store.(projectLister).Projects())
			})

			t.Run("remove force-expires instance", func(t *testing.T) {
				store := newStore(t)
				tok := token.New("abc")
				require.NoError(t, store.PutToken(ctx, "p", tok))

				require.NoError(t, store.RemoveToken(ctx, "p"))
				require.True(t, tok.Expired())

				_, err := store.GetToken(ctx, "p")
				require.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
				require.Empty(t, store.(projectLister).Projects())
			})

			t.Run("remove missing is a no-op", func(t *testing.T) {
				store := newStore(t)
				other := token.New("other")
				require.NoError(t, store.PutToken(ctx, "q", other))

				require.NoError(t, store.RemoveToken(ctx, "p"))
				require.True(t, other.Valid())
			})

			t.Run("projects are independent", func(t *testing.T) {
				store := newStore(t)
				a := token.New("a")
				b := token.New("b")
				require.NoError(t, store.PutToken(ctx, "a", a))
				require.NoError(t, store.PutToken(ctx, "b", b))
				require.NoError(t, store.RemoveToken(ctx, "a"))

				got, err := store.GetToken(ctx, "b")
				require.NoError(t, err)
				require.Same(t, b, got)
			})

			t.Run("cancelled context", func(t *testing.T) {
				store := newStore(t)
				cancelled, cancel := context.WithCancel(ctx)
				cancel()

				_, err := store.GetToken(cancelled, "p")
				require.ErrorIs(t, err, context.Canceled)
				require.ErrorIs(t, store.PutToken(cancelled, "p", token.New("abc")), context.Canceled)
				require.ErrorIs(t, store.RemoveToken(cancelled, "p"), context.Canceled)
			})

			t.Run("concurrent access", func(t *testing.T) {
				store := newStore(t)
				var wg sync.WaitGroup
				for i := range 16 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						project := []string{"a", "b"}[i%2]
						assert.NoError(t, store.PutToken(ctx, project, token.New("v")))
						_, _ = store.GetToken(ctx, project)
						if i%4 == 0 {
							assert.NoError(t, store.RemoveToken(ctx, project))
						}
					}()
				}
				wg.Wait()
			})
		})
	}
}
