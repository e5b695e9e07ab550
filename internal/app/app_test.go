package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/directus-client/internal/directus"
	"github.com/florianilch/directus-client/internal/tokenstore"
)

func newDirectus(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/blog/auth/authenticate" {
			_, _ = io.WriteString(w, `{"data":{"token":"session-token"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, serverURL string) *Config {
	t.Helper()
	cfg := &Config{
		DSN:     "http://admin%40example.com:pw@" + serverURL[len("http://"):] + "/blog",
		Storage: StorageConfig{Type: TokenStorageTypeFile, File: filepath.Join(t.TempDir(), "tokens.json")},
	}
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func TestApp_LoginPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	server := newDirectus(t)
	cfg := testConfig(t, server.URL)

	first, err := New(ctx, cfg)
	require.NoError(t, err)
	tok, err := first.Client().Login(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	cached, err := second.Store().GetToken(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, tok.Value(), cached.Value())
	assert.True(t, tok.ExpiresAt().Equal(cached.ExpiresAt()))
}

func TestApp_LogoutPersists(t *testing.T) {
	ctx := context.Background()
	server := newDirectus(t)
	cfg := testConfig(t, server.URL)

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	_, err = a.Client().Login(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Client().Logout(ctx))
	require.NoError(t, a.Close())

	b, err := New(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	_, err = b.Store().GetToken(ctx, "blog")
	assert.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
}

func TestNew_InvalidDSN(t *testing.T) {
	cfg := &Config{DSN: "ftp://cms.example.com/blog", Storage: StorageConfig{Type: TokenStorageTypeMemory}}
	require.NoError(t, cfg.ApplyDefaults())

	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, directus.ErrInvalidDSN)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	assert.Error(t, err)
}

func TestApp_StartStopsOnCancel(t *testing.T) {
	server := newDirectus(t)
	cfg := testConfig(t, server.URL)
	cfg.Server.Port = 0 // any free port

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}
