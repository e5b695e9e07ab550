package directus_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/directus-client/internal/directus"
	"github.com/florianilch/directus-client/internal/tokenstore"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
	Body   map[string]any
}

// directusServer fakes the authentication endpoints and records every
// other request.
type directusServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newDirectusServer(t *testing.T) *directusServer {
	t.Helper()
	s := &directusServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/blog/auth/authenticate" {
			_, _ = io.WriteString(w, `{"data":{"token":"session-token"}}`)
			return
		}

		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.Query(),
			Auth:   r.Header.Get("Authorization"),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		s.mu.Lock()
		s.requests = append(s.requests, rec)
		s.mu.Unlock()

		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *directusServer) last(t *testing.T) recordedRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

func newServerClient(t *testing.T, server *directusServer) *directus.Client {
	t.Helper()
	settings := &directus.Settings{
		URI:         server.URL,
		Project:     "blog",
		Credentials: directus.Credentials{Email: "admin@example.com", Password: "pw"},
	}
	client, err := directus.New(directus.NewHTTPTransport(), settings, tokenstore.NewMemoryStore())
	require.NoError(t, err)
	return client
}

func TestClient_Endpoints(t *testing.T) {
	params := url.Values{"fields": {"*"}}

	tests := []struct {
		name   string
		call   func(ctx context.Context, c *directus.Client) (*directus.Response, error)
		method string
		path   string
		body   map[string]any
	}{
		{
			name:   "items",
			call:   func(ctx context.Context, c *directus.Client) (*directus.Response, error) { return c.Items(ctx, "posts", params) },
			method: http.MethodGet,
			path:   "/blog/items/posts",
		},
		{
			name:   "item",
			call:   func(ctx context.Context, c *directus.Client) (*directus.Response, error) { return c.Item(ctx, "posts", 7, params) },
			method: http.MethodGet,
			path:   "/blog/items/posts/7",
		},
		{
			name: "create item",
			call: func(ctx context.Context, c *directus.Client) (*directus.Response, error) {
				return c.CreateItem(ctx, "posts", map[string]any{"title": "hello"}, nil)
			},
			method: http.MethodPost,
			path:   "/blog/items/posts",
			body:   map[string]any{"title": "hello"},
		},
		{
			name: "update item",
			call: func(ctx context.Context, c *directus.Client) (*directus.Response, error) {
				return c.UpdateItem(ctx, "posts", 7, map[string]any{"title": "bye"}, nil)
			},
			method: http.MethodPatch,
			path:   "/blog/items/posts/7",
			body:   map[string]any{"title": "bye"},
		},
		{
			name:   "delete item",
			call:   func(ctx context.Context, c *directus.Client) (*directus.Response, error) { return c.DeleteItem(ctx, "posts", 7) },
			method: http.MethodDelete,
			path:   "/blog/items/posts/7",
		},
		{
			name: "item revisions",
			call: func(ctx context.Context, c *directus.Client) (*directus.Response, error) {
				return c.ItemRevisions(ctx, "posts", 7, params)
			},
			method: http.MethodGet,
			path:   "/blog/items/posts/7/revisions",
		},
		{
			name: "item revision",
			call: func(ctx context.Context, c *directus.Client) (*directus.Response, error) {
				return c.ItemRevision(ctx, "posts", 7, 2, params)
			},
			method: http.MethodGet,
			path:   "/blog/items/posts/7/revisions/2",
		},
		{
			name: "revert item",
			call: func(ctx context.Context, c *directus.Client) (*directus.Response, error) {
				return c.RevertItem(ctx, "posts", 7, 3, nil)
			},
			method: http.MethodPatch,
			path:   "/blog/items/posts/7/revert/3",
			body:   map[string]any{},
		},
		{
			name:   "files",
			call:   func(ctx context.Context, c *directus.Client) (*directus.Response, error) { return c.Files(ctx, params) },
			method: http.MethodGet,
			path:   "/blog/files",
		},
		{
			name:   "delete file",
			call:   func(ctx context.Context, c *directus.Client) (*directus.Response, error) { return c.DeleteFile(ctx, 4) },
			method: http.MethodDelete,
			path:   "/blog/files/4",
		},
		{
			name: "file revision",
			call: func(ctx context.Context, c *directus.Client) (*directus.Response, error) {
				return c.FileRevision(ctx, 4, 1, nil)
			},
			method: http.MethodGet,
			path:   "/blog/files/4/revisions/1",
		},
		{
			name:   "activity",
			call:   func(ctx context.Context, c *directus.Client) (*directus.Response, error) { return c.Activity(ctx, 9, nil) },
			method: http.MethodGet,
			path:   "/blog/activity/9",
		},
		{
			name: "collection",
			call: func(ctx context.Context, c *directus.Client) (*directus.Response, error) {
				return c.Collection(ctx, "blog posts", nil)
			},
			method: http.MethodGet,
			path:   "/blog/collections/blog%20posts",
		},
		{
			name:   "projects",
			call:   func(ctx context.Context, c *directus.Client) (*directus.Response, error) { return c.Projects(ctx) },
			method: http.MethodGet,
			path:   "/server/projects",
		},
		{
			name:   "current user",
			call:   func(ctx context.Context, c *directus.Client) (*directus.Response, error) { return c.User(ctx, 0, nil) },
			method: http.MethodGet,
			path:   "/blog/users/me",
		},
		{
			name:   "user",
			call:   func(ctx context.Context, c *directus.Client) (*directus.Response, error) { return c.User(ctx, 12, nil) },
			method: http.MethodGet,
			path:   "/blog/users/12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newDirectusServer(t)
			client := newServerClient(t, server)

			resp, err := tt.call(context.Background(), client)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.Status)

			got := server.last(t)
			assert.Equal(t, tt.method, got.Method)
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, "Bearer session-token", got.Auth)
			if tt.body != nil {
				assert.Equal(t, tt.body, got.Body)
			}
		})
	}
}

func TestClient_EndpointsPassQuery(t *testing.T) {
	server := newDirectusServer(t)
	client := newServerClient(t, server)

	_, err := client.Items(context.Background(), "posts", url.Values{"limit": {"5"}, "sort": {"-id"}})
	require.NoError(t, err)

	got := server.last(t)
	assert.Equal(t, "5", got.Query.Get("limit"))
	assert.Equal(t, "-id", got.Query.Get("sort"))
}

func TestClient_CreateFileFromDisk(t *testing.T) {
	server := newDirectusServer(t)
	client := newServerClient(t, server)

	file := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(file, []byte("image-bytes"), 0o600))

	fields := map[string]any{"title": "Photo"}
	_, err := client.CreateFile(context.Background(), file, fields)
	require.NoError(t, err)

	got := server.last(t)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/blog/files", got.Path)
	assert.Equal(t, map[string]any{
		"title":             "Photo",
		"data":              base64.StdEncoding.EncodeToString([]byte("image-bytes")),
		"filename_disk":     "photo.png",
		"filename_download": "photo.png",
	}, got.Body)

	assert.Equal(t, map[string]any{"title": "Photo"}, fields, "caller's fields are not modified")
}

func TestClient_CreateFileFromURL(t *testing.T) {
	server := newDirectusServer(t)
	client := newServerClient(t, server)

	_, err := client.CreateFile(context.Background(), "https://images.example.com/a/b/cat.jpg", map[string]any{
		"filename_download": "kitten.jpg",
	})
	require.NoError(t, err)

	got := server.last(t)
	assert.Equal(t, map[string]any{
		"data":              "https://images.example.com/a/b/cat.jpg",
		"filename_disk":     "cat.jpg",
		"filename_download": "kitten.jpg",
	}, got.Body)
}

func TestClient_UpdateFile(t *testing.T) {
	server := newDirectusServer(t)
	client := newServerClient(t, server)

	_, err := client.UpdateFile(context.Background(), 4, "", map[string]any{"title": "Renamed"})
	require.NoError(t, err)
	got := server.last(t)
	assert.Equal(t, http.MethodPatch, got.Method)
	assert.Equal(t, "/blog/files/4", got.Path)
	assert.Equal(t, map[string]any{"title": "Renamed"}, got.Body)

	_, err = client.UpdateFile(context.Background(), 4, "https://images.example.com/dog.jpg", nil)
	require.NoError(t, err)
	got = server.last(t)
	assert.Equal(t, map[string]any{"data": "https://images.example.com/dog.jpg"}, got.Body)
}

func TestClient_CreateFileUnresolvable(t *testing.T) {
	server := newDirectusServer(t)
	client := newServerClient(t, server)

	for _, file := range []string{
		filepath.Join(t.TempDir(), "missing.png"),
		t.TempDir(),
		"ftp://files.example.com/a.png",
		"https://images.example.com",
	} {
		_, err := client.CreateFile(context.Background(), file, nil)
		var clientErr *directus.ClientError
		require.ErrorAs(t, err, &clientErr, file)
		assert.Equal(t, "resolve file", clientErr.Op)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Empty(t, server.requests, "nothing is sent for an unresolvable file")
}
