package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/directus-client/internal/directus"
	"github.com/florianilch/directus-client/internal/observability/middleware"
)

// Proxy is a local reverse proxy that forwards requests to a Directus
// server with a bearer token attached.
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
	addr   net.Addr
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// New creates a proxy forwarding every request to baseURL. Tokens come from
// ts; a failure to obtain one is answered with a JSON error and the request
// is never forwarded.
func New(ts oauth2.TokenSource, baseURL string) (*Proxy, error) {
	if ts == nil {
		return nil, errors.New("missing token source")
	}
	upstream, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL: %q", baseURL)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		Transport:    &oauth2.Transport{Source: ts},
		ErrorHandler: handleError,
	}

	logger := slog.Default()

	mux := http.NewServeMux()
	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		middleware.Logging(logger),
		Recovery,
	))

	return &Proxy{mux: mux}, nil
}

// handleError maps token and transport failures onto JSON error responses.
// API errors from login keep their status; anything else is a bad gateway.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var respErr *directus.ResponseError
	if errors.As(err, &respErr) {
		slog.WarnContext(ctx, "directus rejected proxy login", "status", respErr.Status, "code", respErr.Code)
		writeJSONError(ctx, w, respErr.Code, respErr.Message, respErr.Status)
		return
	}

	if errors.Is(err, context.Canceled) {
		// Client went away; nobody is left to answer
		return
	}

	slog.ErrorContext(ctx, "proxy request failed", "error", err)
	writeJSONError(ctx, w, 0, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	p.addr = listener.Addr()

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // file uploads and exports can be large
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Addr returns the listening address, or nil before Start.
func (p *Proxy) Addr() net.Addr {
	return p.addr
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
