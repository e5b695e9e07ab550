package directus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/directus-client/internal/token"
	"github.com/florianilch/directus-client/internal/tokenstore"
)

const tracerName = "github.com/florianilch/directus-client/internal/directus"

// Option configures a Client.
type Option func(*Client)

// WithTokenOptions sets the options applied to every token the client issues,
// e.g. a non-default TTL or refresh threshold.
func WithTokenOptions(opts ...token.Option) Option {
	return func(c *Client) {
		c.tokenOpts = append(c.tokenOpts, opts...)
	}
}

// WithTracerProvider sets the tracer provider for login spans.
// If not provided, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// Client issues authenticated Directus API calls for a single project.
// The token store is borrowed, not owned: closing it is the caller's job.
type Client struct {
	transport Transport
	settings  *Settings
	tokens    tokenstore.TokenStore
	tokenOpts []token.Option
	tracer    trace.Tracer

	logins singleflight.Group
}

// New creates a Client.
func New(transport Transport, settings *Settings, tokens tokenstore.TokenStore, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("missing transport")
	}
	if settings == nil {
		return nil, fmt.Errorf("missing settings")
	}
	if tokens == nil {
		return nil, fmt.Errorf("missing token store")
	}

	c := &Client{
		transport: transport,
		settings:  settings,
		tokens:    tokens,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Settings returns the connection settings.
func (c *Client) Settings() *Settings {
	return c.settings
}

// uri builds a project-scoped endpoint URL.
func (c *Client) uri(endpoint string) string {
	return c.settings.URI + "/" + c.settings.Project + endpoint
}

// Login returns a usable token for the project, authenticating or refreshing
// as needed and caching the result. A fresh cached token is returned without
// any network call.
func (c *Client) Login(ctx context.Context) (*token.Token, error) {
	project := c.settings.Project

	// Hot path: no coordination needed for a fresh cached token
	cached, err := c.tokens.GetToken(ctx, project)
	if err == nil && !cached.Expiring() {
		return cached, nil
	}
	if err != nil && !errors.Is(err, tokenstore.ErrTokenNotFound) {
		return nil, fmt.Errorf("reading cached token: %w", err)
	}

	// Concurrent callers share one authenticate/refresh round-trip. The shared
	// call outlives any single caller; each caller only waits on its own ctx.
	flight := c.logins.DoChan(project, func() (any, error) {
		return c.login(context.WithoutCancel(ctx), project)
	})
	select {
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*token.Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// login re-checks the cache and performs the network call the cache state requires.
func (c *Client) login(ctx context.Context, project string) (*token.Token, error) {
	ctx, span := c.tracer.Start(ctx, "directus.login", trace.WithAttributes(
		attribute.String("directus.project", project),
	))
	defer span.End()

	var (
		action string
		req    Request
	)

	cached, err := c.tokens.GetToken(ctx, project)
	switch {
	case errors.Is(err, tokenstore.ErrTokenNotFound):
		action = "authenticate"
		req = Request{
			Method:  http.MethodPost,
			URL:     c.uri("/auth/authenticate"),
			Payload: c.settings.Credentials,
		}
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reading cached token: %w", err)
	case cached.Expiring():
		action = "refresh"
		req = Request{
			Method:  http.MethodPost,
			URL:     c.uri("/auth/refresh"),
			Payload: map[string]string{"token": cached.Value()},
		}
	default:
		span.SetAttributes(attribute.String("directus.login.action", "reuse"))
		return cached, nil
	}
	span.SetAttributes(attribute.String("directus.login.action", action))

	callCtx, call := c.tracer.Start(ctx, "directus."+action)
	resp, err := c.transport.Do(callCtx, req)
	call.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, action+" failed")
		slog.WarnContext(ctx, "directus login failed", "project", project, "action", action, "error", err)
		return nil, err
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := resp.DecodeData(&payload); err != nil {
		span.SetStatus(codes.Error, "invalid response")
		return nil, err
	}
	if payload.Token == "" {
		span.SetStatus(codes.Error, "invalid response")
		return nil, &ClientError{Op: action, Err: errors.New("response has no token")}
	}

	// A refresh issues a new instance; the previous one is left untouched
	tok := token.New(payload.Token, c.tokenOpts...)
	if err := c.tokens.PutToken(ctx, project, tok); err != nil {
		span.SetStatus(codes.Error, "caching token failed")
		return nil, fmt.Errorf("caching token: %w", err)
	}

	slog.DebugContext(ctx, "directus token issued", "project", project, "action", action, "expires_at", tok.ExpiresAt())
	return tok, nil
}

// Logout invalidates the cached token server-side, then drops it from the
// store, which force-expires it. Without a cached token the logout call is
// sent unauthenticated.
func (c *Client) Logout(ctx context.Context) error {
	project := c.settings.Project

	ctx, span := c.tracer.Start(ctx, "directus.logout", trace.WithAttributes(
		attribute.String("directus.project", project),
	))
	defer span.End()

	cached, err := c.tokens.GetToken(ctx, project)
	if err != nil && !errors.Is(err, tokenstore.ErrTokenNotFound) {
		return fmt.Errorf("reading cached token: %w", err)
	}

	if _, err := c.transport.Do(ctx, Request{
		Method: http.MethodPost,
		URL:    c.uri("/auth/logout"),
		Token:  cached,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "logout failed")
		return err
	}

	if err := c.tokens.RemoveToken(ctx, project); err != nil {
		return fmt.Errorf("removing cached token: %w", err)
	}

	slog.DebugContext(ctx, "directus logged out", "project", project)
	return nil
}

// TokenSource adapts the client to oauth2.TokenSource, so an oauth2.Transport
// can attach fresh bearer tokens to arbitrary requests. ctx is used for the
// login calls because oauth2.TokenSource has no context parameter.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, client: c}
}

type tokenSource struct {
	ctx    context.Context
	client *Client
}

// Compile-time check to ensure tokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*tokenSource)(nil)

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.client.Login(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok.Value(),
		TokenType:   "Bearer",
		Expiry:      tok.ExpiresAt(),
	}, nil
}
