package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/directus-client/internal/directus"
	"github.com/florianilch/directus-client/internal/proxy"
	"github.com/florianilch/directus-client/internal/tokenstore"
)

// App wires the token store, the Directus client and the proxy server,
// and owns their lifecycle.
type App struct {
	cfg    *Config
	store  tokenstore.TokenStore
	client *directus.Client
}

// New creates a new App instance. The token store is opened immediately;
// Close must be called to persist it.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	settings, err := directus.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	store, err := cfg.Storage.NewTokenStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	transport := directus.NewHTTPTransport(directus.WithTimeout(cfg.HTTP.Timeout))
	client, err := directus.New(transport, settings, store, directus.WithTokenOptions(cfg.TokenOptions()...))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create directus client: %w", err)
	}

	slog.DebugContext(ctx, "app initialized", "directus", settings.String(), "storage", cfg.Storage.Type)

	return &App{
		cfg:    cfg,
		store:  store,
		client: client,
	}, nil
}

// Client returns the Directus client.
func (a *App) Client() *directus.Client {
	return a.client
}

// Store returns the token store backing the client.
func (a *App) Store() tokenstore.TokenStore {
	return a.store
}

// Close releases the token store, writing cached tokens back for
// persistent backends.
func (a *App) Close() error {
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("closing token store: %w", err)
	}
	return nil
}

// Start runs the authenticating proxy and blocks until ctx is cancelled or
// the server fails, then shuts it down within the configured timeout.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	proxyServer, err := proxy.New(a.client.TokenSource(gCtx), a.client.Settings().URI)
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "address", address, "upstream", a.client.Settings().URI)
	proxyErrCh, err := proxyServer.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, proxyServer.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
