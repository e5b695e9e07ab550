package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/directus-client/internal/app"
	"github.com/florianilch/directus-client/internal/directus"
)

// promptMissingPassword asks for the password when the DSN lacks only that
// and stdin is a terminal. Any other DSN problem is left for app.New to report.
func promptMissingPassword(cfg *app.Config, stdin *os.File, prompt io.Writer) error {
	if _, err := directus.ParseDSN(cfg.DSN); !errors.Is(err, directus.ErrMissingPassword) {
		return nil
	}

	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	_, _ = fmt.Fprint(prompt, "Password: ")
	password, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(prompt)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	dsn, err := withPassword(cfg.DSN, string(password))
	if err != nil {
		return err
	}
	cfg.DSN = dsn
	return nil
}

// withPassword returns dsn with its user password set.
func withPassword(dsn, password string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return "", fmt.Errorf("%w: %w", directus.ErrInvalidDSN, err)
	}
	if u.User == nil {
		return "", fmt.Errorf("%w: directus dsn email address is required", directus.ErrInvalidDSN)
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String(), nil
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate and cache a token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				tok, err := a.Client().Login(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(stdout(cmd), "logged in to %s, token expires at %s\n",
					a.Client().Settings().Project, tok.ExpiresAt().Format(time.RFC3339))
				return err
			})
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "invalidate and forget the cached token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Client().Logout(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintf(stdout(cmd), "logged out of %s\n", a.Client().Settings().Project)
				return err
			})
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a bearer token, logging in if needed",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				tok, err := a.Client().Login(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(stdout(cmd), tok.Value())
				return err
			})
		},
		Commands: []*cli.Command{
			{
				Name:  "inspect",
				Usage: "print the claims of the token (signature not verified)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
						tok, err := a.Client().Login(ctx)
						if err != nil {
							return err
						}
						claims, err := inspectToken(tok.Value())
						if err != nil {
							return err
						}
						return writeJSON(stdout(cmd), map[string]any{
							"project":    a.Client().Settings().Project,
							"expires_at": tok.ExpiresAt().Format(time.RFC3339),
							"expiring":   tok.Expiring(),
							"claims":     claims,
						})
					})
				},
			},
		},
	}
}

// inspectToken decodes the claims of a JWT without verifying its signature.
func inspectToken(raw string) (jwt.MapClaims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("token is not a JWT: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected token claims")
	}
	return claims, nil
}

// writeJSON writes v indented, followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
