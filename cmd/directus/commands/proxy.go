package commands

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/directus-client/internal/app"
)

func proxyCommand() *cli.Command {
	return &cli.Command{
		Name:  "proxy",
		Usage: "local reverse proxy that authenticates requests to directus",
		Commands: []*cli.Command{
			proxyStartCommand(),
		},
	}
}

func proxyStartCommand() *cli.Command {
	return &cli.Command{
		Name: "start",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
		},
		Action: proxyStartAction,
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
		slog.InfoContext(ctx, "starting")

		if err := a.Start(ctx); err != nil {
			return err
		}

		slog.InfoContext(ctx, "stopped gracefully")
		return nil
	})
}
