package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/directus-client/internal/app"
	"github.com/florianilch/directus-client/internal/directus"
)

const flagParam = "param"

// paramFlag collects query parameters, e.g. -p fields=* -p limit=10.
func paramFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    flagParam,
		Aliases: []string{"p"},
		Usage:   "query parameter as key=value, repeatable",
	}
}

// queryParams parses key=value pairs into url.Values.
func queryParams(pairs []string) (url.Values, error) {
	params := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q, expected key=value", pair)
		}
		params.Add(key, value)
	}
	return params, nil
}

// optionalID parses the positional argument at index i. Absent means 0.
func optionalID(cmd *cli.Command, i int) (int, error) {
	arg := cmd.Args().Get(i)
	if arg == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

type fetchFunc func(ctx context.Context, c *directus.Client, params url.Values) (*directus.Response, error)

// fetch runs f and prints the data member of the response.
func fetch(ctx context.Context, cmd *cli.Command, f fetchFunc) error {
	params, err := queryParams(cmd.StringSlice(flagParam))
	if err != nil {
		return err
	}
	return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
		resp, err := f(ctx, a.Client(), params)
		if err != nil {
			return err
		}
		data := resp.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return writeJSON(stdout(cmd), data)
	})
}

func itemsCommand() *cli.Command {
	return &cli.Command{
		Name:      "items",
		Usage:     "list the items of a collection, or fetch one by id",
		ArgsUsage: "<collection> [id]",
		Flags:     []cli.Flag{paramFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			collection := cmd.Args().First()
			if collection == "" {
				return fmt.Errorf("collection is required")
			}
			id, err := optionalID(cmd, 1)
			if err != nil {
				return err
			}
			return fetch(ctx, cmd, func(ctx context.Context, c *directus.Client, params url.Values) (*directus.Response, error) {
				if id == 0 {
					return c.Items(ctx, collection, params)
				}
				return c.Item(ctx, collection, id, params)
			})
		},
	}
}

func collectionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "collections",
		Usage:     "list collections, or fetch one by name",
		ArgsUsage: "[name]",
		Flags:     []cli.Flag{paramFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			return fetch(ctx, cmd, func(ctx context.Context, c *directus.Client, params url.Values) (*directus.Response, error) {
				if name == "" {
					return c.Collections(ctx, params)
				}
				return c.Collection(ctx, name, params)
			})
		},
	}
}

func usersCommand() *cli.Command {
	return &cli.Command{
		Name:      "users",
		Usage:     "list users, or fetch one by id (\"me\" for the current user)",
		ArgsUsage: "[id|me]",
		Flags:     []cli.Flag{paramFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			arg := cmd.Args().First()
			var (
				id  int
				err error
			)
			if arg != "" && arg != "me" {
				if id, err = optionalID(cmd, 0); err != nil {
					return err
				}
			}
			return fetch(ctx, cmd, func(ctx context.Context, c *directus.Client, params url.Values) (*directus.Response, error) {
				if arg == "" {
					return c.Users(ctx, params)
				}
				return c.User(ctx, id, params)
			})
		},
	}
}

func filesCommand() *cli.Command {
	return &cli.Command{
		Name:      "files",
		Usage:     "list files, or fetch one by id",
		ArgsUsage: "[id]",
		Flags:     []cli.Flag{paramFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := optionalID(cmd, 0)
			if err != nil {
				return err
			}
			return fetch(ctx, cmd, func(ctx context.Context, c *directus.Client, params url.Values) (*directus.Response, error) {
				if id == 0 {
					return c.Files(ctx, params)
				}
				return c.File(ctx, id, params)
			})
		},
	}
}

func activityCommand() *cli.Command {
	return &cli.Command{
		Name:      "activity",
		Usage:     "list activity records, or fetch one by id",
		ArgsUsage: "[id]",
		Flags:     []cli.Flag{paramFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := optionalID(cmd, 0)
			if err != nil {
				return err
			}
			return fetch(ctx, cmd, func(ctx context.Context, c *directus.Client, params url.Values) (*directus.Response, error) {
				if id == 0 {
					return c.Activities(ctx, params)
				}
				return c.Activity(ctx, id, params)
			})
		},
	}
}

func projectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "list the projects configured on the server",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return fetch(ctx, cmd, func(ctx context.Context, c *directus.Client, _ url.Values) (*directus.Response, error) {
				return c.Projects(ctx)
			})
		},
	}
}
