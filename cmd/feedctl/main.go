// Command feedctl runs operator tasks against the feed's store:
//
//	feedctl admin grant --username alice
//	feedctl admin revoke --username alice
//	feedctl reconcile retweets [--fix]
//
// It reads the same configuration as the server (-config / CONFIG_PATH,
// .env, environment) but only needs the store settings.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sakif/social-feed/internal/config"
	"github.com/sakif/social-feed/internal/repository"
	"github.com/sakif/social-feed/internal/server"
	"github.com/sakif/social-feed/internal/service"
)

func main() {
	ctl := &feedctl{
		out:       os.Stdout,
		openStore: server.OpenStore,
	}
	if err := ctl.app().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "feedctl:", err)
		os.Exit(1)
	}
}

type storeOpener func(ctx context.Context, cfg config.StoreConfig) (repository.Store, error)

type feedctl struct {
	out       io.Writer
	openStore storeOpener
}

func (f *feedctl) app() *cli.App {
	app := cli.NewApp()
	app.Name = "feedctl"
	app.Usage = "operator tasks for the social feed"
	app.Writer = f.out
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to a YAML config file",
			EnvVars: []string{"CONFIG_PATH"},
		},
	}

	usernameFlag := &cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true}

	app.Commands = []*cli.Command{
		{
			Name:     "admin",
			Usage:    "Grant or revoke the admin role",
			Category: "Users",
			Subcommands: []*cli.Command{
				{
					Name:   "grant",
					Usage:  "Make a user an admin",
					Flags:  []cli.Flag{usernameFlag},
					Action: f.setAdmin(true),
				},
				{
					Name:   "revoke",
					Usage:  "Remove the admin role from a user",
					Flags:  []cli.Flag{usernameFlag},
					Action: f.setAdmin(false),
				},
			},
		},
		{
			Name:     "reconcile",
			Usage:    "Find and repair inconsistent bookkeeping",
			Category: "Maintenance",
			Subcommands: []*cli.Command{
				{
					Name:  "retweets",
					Usage: "Compare retweet sets with retweet tweets",
					Description: `Reports shadows whose author is missing from the original's retweet set,
set members without a shadow, duplicate shadows and shadows of deleted
originals. With --fix everything except orphans is repaired.`,
					Flags: []cli.Flag{
						&cli.BoolFlag{Name: "fix", Usage: "apply repairs instead of only reporting"},
					},
					Action: f.reconcileRetweets,
				},
			},
		},
	}
	return app
}

// withAdmin loads the configuration, opens the store and hands an
// AdminService to fn. The store is closed afterwards.
func (f *feedctl) withAdmin(c *cli.Context, fn func(*service.AdminService) error) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	store, err := f.openStore(c.Context, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	defer store.Close()

	return fn(service.NewAdminService(store, store, logger))
}

func (f *feedctl) setAdmin(admin bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		username := c.String("username")
		return f.withAdmin(c, func(svc *service.AdminService) error {
			user, err := svc.SetAdmin(c.Context, username, admin)
			if err != nil {
				return err
			}
			fmt.Fprintf(f.out, "%s (%s) admin=%t\n", user.Username, user.ID, user.IsAdmin)
			return nil
		})
	}
}

func (f *feedctl) reconcileRetweets(c *cli.Context) error {
	return f.withAdmin(c, func(svc *service.AdminService) error {
		report, err := svc.ReconcileRetweets(c.Context, c.Bool("fix"))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if !report.Clean() && !report.Fixed {
			slog.Warn("retweet state is inconsistent, rerun with --fix to repair")
		}
		return nil
	})
}
