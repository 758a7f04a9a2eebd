package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/server"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "hobbyist",
		Usage: "studio partner backend: calendar import and instructor payouts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (defaults to ./config.yaml)",
				EnvVars: []string{"HOBBYIST_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and Stripe webhook receiver",
				Action: withApp(func(ctx context.Context, app *server.App, _ *cli.Context) error {
					return app.Serve(ctx)
				}),
			},
			{
				Name:  "worker",
				Usage: "run the background worker and periodic scheduler",
				Action: withApp(func(ctx context.Context, app *server.App, _ *cli.Context) error {
					return app.Work(ctx)
				}),
			},
			{
				Name:  "payout",
				Usage: "run one payout pass and exit",
				Action: withApp(func(ctx context.Context, app *server.App, _ *cli.Context) error {
					return app.RunPayoutOnce(ctx)
				}),
			},
			{
				Name:      "sync",
				Usage:     "import every calendar integration of a studio and exit",
				ArgsUsage: "<studio-id>",
				Action: withApp(func(ctx context.Context, app *server.App, c *cli.Context) error {
					studioID, err := uuid.Parse(c.Args().First())
					if err != nil {
						return fmt.Errorf("studio id: %w", err)
					}
					return app.SyncOnce(ctx, studioID)
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("run error", "error", err)
		os.Exit(1)
	}
}

func withApp(fn func(ctx context.Context, app *server.App, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		app, err := server.NewApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return fn(ctx, app, c)
	}
}
