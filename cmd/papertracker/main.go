package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"PaperTracker/internal/app"
	"PaperTracker/internal/config"
)

func withApp(cmd *cli.Command, fn func(ctx context.Context, a *app.Application) error) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}

func main() {
	cmd := &cli.Command{
		Name:  "papertracker",
		Usage: "Scan research feeds, match papers against topic tracks, and deliver digests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("PAPERTRACKER_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "Run one scan: ingest feed entries, match tracks, fetch artifacts",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(cmd, func(ctx context.Context, a *app.Application) error {
						return a.Scan(ctx)
					})
				},
			},
			{
				Name:  "digest",
				Usage: "Run one digest delivery for the current period",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(cmd, func(ctx context.Context, a *app.Application) error {
						return a.Digest(ctx)
					})
				},
			},
			{
				Name:  "serve",
				Usage: "Run scan and digest on the configured cron schedule",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(cmd, func(ctx context.Context, a *app.Application) error {
						return a.Serve(ctx)
					})
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
