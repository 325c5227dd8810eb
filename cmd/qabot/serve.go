package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pbaille/qabot/internal/api"
	"github.com/pbaille/qabot/internal/observability"
	"github.com/pbaille/qabot/internal/qa"
	"github.com/pbaille/qabot/internal/session"
	"github.com/pbaille/qabot/internal/store"
	"github.com/pbaille/qabot/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				cfg.Server.Addr = addr
			}

			shutdownTracing, err := observability.SetupTracing(cfg.Tracing.Stdout)
			if err != nil {
				return err
			}
			defer shutdownTracing(context.Background())

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.AdminPassword == "" {
				logger.Warn("admin routes disabled: ADMIN_PASSWORD is not set")
			}

			registry := session.NewRegistry(a.tables, a.publisher, cfg.Session.IdleTimeout, logger)
			server := api.New(api.Options{
				Addr:          cfg.Server.Addr,
				Registry:      registry,
				QA:            qa.New(a.resolver, a.publisher, a.metrics, logger),
				Tables:        a.tables,
				AdminPassword: cfg.AdminPassword,
				Metrics:       a.metrics,
				Logger:        logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx)
			})

			if path := a.tables.Path(store.TableManual); cfg.Manual.Watch && path != "" {
				w, err := watcher.New(path, logger)
				if err != nil {
					logger.Warn("manual watch disabled", zap.Error(err))
				} else {
					g.Go(func() error {
						return w.Run(gctx, registry.InvalidateManual)
					})
				}
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (overrides config)")
	return cmd
}
