package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pbaille/qabot/internal/config"
	"github.com/pbaille/qabot/internal/domain"
	"github.com/pbaille/qabot/internal/observability"
	"github.com/pbaille/qabot/internal/provider"
	"github.com/pbaille/qabot/internal/remote"
	"github.com/pbaille/qabot/internal/resolver"
	"github.com/pbaille/qabot/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "qabot",
		Short:         "Manual-first question answering with model fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}

			zc := zap.NewProductionConfig()
			if verbose || strings.EqualFold(cfg.Log.Level, "debug") {
				zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err = zc.Build()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "qabot.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(manualCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(syncCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds the components shared by the subcommands
type app struct {
	tables    store.Tables
	metrics   *observability.Metrics
	syncer    remote.Syncer
	publisher *remote.Publisher
	resolver  *resolver.Resolver
}

func newApp(ctx context.Context) (*app, error) {
	tables, err := store.Open(cfg.Tables)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()

	syncer, err := remote.New(ctx, cfg.Sync)
	if err != nil {
		logger.Warn("remote sync disabled", zap.Error(err))
	}
	publisher := remote.NewPublisher(syncer, tables, cfg.Sync.Folder, metrics, logger)

	p, err := provider.New(cfg.Provider)
	switch {
	case errors.Is(err, provider.ErrMissingCredential):
		logger.Warn("external answers disabled", zap.String("backend", cfg.Provider.Backend), zap.Error(err))
	case err != nil:
		tables.Close()
		return nil, err
	}

	faq, err := tables.LoadFAQ(ctx)
	if err != nil {
		if !store.Degraded(err) {
			tables.Close()
			return nil, err
		}
		logger.Warn("faq unavailable", zap.Error(err))
		faq = nil
	}

	r := resolver.New(p, resolver.Options{
		Matching:     cfg.Matching,
		Instructions: cfg.Provider.Instructions,
		FAQ:          faq,
		Metrics:      metrics,
		Logger:       logger,
	})

	return &app{
		tables:    tables,
		metrics:   metrics,
		syncer:    syncer,
		publisher: publisher,
		resolver:  r,
	}, nil
}

func (a *app) Close() error {
	return a.tables.Close()
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func feedbackLabel(f domain.Feedback) string {
	switch f {
	case domain.FeedbackYes:
		return "yes"
	case domain.FeedbackNo:
		return "no"
	}
	return "-"
}
