package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Ladkan/MeChat/internal/app"
	"github.com/Ladkan/MeChat/internal/config"
	applog "github.com/Ladkan/MeChat/internal/log"
)

type flags struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "mechat",
		Short:         "Room-scoped real-time chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to config file (default $MECHAT_CONFIG_DEFAULT_PATH or ./config.yaml)")
	pf.StringVar(&f.overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&f.overrides.DatabasePath, "db", "", "SQLite database path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}
	for _, c := range []*cobra.Command{root, serveCmd} {
		c.Flags().StringVar(&f.overrides.Addr, "addr", "", "HTTP listen address")
		c.Flags().DurationVar(&f.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
		c.Flags().DurationVar(&f.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(f)
			if err != nil {
				return err
			}
			return app.Migrate(cmd.Context(), &cfg, logger)
		},
	}

	root.AddCommand(serveCmd, migrateCmd)
	return root
}

func loadConfig(f *flags) (config.Config, *zerolog.Logger, error) {
	bootLog := applog.New("info")

	cfg, path, err := config.Load(bootLog, f.configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(f.overrides)

	logger := applog.New(cfg.LogLevel)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func serve(parent context.Context, f *flags) error {
	cfg, logger, err := loadConfig(f)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting mechat server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
