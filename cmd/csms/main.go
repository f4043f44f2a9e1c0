package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evcentral/internal/app"
	"evcentral/internal/config"
	"evcentral/libs/logging"
)

const serviceName = "csms"

var cfgPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "OCPP 1.6J central system",
		SilenceUsage: true,
		RunE:         serve,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (defaults to $CONFIG_FILE)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Accept charger connections and serve the API",
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE:  migrate,
	})
	return root
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to init central system", zap.Error(err))
		return err
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("central system stopped with error", zap.Error(err))
		return err
	}
	return nil
}

func migrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := app.Migrate(cmd.Context(), cfg, logger); err != nil {
		logger.Error("migration failed", zap.Error(err))
		return err
	}
	return nil
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewLogger(serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}
