package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stockroom/internal/auth"
	"stockroom/internal/config"
	"stockroom/internal/server"
	"stockroom/internal/stock"
	"stockroom/internal/storage"
	"stockroom/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the stock API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("STOCKROOM_CONFIG"), "path to the YAML configuration file")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Verbosity)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Error(err, "failed to flush telemetry")
		}
	}()

	store, closeStore, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error(err, "failed to close storage")
		}
	}()

	verifier, err := auth.New(cfg.Auth)
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}
	logger.Info("authentication configured", "mode", cfg.Auth.Mode, "publicReads", cfg.Server.PublicReads)

	router := server.NewRouter(cfg.Server, server.Deps{
		Service:  stock.NewService(store),
		Health:   store,
		Verifier: verifier,
		Logger:   logger,
	})
	return server.New(cfg.Server, router, logger).Run(ctx)
}

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the auth settings accepting token in static mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, salt, err := auth.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "auth:\n  mode: %s\n  token_hash: %s\n  token_salt: %s\n",
				config.AuthStatic, hash, salt)
			return nil
		},
	}
}
