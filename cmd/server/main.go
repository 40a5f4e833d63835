package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gopherai-assistant/internal/app"
	"gopherai-assistant/internal/bootstrap"
	"gopherai-assistant/internal/config"
	"gopherai-assistant/internal/logging"
	"gopherai-assistant/internal/prompt"
	httptransport "gopherai-assistant/internal/transport/http"
)

var rootCmd = &cobra.Command{
	Use:   "gopherai-assistant",
	Short: "AI assistant service: answer, summarize and generate with per-user history",
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [text]",
	Short: "Send one prompt to the provider and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the interaction schema for the configured storage driver",
	RunE:  runMigrate,
}

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Mint a custom token that opens a session for an existing user id",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	askCmd.Flags().StringP("mode", "m", string(prompt.ModeAnswer), "answer, summarize or generate")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(serveCmd, askCmd, migrateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config failed: %w", err)
	}
	logger, err := logging.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close resources failed", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           httptransport.NewRouter(application),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	modeFlag, _ := cmd.Flags().GetString("mode")
	mode := prompt.Mode(modeFlag)
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", modeFlag)
	}
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return errors.New(app.MsgEmptyInput)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := prompt.Build(mode, text)
	answer, err := bootstrap.NewGateway(cfg, logger).GenerateContent(ctx, p.Request)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s:\n%s\n", p.Label, answer)
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	repo, err := bootstrap.OpenRepository(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()
	logger.Info("schema ready", zap.String("storage_driver", cfg.Storage.Driver))
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	token, err := app.NewSessionService(cfg.Auth.JWTSecret, cfg.JWTExpiration()).MintCustomToken(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
