package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"convokey/internal/app"
	"convokey/internal/keydir"
	"convokey/internal/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath, addr, backend string
	cmd := &cobra.Command{
		Use:          "keydir",
		Short:        "Run the convokey key directory server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if f := cmd.Flags().Lookup("addr"); f.Changed {
				v.Set("server.addr", addr)
			}
			if f := cmd.Flags().Lookup("backend"); f.Changed {
				v.Set("server.backend", backend)
			}
			cfg, err := app.ParseConfig(v)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")
	cmd.Flags().StringVar(&backend, "backend", "", "storage backend: memory, postgres or mongo")
	return cmd
}

func serve(ctx context.Context, cfg app.Config, log *zap.Logger) error {
	if cfg.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret is required (CONVOKEY_SERVER_JWT_SECRET)")
	}
	tokens, err := keydir.NewTokens([]byte(cfg.Server.JWTSecret), cfg.Server.TokenTTL)
	if err != nil {
		return err
	}

	backend, closeBackend, err := app.OpenBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := closeBackend(cctx); err != nil {
			log.Warn("close backend", zap.Error(err))
		}
	}()

	handler := keydir.NewServer(backend, tokens, keydir.ServerConfig{
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, log)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("key directory listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("backend", cfg.Server.Backend),
			zap.Bool("require_record_id", cfg.Server.RequireRecordID))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
