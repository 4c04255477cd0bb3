package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cropsense/farmops/internal/api"
	"github.com/cropsense/farmops/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for diagnosis requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		// Warm the prompt cache so the first diagnosis request doesn't pay
		// the full system-prompt cost. Failures are not fatal.
		if usage, warmErr := pipeline.WarmPromptCache(ctx, env.AI, cfg.Anthropic); warmErr != nil {
			zap.L().Warn("prompt cache warmup failed", zap.Error(warmErr))
		} else {
			zap.L().Info("prompt cache warmed",
				zap.Int64("cache_write_tokens", usage.CacheCreationInputTokens),
			)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := api.NewServer(env.Pipeline, env.Store)
		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.Routes(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if shutdownErr := httpSrv.Shutdown(shutdownCtx); shutdownErr != nil {
				zap.L().Error("server shutdown", zap.Error(shutdownErr))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
