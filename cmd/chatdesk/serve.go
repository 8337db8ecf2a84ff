package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/chatdesk/internal/app"
	"github.com/antoniostano/chatdesk/internal/config"
)

const janitorInterval = 5 * time.Second

func newServeCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web chat, websocket gateway and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, state.cfg)
		},
	}
	cmd.Flags().String("bind", ":8080", "listen address")
	cmd.Flags().Duration("inactivity-timeout", 10*time.Minute, "end sessions idle for this long")
	cmd.Flags().Bool("allow-any-origin", false, "accept websocket upgrades from any origin")
	cmd.Flags().String("database-url", "", "postgres URL for the turn archive (in-memory when empty)")
	bindFlags(state.v, cmd, []flagBinding{
		{"bind", config.KeyBindAddr},
		{"inactivity-timeout", config.KeySessionInactivityTimeout},
		{"allow-any-origin", config.KeyAllowAnyOrigin},
		{"database-url", config.KeyDatabaseURL},
	})
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		built.Sessions.RunJanitor(groupCtx, janitorInterval)
		return nil
	})
	eg.Go(func() error {
		return built.Archiver.Run(groupCtx)
	})
	eg.Go(func() error {
		log.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	eg.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed")
			_ = httpServer.Close()
		}
		return nil
	})

	err = eg.Wait()
	log.Info().Msg("shutdown complete")
	return err
}
