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

	"github.com/antoniostano/chatdesk/internal/chatapi"
)

func newMockBackendCommand(state *cliState) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve POST /chat with canned replies for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              addr,
				Handler:           chatapi.NewMockHandler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), state.cfg.ShutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info().Str("addr", addr).Msg("mock chat backend listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "listen")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	return cmd
}
