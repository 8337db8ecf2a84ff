package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/antoniostano/chatdesk/internal/app"
	"github.com/antoniostano/chatdesk/internal/config"
	"github.com/antoniostano/chatdesk/internal/dialogue"
	"github.com/antoniostano/chatdesk/internal/observability"
	"github.com/antoniostano/chatdesk/internal/tui"
)

func newTUICommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Chat from the terminal against the configured transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			if err := setupTUILogging(cfg); err != nil {
				return err
			}

			ui, err := config.LoadUISettings(cfg.UIFile)
			if err != nil {
				return err
			}
			transport, err := app.NewTransport(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()
			return tui.Run(ctx, transport, ui,
				dialogue.WithPolicy(cfg.SubmitPolicy),
				dialogue.WithLogger(log.Logger),
			)
		},
	}
}

// setupTUILogging sends logs to the log file only; lines on stderr would
// corrupt the alternate screen.
func setupTUILogging(cfg config.Config) error {
	lc := logConfig(cfg)
	lc.FileOnly = true
	return observability.SetupLogging(lc)
}
