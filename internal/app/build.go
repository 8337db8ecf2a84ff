package app

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/chatdesk/internal/archive"
	"github.com/antoniostano/chatdesk/internal/chat"
	"github.com/antoniostano/chatdesk/internal/chatapi"
	"github.com/antoniostano/chatdesk/internal/config"
	"github.com/antoniostano/chatdesk/internal/httpapi"
	"github.com/antoniostano/chatdesk/internal/observability"
	"github.com/antoniostano/chatdesk/internal/session"
)

type BuildResult struct {
	Config       config.Config
	UI           config.UISettings
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *chat.Orchestrator
	Archiver     *chat.Archiver
	Transport    chatapi.Transport
	Metrics      *observability.Metrics

	// Cleanup releases external resources (database pool).
	Cleanup func() error
}

// NewTransport builds the chat transport selected by cfg.
func NewTransport(cfg config.Config) (chatapi.Transport, error) {
	transport, err := chatapi.NewTransport(chatapi.Config{
		Mode:    cfg.ChatTransportMode,
		URL:     cfg.ChatEndpointURL,
		Timeout: cfg.ChatRequestTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "chat transport init failed")
	}
	return transport, nil
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	ui, err := config.LoadUISettings(cfg.UIFile)
	if err != nil {
		return nil, err
	}

	transport, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "archive store init failed")
	}
	archiveMode := "in-memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		archiveMode = "postgres"
	}
	archiver := chat.NewArchiver(store, metrics, 1024)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	orchestrator := chat.NewOrchestrator(sessions, transport, archiver, metrics, cfg.SubmitPolicy)
	sessions.SetExpireHook(func(s *session.Session) {
		orchestrator.Forget(s.ID)
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		log.Info().Str("session_id", s.ID).Msg("chat session expired")
	})

	api := httpapi.New(cfg, sessions, orchestrator, metrics, httpapi.Options{
		UI:        ui,
		Archive:   store,
		Transport: chatapi.Describe(transport),
	})

	log.Info().
		Str("transport", chatapi.Describe(transport)).
		Str("submit_policy", string(cfg.SubmitPolicy)).
		Str("archive", archiveMode).
		Msg("chat service wired")

	return &BuildResult{
		Config:       cfg,
		UI:           ui,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Archiver:     archiver,
		Transport:    transport,
		Metrics:      metrics,
		Cleanup:      store.Close,
	}, nil
}
