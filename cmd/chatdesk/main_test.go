package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/chatdesk/internal/config"
	"github.com/antoniostano/chatdesk/internal/dialogue"
)

func TestRootFlagsOverrideDefaults(t *testing.T) {
	state := &cliState{v: config.NewViper()}
	root := newRootCommand(state)
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)

	require.NoError(t, root.PersistentFlags().Set("submit-policy", "queue"))
	require.NoError(t, root.PersistentFlags().Set("transport", "mock"))
	require.NoError(t, root.PersistentFlags().Set("request-timeout", "5s"))
	require.NoError(t, serve.Flags().Set("bind", "127.0.0.1:9999"))

	require.NoError(t, root.PersistentPreRunE(serve, nil))
	assert.Equal(t, dialogue.PolicyQueue, state.cfg.SubmitPolicy)
	assert.Equal(t, "mock", state.cfg.ChatTransportMode)
	assert.Equal(t, 5*time.Second, state.cfg.ChatRequestTimeout)
	assert.Equal(t, "127.0.0.1:9999", state.cfg.BindAddr)
}

func TestRootReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat_submit_policy: queue\napp_bind_addr: \":9090\"\n"), 0o600))

	state := &cliState{v: config.NewViper()}
	root := newRootCommand(state)
	require.NoError(t, root.PersistentFlags().Set("config", path))

	require.NoError(t, root.PersistentPreRunE(root, nil))
	assert.Equal(t, dialogue.PolicyQueue, state.cfg.SubmitPolicy)
	assert.Equal(t, ":9090", state.cfg.BindAddr)
}

func TestRootRejectsInvalidPolicy(t *testing.T) {
	state := &cliState{v: config.NewViper()}
	root := newRootCommand(state)
	require.NoError(t, root.PersistentFlags().Set("submit-policy", "drop"))
	assert.Error(t, root.PersistentPreRunE(root, nil))
}

func TestCommandsRegistered(t *testing.T) {
	root := newRootCommand(&cliState{v: config.NewViper()})
	for _, name := range []string{"serve", "tui", "mock-backend"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestTUILoggingWritesOnlyToFile(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "tui.log")
	require.NoError(t, setupTUILogging(config.Config{LogLevel: "info", LogFormat: "json", LogFile: path}))
	log.Info().Msg("tui started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tui started")

	require.NoError(t, setupTUILogging(config.Config{LogLevel: "info"}))
	assert.NotPanics(t, func() { log.Info().Msg("discarded") })
}
