package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/antoniostano/chatdesk/internal/config"
	"github.com/antoniostano/chatdesk/internal/observability"
)

type flagBinding struct {
	flag string
	key  string
}

// Flags override the environment; each one is bound to the viper key of the
// matching environment variable.
var persistentFlags = []flagBinding{
	{"log-level", config.KeyLogLevel},
	{"log-format", config.KeyLogFormat},
	{"log-file", config.KeyLogFile},
	{"transport", config.KeyChatTransportMode},
	{"endpoint", config.KeyChatEndpointURL},
	{"request-timeout", config.KeyChatRequestTimeout},
	{"submit-policy", config.KeySubmitPolicy},
	{"ui-file", config.KeyUIFile},
}

func main() {
	if err := newRootCommand(&cliState{v: config.NewViper()}).Execute(); err != nil {
		log.Error().Err(err).Msg("chatdesk failed")
		os.Exit(1)
	}
}

type cliState struct {
	v   *viper.Viper
	cfg config.Config
}

func newRootCommand(state *cliState) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "chatdesk",
		Short:         "Chat session manager with a web and terminal front end",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				state.v.SetConfigFile(configFile)
				if err := state.v.ReadInConfig(); err != nil {
					return errors.Wrapf(err, "read config %s", configFile)
				}
			}
			cfg, err := config.FromViper(state.v)
			if err != nil {
				return err
			}
			state.cfg = cfg
			return observability.SetupLogging(logConfig(cfg))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "optional config file (yaml, keys named like the environment variables in lower case)")
	flags.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	flags.String("log-format", "json", "log format (json|text)")
	flags.String("log-file", "", "also write logs to this rotated file")
	flags.String("transport", "auto", "chat transport (auto|http|mock)")
	flags.String("endpoint", "", "chat endpoint URL for the http transport")
	flags.Duration("request-timeout", 0, "chat request timeout")
	flags.String("submit-policy", "reject", "behavior for a submit while a reply is pending (reject|queue)")
	flags.String("ui-file", "", "yaml file with title, welcome and suggestions")
	bindFlags(state.v, root, persistentFlags)

	root.AddCommand(
		newServeCommand(state),
		newTUICommand(state),
		newMockBackendCommand(state),
	)
	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, bindings []flagBinding) {
	for _, b := range bindings {
		f := cmd.PersistentFlags().Lookup(b.flag)
		if f == nil {
			f = cmd.Flags().Lookup(b.flag)
		}
		cobra.CheckErr(v.BindPFlag(b.key, f))
	}
}

func logConfig(cfg config.Config) observability.LogConfig {
	return observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	}
}
