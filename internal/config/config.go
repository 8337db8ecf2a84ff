package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/antoniostano/chatdesk/internal/dialogue"
)

// Config contains all runtime settings for the chat service and terminal client.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	AllowAnyOrigin           bool

	LogLevel  string
	LogFormat string
	LogFile   string

	ChatTransportMode  string
	ChatEndpointURL    string
	ChatRequestTimeout time.Duration
	SubmitPolicy       dialogue.SubmitPolicy

	UIFile      string
	DatabaseURL string
}

// Keys are viper keys; with AutomaticEnv each one maps to the upper-cased
// environment variable of the same name.
const (
	KeyBindAddr                 = "app_bind_addr"
	KeyShutdownTimeout          = "app_shutdown_timeout"
	KeySessionInactivityTimeout = "app_session_inactivity_timeout"
	KeyMetricsNamespace         = "app_metrics_namespace"
	KeyAllowAnyOrigin           = "app_allow_any_origin"
	KeyLogLevel                 = "app_log_level"
	KeyLogFormat                = "app_log_format"
	KeyLogFile                  = "app_log_file"
	KeyChatTransportMode        = "chat_transport_mode"
	KeyChatEndpointURL          = "chat_endpoint_url"
	KeyChatRequestTimeout       = "chat_request_timeout"
	KeySubmitPolicy             = "chat_submit_policy"
	KeyUIFile                   = "chat_ui_file"
	KeyDatabaseURL              = "database_url"
)

// NewViper returns a viper instance with defaults registered and environment
// lookup enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBindAddr, ":8080")
	v.SetDefault(KeyShutdownTimeout, "15s")
	v.SetDefault(KeySessionInactivityTimeout, "10m")
	v.SetDefault(KeyMetricsNamespace, "chatdesk")
	v.SetDefault(KeyAllowAnyOrigin, "false")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyChatTransportMode, "auto")
	v.SetDefault(KeyChatEndpointURL, "http://127.0.0.1:8000/chat")
	v.SetDefault(KeyChatRequestTimeout, "60s")
	v.SetDefault(KeySubmitPolicy, string(dialogue.PolicyReject))
	v.SetDefault(KeyUIFile, "")
	v.SetDefault(KeyDatabaseURL, "")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	return FromViper(NewViper())
}

// FromViper builds and validates a Config from v, which may carry bound
// command-line flags on top of the environment.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		BindAddr:          strings.TrimSpace(v.GetString(KeyBindAddr)),
		MetricsNamespace:  strings.TrimSpace(v.GetString(KeyMetricsNamespace)),
		LogLevel:          strings.TrimSpace(v.GetString(KeyLogLevel)),
		LogFormat:         strings.TrimSpace(v.GetString(KeyLogFormat)),
		LogFile:           strings.TrimSpace(v.GetString(KeyLogFile)),
		ChatTransportMode: strings.ToLower(strings.TrimSpace(v.GetString(KeyChatTransportMode))),
		ChatEndpointURL:   strings.TrimSpace(v.GetString(KeyChatEndpointURL)),
		UIFile:            strings.TrimSpace(v.GetString(KeyUIFile)),
		DatabaseURL:       strings.TrimSpace(v.GetString(KeyDatabaseURL)),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFrom(v, KeyShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionInactivityTimeout, err = durationFrom(v, KeySessionInactivityTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ChatRequestTimeout, err = durationFrom(v, KeyChatRequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFrom(v, KeyAllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.SubmitPolicy, err = dialogue.ParseSubmitPolicy(v.GetString(KeySubmitPolicy)); err != nil {
		return Config{}, errors.Wrap(err, envName(KeySubmitPolicy))
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BindAddr == "" {
		return errors.New("APP_BIND_ADDR must not be empty")
	}
	if c.MetricsNamespace == "" {
		return errors.New("APP_METRICS_NAMESPACE must not be empty")
	}
	if c.SessionInactivityTimeout < 5*time.Second {
		return errors.New("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.ChatRequestTimeout < 0 {
		return errors.New("CHAT_REQUEST_TIMEOUT must be >= 0")
	}
	switch c.ChatTransportMode {
	case "auto", "mock":
	case "http":
		if c.ChatEndpointURL == "" {
			return errors.New("CHAT_ENDPOINT_URL is required when CHAT_TRANSPORT_MODE=http")
		}
	default:
		return errors.Errorf("CHAT_TRANSPORT_MODE %q is not one of auto, http, mock", c.ChatTransportMode)
	}
	return nil
}

func envName(key string) string {
	return strings.ToUpper(key)
}

func durationFrom(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "%s parse error", envName(key))
	}
	return d, nil
}

func boolFrom(v *viper.Viper, key string) (bool, error) {
	raw := strings.ToLower(strings.TrimSpace(v.GetString(key)))
	switch raw {
	case "", "0", "false", "f", "no", "n", "off":
		return false, nil
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	default:
		return false, errors.Errorf("%s parse error: expected bool", envName(key))
	}
}
