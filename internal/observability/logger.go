package observability

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level      string
	Format     string
	File       string
	WithCaller bool
	// FileOnly keeps stderr quiet, for full-screen terminal programs. Without
	// a File nothing is logged.
	FileOnly bool
}

// SetupLogging configures the global zerolog logger. Format is "json"
// (default) or "text". A non-empty File additionally writes plain console
// lines to a rotated log file.
func SetupLogging(cfg LogConfig) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	w, err := logWriter(os.Stderr, cfg)
	if err != nil {
		return err
	}

	logger := zerolog.New(w).With().Timestamp()
	if cfg.WithCaller {
		logger = logger.Caller()
	}
	log.Logger = logger.Logger()
	zerolog.SetGlobalLevel(level)
	return nil
}

func logWriter(stderr io.Writer, cfg LogConfig) (io.Writer, error) {
	file := strings.TrimSpace(cfg.File)
	if cfg.FileOnly {
		if file == "" {
			return io.Discard, nil
		}
		return fileWriter(file), nil
	}

	var w io.Writer
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		w = stderr
	case "text":
		w = zerolog.ConsoleWriter{Out: stderr}
	default:
		return nil, errors.Errorf("unsupported log format %q (expected json|text)", cfg.Format)
	}

	if file != "" {
		w = io.MultiWriter(w, fileWriter(file))
	}
	return w, nil
}

func fileWriter(file string) io.Writer {
	return zerolog.ConsoleWriter{
		NoColor: true,
		Out: &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

func parseLevel(raw string) (zerolog.Level, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", raw)
	}
	return level, nil
}
