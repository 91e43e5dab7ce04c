package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	TimeFormat  string `mapstructure:"time_format"`
	Caller      bool   `mapstructure:"caller"`
	PrettyPrint bool   `mapstructure:"pretty"`
}

// NewLogger constructs a zerolog logger from config.
// Logs go to stderr unless Output is "stdout"; table output from the CLI owns stdout.
func NewLogger(cfg Config) zerolog.Logger {
	out := io.Writer(os.Stderr)
	if strings.EqualFold(cfg.Output, "stdout") {
		out = os.Stdout
	}
	return NewLoggerTo(out, cfg)
}

// NewLoggerTo builds the logger on an explicit writer.
func NewLoggerTo(out io.Writer, cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	logger := zerolog.New(logWriter(out, cfg)).Level(ParseLevel(cfg.Level))
	builder := logger.With().Timestamp()
	if cfg.Caller {
		builder = builder.Caller()
	}

	return builder.Logger()
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	if parsed, err := zerolog.ParseLevel(strings.ToLower(name)); err == nil && name != "" {
		return parsed
	}
	return zerolog.InfoLevel
}

func logWriter(out io.Writer, cfg Config) io.Writer {
	if cfg.PrettyPrint || strings.EqualFold(cfg.Format, "console") {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}
	return out
}
