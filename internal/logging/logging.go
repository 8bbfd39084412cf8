// Package logging builds the zerolog logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding and destination.
type Config struct {
	Level      string `yaml:"level" toml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format     string `yaml:"format" toml:"format" default:"console" validate:"oneof=json console"`
	Output     string `yaml:"output" toml:"output" default:"stderr"` // stdout, stderr, or file path
	TimeFormat string `yaml:"time_format" toml:"time_format"`
}

// New creates a logger from cfg. Console format writes human-readable lines.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level: %w", err)
		}
		level = parsed
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	return NewWithWriter(cfg, output).Level(level), nil
}

// NewWithWriter creates a logger writing to w. The level is left at trace.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: timeFormat,
			NoColor:    cfg.Output != "" && cfg.Output != "stderr" && cfg.Output != "stdout",
		}
	}

	return zerolog.New(w).
		With().
		Timestamp().
		Logger()
}
