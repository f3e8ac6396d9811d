package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// ZerologConfig selects the outputs of a zerolog logger.
type ZerologConfig struct {
	Level string
	// Console gets colored output; File gets the same lines without color.
	Console io.Writer
	File    io.Writer
	// GraylogAddress, when set, ships JSON records to a GELF UDP endpoint.
	GraylogAddress string
	// Component is added to every record.
	Component string
}

// parseZerologLevel converts a string log level to zerolog.Level.
func parseZerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewZerolog builds the zerolog logger used by the storage and Influx
// managers. A Graylog dial failure is returned together with a logger that
// still writes to the local outputs.
func NewZerolog(cfg ZerologConfig) (zerolog.Logger, error) {
	var writers []io.Writer
	if cfg.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        cfg.Console,
			TimeFormat: time.RFC3339,
		})
	}
	if cfg.File != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        cfg.File,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}

	var gelfErr error
	if cfg.GraylogAddress != "" {
		gw, err := gelf.NewWriter(cfg.GraylogAddress)
		if err != nil {
			gelfErr = fmt.Errorf("connecting to graylog at %s: %w", cfg.GraylogAddress, err)
		} else {
			writers = append(writers, gw)
		}
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	ctx := zerolog.New(out).Level(parseZerologLevel(cfg.Level)).With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger(), gelfErr
}
