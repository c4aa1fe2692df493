// Package logging provides structured logging for stagefile on top of zerolog.
//
// Core packages accept a *Logger and never log through a global. Nop returns a
// logger that discards everything and is the default wherever a nil logger
// is passed.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Standard field names.
const (
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldPath      = "path"
	FieldChecksum  = "checksum"
	FieldReason    = "reason"
)

// Config contains logging configuration.
type Config struct {
	Level   string `koanf:"level"`
	Format  string `koanf:"format"`
	Output  string `koanf:"output"`
	NoColor bool   `koanf:"no_color"`
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "warn"
	}
	if c.Format == "" {
		c.Format = FormatConsole
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Logger wraps zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger from configuration.
func New(cfg Config) *Logger {
	cfg.ApplyDefaults()
	return NewWithWriter(cfg, outputWriter(cfg.Output))
}

// NewWithWriter creates a logger writing to w, ignoring cfg.Output.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	cfg.ApplyDefaults()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.WarnLevel
	}

	var zl zerolog.Logger
	if strings.ToLower(cfg.Format) == FormatJSON {
		zl = zerolog.New(w)
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: "15:04:05"})
	}

	return &Logger{zl: zl.Level(level).With().Timestamp().Logger()}
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func outputWriter(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zl: l.zl.With().Str(FieldComponent, name).Logger()}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zc := l.zl.With()
	for k, v := range fields {
		zc = zc.Interface(k, v)
	}
	return &Logger{zl: zc.Logger()}
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Debug(), msg, fields)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Info(), msg, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Warn(), msg, fields)
}

// Error logs an error message.
func (l *Logger) Error(msg string, err error, fields ...map[string]interface{}) {
	emit(l.zl.Error().Err(err), msg, fields)
}

func emit(event *zerolog.Event, msg string, fields []map[string]interface{}) {
	if event == nil {
		return
	}
	for _, f := range fields {
		for k, v := range f {
			event = event.Interface(k, v)
		}
	}
	event.Msg(msg)
}
