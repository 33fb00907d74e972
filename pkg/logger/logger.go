// Package logger is the structured logging layer shared by the services, the
// HTTP API and the command-line tool. It wraps logrus behind a small
// interface so components only ever attach fields and log.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract used across the module
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	// WithComponent tags entries with the emitting component
	WithComponent(component string) Logger
	// WithClient tags entries with the client whose books are being processed
	WithClient(clientID string) Logger
}

// Fields are structured key-value pairs attached to an entry
type Fields map[string]interface{}

// Level is a minimum severity
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var logrusLevels = map[Level]logrus.Level{
	DebugLevel: logrus.DebugLevel,
	InfoLevel:  logrus.InfoLevel,
	WarnLevel:  logrus.WarnLevel,
	ErrorLevel: logrus.ErrorLevel,
}

// Format is the entry encoding
type Format string

const (
	JSONFormat Format = "json"
	TextFormat Format = "text"
)

// Output is where entries are written
type Output string

const (
	StdoutOutput Output = "stdout"
	StderrOutput Output = "stderr"
	FileOutput   Output = "file"
)

// Config configures a logger. It is embedded in the application config
// under the "logging" key.
type Config struct {
	Level            Level  `json:"level" mapstructure:"level"`
	Format           Format `json:"format" mapstructure:"format"`
	Output           Output `json:"output" mapstructure:"output"`
	File             string `json:"file,omitempty" mapstructure:"file"`
	DisableTimestamp bool   `json:"disable_timestamp,omitempty" mapstructure:"disable_timestamp"`
	CallerInfo       bool   `json:"caller_info,omitempty" mapstructure:"caller_info"`
}

// DefaultConfig logs info and above as text on stderr, keeping stdout free
// for command results
func DefaultConfig() *Config {
	return &Config{Level: InfoLevel, Format: TextFormat, Output: StderrOutput}
}

// Validate reports the first unusable setting
func (c *Config) Validate() error {
	if _, ok := logrusLevels[c.Level]; !ok {
		return fmt.Errorf("invalid log level %q, expected debug, info, warn or error", c.Level)
	}
	switch c.Format {
	case JSONFormat, TextFormat:
	default:
		return fmt.Errorf("invalid log format %q, expected json or text", c.Format)
	}
	switch c.Output {
	case StdoutOutput, StderrOutput:
	case FileOutput:
		if strings.TrimSpace(c.File) == "" {
			return errors.New("logging.file is required when logging.output is file")
		}
	default:
		return fmt.Errorf("invalid log output %q, expected stdout, stderr or file", c.Output)
	}
	return nil
}

type entryLogger struct {
	entry *logrus.Entry
}

// NewLogger builds a logger writing to the configured output
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var w io.Writer
	switch config.Output {
	case StdoutOutput:
		w = os.Stdout
	case FileOutput:
		if err := os.MkdirAll(filepath.Dir(config.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		w = file
	default:
		w = os.Stderr
	}
	return build(config, w), nil
}

// NewWithWriter builds a logger writing to w, ignoring config.Output
func NewWithWriter(config *Config, w io.Writer) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return build(config, w), nil
}

func build(config *Config, w io.Writer) Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrusLevels[config.Level])
	base.SetReportCaller(config.CallerInfo)

	caller := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}
	if config.Format == JSONFormat {
		base.SetFormatter(&logrus.JSONFormatter{
			DisableTimestamp: config.DisableTimestamp,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: caller,
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: config.DisableTimestamp,
			FullTimestamp:    !config.DisableTimestamp,
			TimestampFormat:  "2006-01-02 15:04:05",
			CallerPrettyfier: caller,
		})
	}
	return &entryLogger{entry: logrus.NewEntry(base)}
}

func (l *entryLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *entryLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *entryLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *entryLogger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *entryLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *entryLogger) WithField(key string, value interface{}) Logger {
	return &entryLogger{entry: l.entry.WithField(key, value)}
}

func (l *entryLogger) WithFields(fields Fields) Logger {
	return &entryLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *entryLogger) WithError(err error) Logger {
	return &entryLogger{entry: l.entry.WithError(err)}
}

func (l *entryLogger) WithComponent(component string) Logger {
	return l.WithField("component", component)
}

func (l *entryLogger) WithClient(clientID string) Logger {
	return l.WithField("client_id", clientID)
}

var (
	globalMu sync.RWMutex
	global   Logger = build(DefaultConfig(), os.Stderr)
)

// SetGlobalLogger replaces the process-wide logger. Components resolve the
// global logger when they are constructed, so it should be set first.
func SetGlobalLogger(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// GetGlobalLogger returns the process-wide logger
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}
