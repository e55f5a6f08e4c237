package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"comfyoptim/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Tag prefixes every line the patcher writes.
const Tag = "000_ComfyUI-Optim"

// CriticalLevel is rendered as CRITICAL. It is only ever written through
// Critical, which never exits the process.
const CriticalLevel = logrus.FatalLevel

// Formatter renders "[tag] [LEVEL] message key=value".
type Formatter struct {
	Tag string
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "[%s] [%s] %s", f.Tag, LevelName(e.Level), e.Message)
	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// LevelName maps logrus levels to the severity names used in config files.
func LevelName(l logrus.Level) string {
	switch l {
	case logrus.TraceLevel, logrus.DebugLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARNING"
	case logrus.ErrorLevel:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}

// ParseLevel accepts DEBUG, INFO, WARNING/WARN, ERROR, CRITICAL/FATAL in any
// case. Unknown names fall back to INFO.
func ParseLevel(name string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG", "NOTSET":
		return logrus.DebugLevel
	case "INFO":
		return logrus.InfoLevel
	case "WARNING", "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	case "CRITICAL", "FATAL":
		return CriticalLevel
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(name)); err == nil {
		if lvl < CriticalLevel {
			return CriticalLevel
		}
		return lvl
	}
	return logrus.InfoLevel
}

// New returns the patcher logger writing to stderr at INFO. It is the only
// handler the patcher ever installs; Apply adjusts its level once the config
// is known.
func New() *logrus.Logger {
	return NewWithOutput(os.Stderr)
}

// NewWithOutput is New with a custom sink.
func NewWithOutput(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&Formatter{Tag: Tag})
	logger.SetLevel(logrus.InfoLevel)
	return logger
}

// NewHostLogger returns the logger handed to the reference host. It is
// separate from the patcher logger so host lines do not carry the tag.
// A non-empty file tees output into a rotated log file.
func NewHostLogger(format, level, file string) *logrus.Logger {
	return newHostLogger(os.Stderr, format, level, file)
}

func newHostLogger(console io.Writer, format, level, file string) *logrus.Logger {
	logger := logrus.New()
	if file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   false,
		}
		logger.SetOutput(io.MultiWriter(console, rotator))
	} else {
		logger.SetOutput(console)
	}
	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// Apply sets the minimum severity from cfg. Debug mode forces DEBUG.
func Apply(logger *logrus.Logger, cfg *config.Config) {
	logger.SetLevel(ParseLevel(cfg.PatcherLogLevel))
	if cfg.PatcherDebugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.Debug("Patcher debug mode enabled.")
	}
	logger.Debugf("Current patcher configuration: %s", cfg)
}

// Critical logs at CRITICAL without terminating the process.
func Critical(logger logrus.FieldLogger, format string, args ...any) {
	switch l := logger.(type) {
	case *logrus.Logger:
		l.Logf(CriticalLevel, format, args...)
	case *logrus.Entry:
		l.Logf(CriticalLevel, format, args...)
	default:
		logger.Errorf(format, args...)
	}
}

// NewTestLogger returns a logger that writes into buf at DEBUG.
func NewTestLogger(buf *bytes.Buffer) *logrus.Logger {
	logger := NewWithOutput(buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
