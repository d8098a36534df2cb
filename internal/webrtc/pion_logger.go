package webrtc

import (
	"strings"

	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// logrusLoggerFactory 把 pion 内部日志接入 logrus
type logrusLoggerFactory struct {
	level logging.LogLevel
	base  *logrus.Entry
}

// NewLogrusLoggerFactory level 为 pion 日志的最低输出级别
func NewLogrusLoggerFactory(level string, base *logrus.Entry) logging.LoggerFactory {
	if base == nil {
		base = logrus.WithField("component", "pion")
	}
	return &logrusLoggerFactory{level: parsePionLevel(level), base: base}
}

func (f *logrusLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &logrusLeveledLogger{level: f.level, entry: f.base.WithField("scope", scope)}
}

func parsePionLevel(level string) logging.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled
	case "error":
		return logging.LogLevelError
	case "info":
		return logging.LogLevelInfo
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	default:
		return logging.LogLevelWarn
	}
}

type logrusLeveledLogger struct {
	level logging.LogLevel
	entry *logrus.Entry
}

func (l *logrusLeveledLogger) enabled(level logging.LogLevel) bool {
	return l.level >= level && level != logging.LogLevelDisabled
}

func (l *logrusLeveledLogger) Trace(msg string) {
	if l.enabled(logging.LogLevelTrace) {
		l.entry.Trace(msg)
	}
}

func (l *logrusLeveledLogger) Tracef(format string, args ...interface{}) {
	if l.enabled(logging.LogLevelTrace) {
		l.entry.Tracef(format, args...)
	}
}

func (l *logrusLeveledLogger) Debug(msg string) {
	if l.enabled(logging.LogLevelDebug) {
		l.entry.Debug(msg)
	}
}

func (l *logrusLeveledLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logging.LogLevelDebug) {
		l.entry.Debugf(format, args...)
	}
}

func (l *logrusLeveledLogger) Info(msg string) {
	if l.enabled(logging.LogLevelInfo) {
		l.entry.Info(msg)
	}
}

func (l *logrusLeveledLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logging.LogLevelInfo) {
		l.entry.Infof(format, args...)
	}
}

func (l *logrusLeveledLogger) Warn(msg string) {
	if l.enabled(logging.LogLevelWarn) {
		l.entry.Warn(msg)
	}
}

func (l *logrusLeveledLogger) Warnf(format string, args ...interface{}) {
	if l.enabled(logging.LogLevelWarn) {
		l.entry.Warnf(format, args...)
	}
}

func (l *logrusLeveledLogger) Error(msg string) {
	if l.enabled(logging.LogLevelError) {
		l.entry.Error(msg)
	}
}

func (l *logrusLeveledLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logging.LogLevelError) {
		l.entry.Errorf(format, args...)
	}
}
