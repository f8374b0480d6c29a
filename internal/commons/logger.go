// Package commons holds the small set of cross-cutting helpers every
// component in this repository is built on: the structured logger.
package commons

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging contract used throughout the session engine. It
// mirrors the subset of zap.SugaredLogger that components actually call:
// printf-style for free-form messages, "w"-suffixed for structured fields
// on events worth querying later (dropped frames, session end reasons).
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	Info(msg string)
	Warn(msg string)
	Error(msg string)

	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	// With returns a derived Logger that always includes the given fields,
	// e.g. logger.With("session_id", id) scoped to one orchestrator.
	With(keysAndValues ...any) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// Options configure the concrete logger.
type Options struct {
	// Development selects console encoding and debug level; production
	// selects JSON encoding and info level.
	Development bool
	// LogFilePath, when non-empty, rotates logs through lumberjack
	// instead of stderr.
	LogFilePath string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

// New builds a Logger backed by zap, choosing encoder and level for
// development vs. production.
func New(opts Options) (Logger, error) {
	level := zapcore.InfoLevel
	encoderCfg := zap.NewProductionEncoderConfig()
	encoder := zapcore.NewJSONEncoder(encoderCfg)
	if opts.Development {
		level = zapcore.DebugLevel
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer
	if opts.LogFilePath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.LogFilePath,
			MaxSize:    defaultInt(opts.MaxSizeMB, 100),
			MaxBackups: defaultInt(opts.MaxBackups, 5),
			MaxAge:     defaultInt(opts.MaxAgeDays, 14),
			Compress:   true,
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(encoder, sink, level)
	base := zap.New(core, zap.AddCaller())
	return &zapLogger{s: base.Sugar()}, nil
}

func defaultInt(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

func (l *zapLogger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }

func (l *zapLogger) Info(msg string)  { l.s.Info(msg) }
func (l *zapLogger) Warn(msg string)  { l.s.Warn(msg) }
func (l *zapLogger) Error(msg string) { l.s.Error(msg) }

func (l *zapLogger) Infow(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}
