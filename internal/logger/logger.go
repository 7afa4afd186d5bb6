package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger = zap.NewNop().Sugar()

// Init builds the process logger and installs it as the package default
// and as zap's global logger.
func Init(debug bool) *zap.SugaredLogger {
	Logger = New(debug)
	zap.ReplaceGlobals(Logger.Desugar())
	return Logger
}

// New returns a production JSON logger, or a development console logger when debug is set.
func New(debug bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// OrNop returns log, or a discarding logger when log is nil.
func OrNop(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		return Nop()
	}
	return log
}

// Sync flushes buffered entries.
func Sync() {
	_ = Logger.Sync()
}

func Info(msg string, args ...any) {
	Logger.Infow(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Errorw(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debugw(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warnw(msg, args...)
}
