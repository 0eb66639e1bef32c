package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrorTracker receives errors logged at Error level (e.g. Sentry).
type ErrorTracker interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
}

var globalLogger *Logger

// Logger wraps zap.SugaredLogger with optional error tracking.
type Logger struct {
	*zap.SugaredLogger
	tracker   ErrorTracker
	component string
}

// Options controls how the global logger is built.
type Options struct {
	Level string // debug, info, warn, error
	Env   string // "production" switches to JSON output
	File  string // optional rotating log file
}

// Init builds the global logger. Console output is always enabled; when
// opts.File is set, a rotating JSON file sink is tee'd in.
func Init(opts Options) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var consoleEncoder zapcore.Encoder
	if opts.Env == "production" {
		consoleEncoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(encCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			Compress:   true,
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.TimeKey = "timestamp"
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(rotator), level))
	}

	l := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	globalLogger = &Logger{SugaredLogger: l.Sugar()}
	return nil
}

// SetErrorTracker attaches a tracker to the global logger.
func SetErrorTracker(t ErrorTracker) {
	Get().tracker = t
}

// Get returns the global logger, falling back to a development logger if
// Init was never called (tests, CLI).
func Get() *Logger {
	if globalLogger == nil {
		l, _ := zap.NewDevelopment(zap.AddCallerSkip(1))
		globalLogger = &Logger{SugaredLogger: l.Sugar()}
	}
	return globalLogger
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// With creates a child logger with additional fields. A "component" key is
// remembered and used as a tag for tracked errors.
func (l *Logger) With(args ...interface{}) *Logger {
	component := l.component
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok && k == "component" {
			component = fmt.Sprint(args[i+1])
		}
	}
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		tracker:       l.tracker,
		component:     component,
	}
}

// Errorw logs at error level and forwards to the tracker when one is set.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
	if l.tracker == nil {
		return
	}
	err := fmt.Errorf("%s", msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok && k == "error" {
			if e, ok := keysAndValues[i+1].(error); ok {
				err = fmt.Errorf("%s: %w", msg, e)
			}
		}
	}
	l.tracker.CaptureError(context.Background(), err, map[string]string{"component": l.component})
}

// Sync flushes buffered log entries.
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.SugaredLogger.Sync()
	}
}
