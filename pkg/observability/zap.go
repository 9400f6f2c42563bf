package observability

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger forwards events to a zap logger. The event name becomes the log
// message and the remaining metadata is attached as fields.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps an existing zap logger. A nil logger discards everything.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// NewZapWriterLogger builds a zap logger writing to w. format is "json" or
// "console"; level is one of debug, info, warn or error.
func NewZapWriterLogger(w io.Writer, format, level string) (*ZapLogger, error) {
	if w == nil {
		return nil, fmt.Errorf("zap logger requires a writer")
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	case "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), lvl)
	return NewZapLogger(zap.New(core)), nil
}

// Log implements Logger.
func (l *ZapLogger) Log(_ context.Context, event Event) error {
	if l == nil || l.logger == nil {
		return fmt.Errorf("zap logger is not configured")
	}

	fields := make([]zap.Field, 0, len(event.Fields)+3)
	if event.Node != "" {
		fields = append(fields, zap.String("node", event.Node))
	}
	if event.Component != "" {
		fields = append(fields, zap.String("component", event.Component))
	}
	if event.Message != "" {
		fields = append(fields, zap.String("detail", event.Message))
	}
	for _, key := range sortedFieldKeys(event.Fields) {
		fields = append(fields, zap.Any(key, event.Fields[key]))
	}

	if ce := l.logger.Check(zapLevel(event.Level), event.Event); ce != nil {
		if !event.Timestamp.IsZero() {
			ce.Time = event.Timestamp
		}
		ce.Write(fields...)
	}
	return nil
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync() error {
	if l == nil || l.logger == nil {
		return nil
	}
	return l.logger.Sync()
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func sortedFieldKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Logger = (*ZapLogger)(nil)
