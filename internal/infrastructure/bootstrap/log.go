package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

const (
	configKeyLogLevel      = "log.level"
	configKeyLogFormat     = "log.format"
	configKeyLogFile       = "log.file"
	configKeyLogMaxSizeMB  = "log.max_size_mb"
	configKeyLogMaxBackups = "log.max_backups"
	configKeyLogMaxAgeDays = "log.max_age_days"

	logFormatJSON      = "json"
	logFormatPlainText = "plain-text"
	logFormatTint      = "tint"

	logAttrsKey contextKey = "log_attrs"
)

func stringToSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type logHandler struct {
	slog.Handler
}

// WithLogAttrs adds additional log attributes to the context.
func WithLogAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existingAttrs, ok := ctx.Value(logAttrsKey).([]slog.Attr)
	if !ok {
		existingAttrs = []slog.Attr{}
	}
	merged := make([]slog.Attr, 0, len(existingAttrs)+len(attrs))
	merged = append(merged, existingAttrs...)
	return context.WithValue(ctx, logAttrsKey, append(merged, attrs...))
}

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	if cmdName != "" {
		r.AddAttrs(slog.String("cmd", cmdName))
	}
	if hostname != "" {
		r.AddAttrs(slog.String("hostname", hostname))
	}

	// Add log fields from context
	if attrs, ok := ctx.Value(logAttrsKey).([]slog.Attr); ok {
		for _, v := range attrs {
			r.AddAttrs(v)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logHandler{h.Handler.WithAttrs(attrs)}
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	return &logHandler{h.Handler.WithGroup(name)}
}

func newLogHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	var handler slog.Handler
	switch format {
	case logFormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case logFormatPlainText:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case logFormatTint:
		fallthrough
	default:
		handler = tint.NewHandler(w, &tint.Options{Level: level, NoColor: w != os.Stdout})
	}
	return &logHandler{handler}
}

func logOutput() io.Writer {
	file := strings.TrimSpace(config.GetString(configKeyLogFile))
	if file == "" {
		return os.Stdout
	}
	maxSize := config.GetInt(configKeyLogMaxSizeMB)
	if maxSize <= 0 {
		maxSize = 10
	}
	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: config.GetInt(configKeyLogMaxBackups),
		MaxAge:     config.GetInt(configKeyLogMaxAgeDays),
	}
	return io.MultiWriter(os.Stdout, rotating)
}

func initLog() {
	logLevel := stringToSlogLevel(config.GetString(configKeyLogLevel))
	handler := newLogHandler(logOutput(), config.GetString(configKeyLogFormat), logLevel)
	slog.SetDefault(slog.New(handler))
}
