package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with a component name.
type Logger struct {
	*slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Format    string // "text" (colored) or "json"
	Component string
	Writer    io.Writer
}

// ConfigFromEnv builds a Config from LOG_LEVEL and LOG_FORMAT style values.
func ConfigFromEnv(level, format, component string) Config {
	return Config{
		Level:     ParseLevel(level),
		Format:    strings.ToLower(strings.TrimSpace(format)),
		Component: component,
		Writer:    os.Stderr,
	}
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler returns a tint handler for text output and a JSON handler otherwise.
func NewHandler(config Config) slog.Handler {
	w := config.Writer
	if w == nil {
		w = os.Stderr
	}
	if config.Format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: config.Level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      config.Level,
		TimeFormat: time.Kitchen,
	})
}

func New(config Config) *Logger {
	component := config.Component
	if component == "" {
		component = ComponentApp
	}
	return &Logger{
		Logger:    slog.New(NewHandler(config)).With(FieldComponent, component),
		component: component,
	}
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), component: l.component}
}

// WithComponent returns a logger tagged with a different component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(FieldComponent, component), component: component}
}

// SetDefault sets the default logger for the application
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

func (l *Logger) Component() string {
	return l.component
}
