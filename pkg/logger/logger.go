// Package logger provides the structured logger shared by every component.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls logger construction.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // "json" or "text"
	Output io.Writer
}

// Logger wraps a logrus logger and tags every entry with its component name.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a logger for the named component.
func New(component string, cfg Config) *Logger {
	base := logrus.New()

	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	} else {
		base.SetOutput(os.Stderr)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if component != "" {
		base.AddHook(componentHook{component: component})
	}

	return &Logger{Logger: base, component: component}
}

// NewDefault creates an info-level text logger writing to stderr.
func NewDefault(component string) *Logger {
	return New(component, Config{})
}

// NewNop creates a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return New("", Config{Output: io.Discard})
}

// Component returns the component name attached to entries.
func (l *Logger) Component() string {
	return l.component
}

// Named derives a logger for a sub-component sharing output, level and formatter.
func (l *Logger) Named(component string) *Logger {
	child := logrus.New()
	child.SetOutput(l.Out)
	child.SetFormatter(l.Formatter)
	child.SetLevel(l.GetLevel())
	child.AddHook(componentHook{component: component})
	return &Logger{Logger: child, component: component}
}

type componentHook struct {
	component string
}

func (h componentHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h componentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["component"]; !ok {
		entry.Data["component"] = h.component
	}
	return nil
}
