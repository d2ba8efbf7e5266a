package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/dmitrymomot/meterkit/pkg/environment"
)

// Format is the output encoding of a logger.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// profile is the level and format an environment starts from.
type profile struct {
	level  slog.Level
	format Format
}

var profiles = map[environment.Environment]profile{
	environment.Development: {level: slog.LevelDebug, format: FormatText},
	environment.Staging:     {level: slog.LevelInfo, format: FormatJSON},
	environment.Production:  {level: slog.LevelInfo, format: FormatJSON},
}

type config struct {
	level      slog.Level
	format     Format
	output     io.Writer
	source     bool
	attrs      []slog.Attr
	extractors []ContextExtractor
}

// Option configures New.
type Option func(*config)

func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithLevelName parses "debug", "info", "warn" or "error" (offsets such as
// "warn+2" are accepted). An empty or unknown name keeps the current level.
func WithLevelName(name string) Option {
	return func(c *config) {
		var l slog.Level
		if err := l.UnmarshalText([]byte(name)); err == nil {
			c.level = l
		}
	}
}

// WithFormat ignores formats other than FormatJSON and FormatText.
func WithFormat(f Format) Option {
	return func(c *config) {
		if f == FormatJSON || f == FormatText {
			c.format = f
		}
	}
}

func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithSource adds the calling file and line to every record.
func WithSource() Option {
	return func(c *config) { c.source = true }
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) { c.attrs = append(c.attrs, attrs...) }
}

// WithContextExtractors adds attributes taken from the context of each call.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		for _, ex := range extractors {
			if ex != nil {
				c.extractors = append(c.extractors, ex)
			}
		}
	}
}

// WithEnvironment applies the level and format of the named APP_ENV value and
// stamps service and env on every record. Unknown values fall back to
// development. Options given after it override its level and format.
func WithEnvironment(env, service string) Option {
	return func(c *config) {
		parsed, err := environment.Parse(env)
		if err != nil {
			parsed = environment.Development
		}
		p := profiles[parsed]
		c.level, c.format = p.level, p.format
		c.attrs = append(c.attrs, slog.String("env", parsed.String()))
		if service != "" {
			c.attrs = append(c.attrs, slog.String("service", service))
		}
	}
}

// New builds a logger. Without options it writes JSON at info level to stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo, format: FormatJSON, output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}

	ho := &slog.HandlerOptions{Level: c.level, AddSource: c.source}
	var h slog.Handler
	if c.format == FormatText {
		h = slog.NewTextHandler(c.output, ho)
	} else {
		h = slog.NewJSONHandler(c.output, ho)
	}
	if len(c.attrs) > 0 {
		h = h.WithAttrs(c.attrs)
	}
	if len(c.extractors) > 0 {
		h = contextHandler{Handler: h, extractors: c.extractors}
	}
	return slog.New(h)
}

// SetAsDefault installs l as the slog default logger.
func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}
