package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Options controls how the package logger is built.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

var (
	defaultLogger zerolog.Logger
	once          sync.Once
	mu            sync.RWMutex
)

// Init initializes the default logger with console output on stderr at info level.
// It is safe to call repeatedly; only the first call has an effect.
func Init() {
	once.Do(func() {
		set(build(Options{}))
	})
}

// Configure replaces the default logger. The CLI calls it after the config is loaded.
func Configure(opts Options) {
	once.Do(func() {})
	set(build(opts))
}

func build(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if !strings.EqualFold(opts.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: !IsTerminal(out)}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func set(l zerolog.Logger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// Get returns the initialized default logger.
func Get() *zerolog.Logger {
	Init()
	mu.RLock()
	defer mu.RUnlock()
	l := defaultLogger
	return &l
}

// With returns a child logger carrying the given key/value pairs, e.g. the attempt id.
func With(kv ...any) *zerolog.Logger {
	l := Get().With().Fields(kv).Logger()
	return &l
}

// Info logs an informational message with optional key/value pairs.
func Info(msg string, kv ...any) {
	Get().Info().Fields(kv).Msg(msg)
}

// Warn logs a warning message with optional key/value pairs.
func Warn(msg string, kv ...any) {
	Get().Warn().Fields(kv).Msg(msg)
}

// Error logs an error message. A nil err is allowed.
func Error(msg string, err error, kv ...any) {
	Get().Error().Err(err).Fields(kv).Msg(msg)
}

// Debug logs a debug message with optional key/value pairs.
func Debug(msg string, kv ...any) {
	Get().Debug().Fields(kv).Msg(msg)
}
