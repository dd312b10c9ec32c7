package logger

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"example.com/streamserver/internal/config"
)

// LogFields carries structured context for a log entry.
type LogFields map[string]interface{}

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// Logger is the process-wide logger. It owns an error log, filtered by a
// level that can be changed at runtime, and an optional access log.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *zerolog.Logger
	level     atomic.Int32

	mu      sync.Mutex
	closers []io.Closer
}

// NewLogger creates and configures a new Logger instance from cfg.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	l := &Logger{}
	errOut, err := l.openTarget(cfg.ErrorLog.Target, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}
	var accessOut io.Writer
	if cfg.AccessLog.Enabled {
		accessOut, err = l.openTarget(cfg.AccessLog.Target, os.Stdout)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log: %w", err)
		}
	}

	l.init(formatWriter(errOut, cfg.ErrorLog.Format), accessOut, cfg.AccessLog.Format, cfg.LogLevel)
	return l, nil
}

// NewWithWriters builds a JSON logger over arbitrary writers. A nil accessOut
// disables access logging.
func NewWithWriters(errorOut, accessOut io.Writer, level config.LogLevel) *Logger {
	l := &Logger{}
	l.init(errorOut, accessOut, "json", level)
	return l
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *Logger {
	return NewWithWriters(io.Discard, nil, config.LogLevelError)
}

func (l *Logger) init(errorOut, accessOut io.Writer, accessFormat string, level config.LogLevel) {
	l.errorLog = zerolog.New(errorOut).With().Timestamp().Logger()
	if accessOut != nil {
		al := zerolog.New(formatWriter(accessOut, accessFormat)).With().Timestamp().Logger()
		l.accessLog = &al
	}
	l.SetLevel(level)
}

func (l *Logger) openTarget(target string, def *os.File) (io.Writer, error) {
	switch target {
	case "":
		return def, nil
	case "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.closers = append(l.closers, f)
	l.mu.Unlock()
	return f, nil
}

func formatWriter(w io.Writer, format string) io.Writer {
	if format == "console" {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return w
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLevel changes the error log threshold. Safe for concurrent use.
func (l *Logger) SetLevel(level config.LogLevel) {
	l.level.Store(int32(zerologLevel(level)))
}

// Level returns the current error log threshold.
func (l *Logger) Level() config.LogLevel {
	switch zerolog.Level(l.level.Load()) {
	case zerolog.DebugLevel:
		return config.LogLevelDebug
	case zerolog.WarnLevel:
		return config.LogLevelWarning
	case zerolog.ErrorLevel:
		return config.LogLevelError
	}
	return config.LogLevelInfo
}

func (l *Logger) log(level zerolog.Level, msg string, fields []LogFields) {
	if l == nil || level < zerolog.Level(l.level.Load()) {
		return
	}
	event := l.errorLog.WithLevel(level)
	for _, f := range fields {
		if f != nil {
			event = event.Fields(map[string]interface{}(f))
		}
	}
	event.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...LogFields) { l.log(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...LogFields)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...LogFields)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...LogFields) { l.log(zerolog.ErrorLevel, msg, fields) }

// Access writes one access log record for a completed request.
func (l *Logger) Access(req *http.Request, status int, responseBytes int64, duration time.Duration) {
	if l == nil || l.accessLog == nil {
		return
	}

	host, port, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host, port = req.RemoteAddr, "0"
	}

	event := l.accessLog.Log().
		Str("remote_addr", host).
		Str("remote_port", port).
		Str("protocol", req.Proto).
		Str("method", req.Method).
		Str("uri", req.RequestURI).
		Int("status", status).
		Int64("resp_bytes", responseBytes).
		Int64("duration_ms", duration.Milliseconds())
	if rng := req.Header.Get("Range"); rng != "" {
		event = event.Str("range", rng)
	}
	if ua := req.UserAgent(); ua != "" {
		event = event.Str("user_agent", ua)
	}
	if ref := req.Referer(); ref != "" {
		event = event.Str("referer", ref)
	}
	event.Send()
}

// CloseLogFiles closes any log files opened by NewLogger. Standard streams
// are left alone.
func (l *Logger) CloseLogFiles() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}
