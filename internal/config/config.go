package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

const (
	// DefaultPort is the port the streaming server binds when none is configured.
	DefaultPort = 8723
	// LoopbackHost is the only address the server is allowed to bind.
	LoopbackHost = "127.0.0.1"
	// MaxChunkSize caps a single read/write in the streaming copy loop.
	MaxChunkSize = 1 << 20
	// DefaultCacheMaxAge is the Cache-Control max-age, in seconds, sent with file responses.
	DefaultCacheMaxAge = 3600
	// DefaultShutdownTimeout bounds how long in-flight requests get after a shutdown signal.
	DefaultShutdownTimeout = "5s"
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server  ServerConfig  `json:"server" toml:"server" yaml:"server"`
	Files   FilesConfig   `json:"files" toml:"files" yaml:"files"`
	Logging LoggingConfig `json:"logging" toml:"logging" yaml:"logging"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Host            string `json:"host,omitempty" toml:"host,omitempty" yaml:"host,omitempty"`
	Port            int    `json:"port,omitempty" toml:"port,omitempty" yaml:"port,omitempty"`
	MaxConnections  int    `json:"max_connections,omitempty" toml:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	EnableH2C       bool   `json:"enable_h2c,omitempty" toml:"enable_h2c,omitempty" yaml:"enable_h2c,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty" toml:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"` // e.g., "5s"
}

// FilesConfig describes the directory tree being served.
type FilesConfig struct {
	Root        string            `json:"root" toml:"root" yaml:"root"`
	MimeTypes   map[string]string `json:"mime_types,omitempty" toml:"mime_types,omitempty" yaml:"mime_types,omitempty"`
	CacheMaxAge int               `json:"cache_max_age,omitempty" toml:"cache_max_age,omitempty" yaml:"cache_max_age,omitempty"`
	ChunkSize   int               `json:"chunk_size,omitempty" toml:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel        `json:"log_level,omitempty" toml:"log_level,omitempty" yaml:"log_level,omitempty"`
	AccessLog AccessLogConfig `json:"access_log" toml:"access_log" yaml:"access_log"`
	ErrorLog  ErrorLogConfig  `json:"error_log" toml:"error_log" yaml:"error_log"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
	Target  string `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Format  string `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target string `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Format string `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
}

// Default returns a Config populated with default values. Files.Root is left
// empty because it has no sensible default.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            LoopbackHost,
			Port:            DefaultPort,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Files: FilesConfig{
			CacheMaxAge: DefaultCacheMaxAge,
			ChunkSize:   MaxChunkSize,
		},
		Logging: LoggingConfig{
			LogLevel: LogLevelInfo,
			AccessLog: AccessLogConfig{
				Enabled: true,
				Target:  "stdout",
				Format:  "json",
			},
			ErrorLog: ErrorLogConfig{
				Target: "stderr",
				Format: "json",
			},
		},
	}
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, fmt.Sprintf("%d", c.Server.Port))
}

// ShutdownGrace returns the parsed shutdown timeout. Validate must have been called.
func (c *Config) ShutdownGrace() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Validate checks the configuration, normalises the document root to an
// absolute path and fills derived defaults.
func (c *Config) Validate() error {
	if c.Files.Root == "" {
		return &ConfigError{Message: "files.root (base directory) is required"}
	}
	abs, err := filepath.Abs(c.Files.Root)
	if err != nil {
		return &ConfigError{Message: "cannot make files.root absolute", Err: err}
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return &ConfigError{Message: fmt.Sprintf("files.root %q is not accessible", abs), Err: err}
	}
	if !fi.IsDir() {
		return &ConfigError{Message: fmt.Sprintf("files.root %q is not a directory", abs)}
	}
	c.Files.Root = abs

	if c.Server.Host == "" {
		c.Server.Host = LoopbackHost
	}
	if ip := net.ParseIP(c.Server.Host); c.Server.Host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return &ConfigError{Message: fmt.Sprintf("server.host %q is not a loopback address", c.Server.Host)}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Message: fmt.Sprintf("server.port %d out of range", c.Server.Port)}
	}
	if c.Server.MaxConnections < 0 {
		return &ConfigError{Message: "server.max_connections must not be negative"}
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return &ConfigError{Message: "server.shutdown_timeout is not a valid duration", Err: err}
	}

	if c.Files.ChunkSize <= 0 || c.Files.ChunkSize > MaxChunkSize {
		c.Files.ChunkSize = MaxChunkSize
	}
	if c.Files.CacheMaxAge < 0 {
		return &ConfigError{Message: "files.cache_max_age must not be negative"}
	}
	for ext, mt := range c.Files.MimeTypes {
		if !strings.HasPrefix(ext, ".") {
			return &ConfigError{Message: fmt.Sprintf("files.mime_types: extension %q must start with '.'", ext)}
		}
		if mt == "" {
			return &ConfigError{Message: fmt.Sprintf("files.mime_types: empty MIME type for %q", ext)}
		}
	}

	level, err := ParseLogLevel(string(c.Logging.LogLevel))
	if err != nil {
		return err
	}
	c.Logging.LogLevel = level

	for _, t := range []string{c.Logging.AccessLog.Target, c.Logging.ErrorLog.Target} {
		if IsFilePath(t) && !filepath.IsAbs(t) {
			return &ConfigError{Message: fmt.Sprintf("log target %q must be stdout, stderr or an absolute path", t)}
		}
	}
	for _, f := range []string{c.Logging.AccessLog.Format, c.Logging.ErrorLog.Format} {
		if f != "" && f != "json" && f != "console" {
			return &ConfigError{Message: fmt.Sprintf("log format %q must be json or console", f)}
		}
	}
	return nil
}

// ParseLogLevel maps a user supplied level name to a LogLevel. An empty name
// yields INFO; WARN is accepted as an alias of WARNING.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return LogLevelInfo, nil
	case "DEBUG":
		return LogLevelDebug, nil
	case "INFO":
		return LogLevelInfo, nil
	case "WARNING", "WARN":
		return LogLevelWarning, nil
	case "ERROR":
		return LogLevelError, nil
	}
	return "", &ConfigError{Message: fmt.Sprintf("invalid log level %q (want DEBUG, INFO, WARNING or ERROR)", s)}
}

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "" && target != "stdout" && target != "stderr"
}

// ConfigError describes a configuration problem, optionally tied to a file.
type ConfigError struct {
	FilePath string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("config")
	if e.FilePath != "" {
		sb.WriteString(" ")
		sb.WriteString(e.FilePath)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }
