package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvPrefix is prepended to every environment variable the server reads.
const EnvPrefix = "STREAMSERVER_"

// Flag names shared between the CLI and ApplyEnv so an explicitly set flag
// always wins over the environment.
const (
	FlagPath           = "path"
	FlagPort           = "port"
	FlagLogLevel       = "log-level"
	FlagMaxConnections = "max-connections"
	FlagH2C            = "h2c"
	FlagAccessLog      = "access-log"
)

// ApplyEnv overlays STREAMSERVER_* environment variables onto cfg. Values for
// flags present in changed are skipped.
func ApplyEnv(cfg *Config, changed map[string]bool) error {
	if v := os.Getenv(EnvPrefix + "PATH"); v != "" && !changed[FlagPath] {
		cfg.Files.Root = v
	}
	if v := os.Getenv(EnvPrefix + "PORT"); v != "" && !changed[FlagPort] {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sPORT: %w", EnvPrefix, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" && !changed[FlagLogLevel] {
		cfg.Logging.LogLevel = LogLevel(v)
	}
	if v := os.Getenv(EnvPrefix + "MAX_CONNECTIONS"); v != "" && !changed[FlagMaxConnections] {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sMAX_CONNECTIONS: %w", EnvPrefix, err)
		}
		cfg.Server.MaxConnections = n
	}
	if v := os.Getenv(EnvPrefix + "H2C"); v != "" && !changed[FlagH2C] {
		cfg.Server.EnableH2C = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "ACCESS_LOG"); v != "" && !changed[FlagAccessLog] {
		cfg.Logging.AccessLog.Enabled = v == "true" || v == "1"
	}
	return nil
}
