package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"example.com/streamserver/internal/config"
	"example.com/streamserver/internal/handlers/staticfileserver"
	"example.com/streamserver/internal/logger"
	"example.com/streamserver/internal/server"
)

var exampleUsage = strings.TrimSpace(`
  streamserver --path ~/Videos
  streamserver --path /srv/media --port 9000 --log-level DEBUG
  streamserver --config /etc/streamserver.toml
`)

// cliFlags holds the raw flag values; only flags the user actually set are
// copied onto the configuration.
type cliFlags struct {
	configPath     string
	path           string
	port           int
	logLevel       string
	maxConnections int
	h2c            bool
	accessLog      bool
}

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:           "streamserver",
		Short:         "Serve a local directory over loopback HTTP with byte-range streaming",
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			cfg, err := buildConfig(flags, changed)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, flags.configPath)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&flags.configPath, "config", "", "Path to a configuration file (TOML, JSON or YAML)")
	fs.StringVar(&flags.path, config.FlagPath, "", "Directory to serve (required unless set in config or environment)")
	fs.IntVar(&flags.port, config.FlagPort, config.DefaultPort, "Port to listen on (loopback only)")
	fs.StringVar(&flags.logLevel, config.FlagLogLevel, string(config.LogLevelInfo), "Log level: DEBUG, INFO, WARNING or ERROR")
	fs.IntVar(&flags.maxConnections, config.FlagMaxConnections, 0, "Maximum simultaneous connections (0 = unlimited)")
	fs.BoolVar(&flags.h2c, config.FlagH2C, false, "Accept cleartext HTTP/2 (h2c)")
	fs.BoolVar(&flags.accessLog, config.FlagAccessLog, true, "Write one access log line per request")
	return cmd
}

// buildConfig layers defaults, the config file, STREAMSERVER_* variables and
// explicitly set flags, in that order, then validates the result.
func buildConfig(flags cliFlags, changed map[string]bool) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if err := config.ApplyEnv(&cfg, changed); err != nil {
		return nil, err
	}
	applyFlags(&cfg, flags, changed)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFlags(cfg *config.Config, flags cliFlags, changed map[string]bool) {
	if changed[config.FlagPath] {
		cfg.Files.Root = flags.path
	}
	if changed[config.FlagPort] {
		cfg.Server.Port = flags.port
	}
	if changed[config.FlagLogLevel] {
		cfg.Logging.LogLevel = config.LogLevel(flags.logLevel)
	}
	if changed[config.FlagMaxConnections] {
		cfg.Server.MaxConnections = flags.maxConnections
	}
	if changed[config.FlagH2C] {
		cfg.Server.EnableH2C = flags.h2c
	}
	if changed[config.FlagAccessLog] {
		cfg.Logging.AccessLog.Enabled = flags.accessLog
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := appLogger.CloseLogFiles(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing log files during shutdown: %v\n", err)
		}
	}()

	if configPath != "" {
		go watchConfig(ctx, configPath, appLogger)
	}

	handler, err := staticfileserver.New(cfg.Files, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create file handler: %w", err)
	}
	cfg.Files.Root = handler.Root()

	srv, err := server.NewServer(cfg, appLogger, handler)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	if err := srv.Serve(ctx); err != nil {
		appLogger.Error("Server exited with an error", logger.LogFields{"error": err.Error()})
		return err
	}
	return nil
}

// watchConfig hot-applies log level changes from the config file. Everything
// else in the file is fixed for the life of the process.
func watchConfig(ctx context.Context, path string, lg *logger.Logger) {
	w := config.NewWatcher(path,
		func(c *config.Config) {
			if c.Logging.LogLevel == lg.Level() {
				return
			}
			lg.SetLevel(c.Logging.LogLevel)
			lg.Info("Log level changed", logger.LogFields{"log_level": string(c.Logging.LogLevel)})
		},
		func(err error) {
			lg.Warn("Config reload failed", logger.LogFields{"error": err.Error()})
		},
	)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		lg.Warn("Config watcher stopped", logger.LogFields{"error": err.Error()})
	}
}
