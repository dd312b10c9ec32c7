package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/streamserver/internal/config"
)

func TestBuildConfig_Precedence(t *testing.T) {
	fileRoot := t.TempDir()
	envRoot := t.TempDir()
	flagRoot := t.TempDir()

	cfgPath := filepath.Join(t.TempDir(), "server.toml")
	content := "[server]\nport = 9001\nmax_connections = 4\n\n[files]\nroot = \"" + filepath.ToSlash(fileRoot) + "\"\n\n[logging]\nlog_level = \"ERROR\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	t.Setenv("STREAMSERVER_PATH", envRoot)
	t.Setenv("STREAMSERVER_PORT", "9002")
	t.Setenv("STREAMSERVER_LOG_LEVEL", "WARNING")

	flags := cliFlags{configPath: cfgPath, path: flagRoot, port: 9003, logLevel: "INFO", accessLog: true}
	cfg, err := buildConfig(flags, map[string]bool{"config": true, config.FlagPort: true})
	require.NoError(t, err)

	assert.Equal(t, envRoot, cfg.Files.Root, "env beats file when the flag is unset")
	assert.Equal(t, 9003, cfg.Server.Port, "explicit flag beats env")
	assert.Equal(t, config.LogLevelWarning, cfg.Logging.LogLevel)
	assert.Equal(t, 4, cfg.Server.MaxConnections, "file value survives when nothing overrides it")
}

func TestBuildConfig_FlagsOnly(t *testing.T) {
	root := t.TempDir()
	flags := cliFlags{path: root, port: config.DefaultPort, logLevel: "debug", h2c: true, accessLog: false}
	changed := map[string]bool{config.FlagPath: true, config.FlagLogLevel: true, config.FlagH2C: true, config.FlagAccessLog: true}

	cfg, err := buildConfig(flags, changed)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Files.Root)
	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	assert.Equal(t, config.LogLevelDebug, cfg.Logging.LogLevel)
	assert.True(t, cfg.Server.EnableH2C)
	assert.False(t, cfg.Logging.AccessLog.Enabled)
}

func TestBuildConfig_Errors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		_, err := buildConfig(cliFlags{port: config.DefaultPort}, map[string]bool{})
		assert.ErrorContains(t, err, "required")
	})
	t.Run("missing config file", func(t *testing.T) {
		_, err := buildConfig(cliFlags{configPath: filepath.Join(t.TempDir(), "nope.toml")}, map[string]bool{})
		assert.ErrorContains(t, err, "failed to read configuration file")
	})
	t.Run("root is not a directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "f")
		require.NoError(t, os.WriteFile(file, nil, 0o644))
		_, err := buildConfig(cliFlags{path: file}, map[string]bool{config.FlagPath: true})
		assert.ErrorContains(t, err, "not a directory")
	})
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"config", config.FlagPath, config.FlagPort, config.FlagLogLevel, config.FlagMaxConnections, config.FlagH2C, config.FlagAccessLog} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "8723", cmd.Flags().Lookup(config.FlagPort).DefValue)

	cmd.SetArgs([]string{"unexpected-positional"})
	assert.Error(t, cmd.Execute())
}
