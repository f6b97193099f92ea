package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"whiteboard/pkg/logger"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "migrate")
}

func TestServeFlags(t *testing.T) {
	cmd := newServeCmd()

	port := cmd.Flags().Lookup("port")
	require.NotNil(t, port)
	assert.Equal(t, "p", port.Shorthand)

	require.NoError(t, cmd.Flags().Parse([]string{"-p", "9090", "--migrate"}))
	assert.True(t, cmd.Flags().Changed("port"))
	migrate, err := cmd.Flags().GetBool("migrate")
	require.NoError(t, err)
	assert.True(t, migrate)
}

func TestListenAddr(t *testing.T) {
	assert.Equal(t, ":8080", listenAddr(""))
	assert.Equal(t, ":9000", listenAddr("9000"))
	assert.Equal(t, ":9000", listenAddr(":9000"))
	assert.Equal(t, "127.0.0.1:9000", listenAddr("127.0.0.1:9000"))
}

func TestLoadConfigInitialisesLogger(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("LOG_LEVEL", "warn")

	cfg := loadConfig()
	t.Cleanup(func() { logger.Init("info") })

	assert.False(t, cfg.EnvFileLoaded)
	assert.True(t, logger.Log.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Log.Core().Enabled(zapcore.InfoLevel))
}
