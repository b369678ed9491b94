package cli

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "gpsform", cmd.Use)
	assert.Contains(t, cmd.Long, "durable SQLite queue")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "submit", "pending", "sync", "probe", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	logFormatFlag := cmd.PersistentFlags().Lookup("log-format")
	require.NotNil(t, logFormatFlag)
	assert.Equal(t, "text", logFormatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"db", "endpoint", "probe-url", "probe", "timeout", "initial-online",
		"watch", "watch-interval", "clear-after-submit", "addr", "fix", "trace"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), "serve should have --%s", name)
	}
	assert.Equal(t, "gpsform.db", serveCmd.Flags().Lookup("db").DefValue)
	assert.Equal(t, "probe", serveCmd.Flags().Lookup("initial-online").DefValue)
}

func TestSubmitCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	submitCmd, _, err := cmd.Find([]string{"submit"})
	require.NoError(t, err)

	for _, name := range []string{"lat", "lon", "offline", "db", "endpoint", "fix"} {
		assert.NotNil(t, submitCmd.Flags().Lookup(name), "submit should have --%s", name)
	}
	assert.Nil(t, submitCmd.Flags().Lookup("addr"), "submit does not listen")
}

func TestPendingCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	pendingCmd, _, err := cmd.Find([]string{"pending"})
	require.NoError(t, err)

	require.NotNil(t, pendingCmd.Flags().Lookup("id"))
	require.NotNil(t, pendingCmd.Flags().Lookup("db"))
	assert.Nil(t, pendingCmd.Flags().Lookup("endpoint"))
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"format", []string{"--format", "invalid", "probe"}, "invalid format"},
		{"log_format", []string{"--log-format", "xml", "probe"}, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	setupLogging(buf, &RootOptions{LogFormat: "json"})
	slog.Info("record buffered", "id", 7)
	slog.Debug("hidden")
	assert.Contains(t, buf.String(), `"msg":"record buffered"`)
	assert.Contains(t, buf.String(), `"id":7`)
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	setupLogging(buf, &RootOptions{LogFormat: "text", Verbose: true})
	slog.Debug("shown")
	assert.Contains(t, buf.String(), "level=DEBUG msg=shown")
}
