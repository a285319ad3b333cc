package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Help(t *testing.T) {
	out, err := runCmd(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "providers", "migrate", "health", "version"} {
		assert.Contains(t, out, sub)
	}
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "--env-file")
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "eventimage "+Version))
	assert.Contains(t, out, "Git Commit")

	out, err = runCmd(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "Build Time")
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCmd(t, "deploy")
	assert.Error(t, err)
}

func TestMigrateCmd_SQLite(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "eventimage.db")

	_, err := runCmd(t, "migrate", "--db-type", "sqlite", "--db-url", dsn, "up")
	require.NoError(t, err)

	out, err := runCmd(t, "migrate", "--db-type", "sqlite", "--db-url", dsn, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 2")

	// 负数步数不被当作参数标志
	_, err = runCmd(t, "migrate", "--db-type", "sqlite", "--db-url", dsn, "steps", "-1")
	require.NoError(t, err)

	out, err = runCmd(t, "migrate", "--db-type", "sqlite", "--db-url", dsn, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 1")
}

func TestMigrateCmd_Errors(t *testing.T) {
	_, err := runCmd(t, "migrate")
	assert.Error(t, err)

	dsn := "file:" + filepath.Join(t.TempDir(), "eventimage.db")
	_, err = runCmd(t, "migrate", "--db-type", "sqlite", "--db-url", dsn, "sideways")
	assert.ErrorContains(t, err, "unknown migrate action")

	_, err = runCmd(t, "migrate", "--db-type", "oracle", "--db-url", "x", "up")
	assert.ErrorContains(t, err, "failed to create migrator")
}

func TestProvidersCmd_NothingConfigured(t *testing.T) {
	t.Setenv("EVENTIMAGE_AUTH_ENABLED", "false")

	out, err := runCmd(t, "providers", "--env-file", filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 8)
	assert.Contains(t, out, "openai")
	assert.Contains(t, out, "false")
}

func TestProvidersCmd_InvalidConfig(t *testing.T) {
	t.Setenv("EVENTIMAGE_LOG_LEVEL", "loud")
	_, err := runCmd(t, "providers", "--env-file", filepath.Join(t.TempDir(), "none.env"))
	assert.ErrorContains(t, err, "failed to load config")
}
