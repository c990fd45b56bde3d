package daemon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebvel/dolar-pipeline/cmd/web-service/daemon"
)

func TestVersion(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err, "New() error")

	a.SetArgs("version")
	require.NoError(t, a.Run(), "version command should succeed")
	assert.False(t, a.UsageError(), "version command should not be a usage error")
}

func TestHelp(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err, "New() error")

	a.SetArgs("--help")
	require.NoError(t, a.Run(), "help should succeed")
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err, "New() error")

	a.SetArgs("--unknown-flag")
	require.Error(t, a.Run(), "unknown flag should fail")
	assert.True(t, a.UsageError(), "unknown flag should be a usage error")
}

func TestMissingDatabaseConfigFails(t *testing.T) {
	t.Chdir(t.TempDir())

	a, err := daemon.New()
	require.NoError(t, err, "New() error")

	a.SetArgs()
	require.Error(t, a.Run(), "running without database configuration should fail")
	assert.False(t, a.UsageError(), "configuration errors are not usage errors")
}

func TestUnresolvedPlaceholderConfigFails(t *testing.T) {
	t.Chdir(t.TempDir())

	a, err := daemon.New()
	require.NoError(t, err, "New() error")

	a.SetArgs(
		"--db-host", "${DB_HOST}",
		"--db-user", "app",
		"--db-password", "secret",
		"--db-name", "dolar",
	)
	require.Error(t, a.Run(), "running with placeholder configuration should fail")
	assert.False(t, a.UsageError(), "configuration errors are not usage errors")
}
