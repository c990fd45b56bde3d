package daemon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebvel/dolar-pipeline/cmd/ingest-service/daemon"
)

func TestVersion(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err, "New() error")

	a.SetArgs("version")
	require.NoError(t, a.Run(), "version command should succeed")
	assert.False(t, a.UsageError(), "version command should not be a usage error")
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err, "New() error")

	a.SetArgs("--unknown-flag")
	require.Error(t, a.Run(), "unknown flag should fail")
	assert.True(t, a.UsageError(), "unknown flag should be a usage error")
}

func TestMissingConfigFails(t *testing.T) {
	t.Chdir(t.TempDir())

	a, err := daemon.New()
	require.NoError(t, err, "New() error")

	a.SetArgs()
	require.Error(t, a.Run(), "running without database configuration should fail")
	assert.False(t, a.UsageError(), "configuration errors are not usage errors")
}

func TestSpoolModeStillRequiresDatabase(t *testing.T) {
	t.Chdir(t.TempDir())

	a, err := daemon.New()
	require.NoError(t, err, "New() error")

	a.SetArgs("--spool-dir", t.TempDir())
	require.Error(t, a.Run(), "spool mode without database configuration should fail")
	assert.False(t, a.UsageError(), "configuration errors are not usage errors")
}
