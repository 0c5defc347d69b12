package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	require.NoError(t, Write())

	path := filepath.Join(os.TempDir(), pidFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, Remove())
	assert.NoFileExists(t, path)
}

func TestWriteWhenAlreadyRunning(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	// The current process is alive, so a second Write must refuse
	require.NoError(t, Write())

	err := Write()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestWriteReplacesStalePIDFile(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	// A PID far above the kernel's pid_max cannot belong to a live process
	path := filepath.Join(os.TempDir(), pidFile)
	require.NoError(t, os.WriteFile(path, []byte("99999999"), 0o600))

	require.NoError(t, Write())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestWriteCorruptPIDFile(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	path := filepath.Join(os.TempDir(), pidFile)
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o600))

	err := Write()
	require.Error(t, err)
}

func TestRemoveMissingFile(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	require.NoError(t, Remove())
}
