package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nyx.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesNumbersAndStrings(t *testing.T) {
	path := writeConfig(t, "# comment line\nreplica_factor=2\nthrottle=1000\nname=prod\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	n, ok := cfg.GetNumber("replica_factor")
	require.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = cfg.GetNumber("throttle")
	require.True(t, ok)
	assert.Equal(t, 1000, n)

	assert.Equal(t, "prod", cfg.GetString("name"))
}

func TestLoadParsesFloats(t *testing.T) {
	path := writeConfig(t, "backoff_multiplier=1.5\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	f, ok := cfg.GetFloat("backoff_multiplier")
	require.True(t, ok)
	assert.InDelta(t, 1.5, f, 0.0001)
}

func TestLoadFirstOccurrenceWins(t *testing.T) {
	path := writeConfig(t, "replica_factor=2\nreplica_factor=5\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	n, ok := cfg.GetNumber("replica_factor")
	require.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestLoadSkipsCommentsAndBlankLines(t *testing.T) {
	path := writeConfig(t, "\n# full comment\nreplica_factor=3\n\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	n, ok := cfg.GetNumber("replica_factor")
	require.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeConfig(t, "replica_factor\n")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrMalformedLine)
}

func TestGetNumberAbsentKey(t *testing.T) {
	path := writeConfig(t, "replica_factor=2\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	_, ok := cfg.GetNumber("throttle")
	assert.False(t, ok)
}
