package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_ReadsFileWithoutOverriding(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(f, []byte("LABLINK_TEST_A=fromfile\nLABLINK_TEST_B=fromfile\n"), 0o600))
	t.Setenv("LABLINK_TEST_B", "fromenv")
	t.Cleanup(func() { _ = os.Unsetenv("LABLINK_TEST_A") })

	require.NoError(t, LoadEnv(f))

	assert.Equal(t, "fromfile", os.Getenv("LABLINK_TEST_A"))
	assert.Equal(t, "fromenv", os.Getenv("LABLINK_TEST_B"))
}

func TestLoadEnv_MissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "nope.env")))
}
