package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0644))

	ok, err := PathExists(existing)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, FileExists(existing))

	ok, err = PathExists(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, FileExists(filepath.Join(dir, "missing.json")))
}
