package pathsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytes(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", HashBytes(nil))
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", HashBytes([]byte("hello")))
}

func TestHashFileMatchesHashBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := []byte("some file content\nwith multiple lines\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes(content), got)
}

func TestHashFileMissing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
