package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpdt.log")
	w, err := NewRotatingWriter(path, 10, 0, false)
	require.NoError(t, err)

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestRotatingWriterRotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpdt.log")
	w, err := NewRotatingWriter(path, 1, 0, false)
	require.NoError(t, err)
	defer w.Close()

	// Two writes that together exceed 1 MB force a rotation.
	chunk := strings.Repeat("x", 600*1024)
	_, err = w.Write([]byte(chunk))
	require.NoError(t, err)
	_, err = w.Write([]byte(chunk))
	require.NoError(t, err)

	rotated, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, rotated, 1)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
}

func TestRotatingWriterCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "mpdt.log")
	w, err := NewRotatingWriter(path, 10, 0, false)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.FileExists(t, path)
}

func TestRotatingWriterCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpdt.log")
	w, err := NewRotatingWriter(path, 10, 0, false)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
