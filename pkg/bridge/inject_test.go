package bridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInjectFixture(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "weather_dev")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "__pycache__"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "plugin.py"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "__pycache__", "plugin.cpython-312.pyc"), []byte("junk"), 0o644))
	return root
}

func TestInjectCopiesTreeAndCleanupRemovesIt(t *testing.T) {
	hostPath := t.TempDir()
	root := writeInjectFixture(t)
	in := NewInjector(hostPath, zerolog.Nop())

	target, err := in.Inject(root, "weather")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(hostPath, "plugins", "weather"), target)

	assert.FileExists(t, filepath.Join(target, "plugin.py"))
	assert.NoDirExists(t, filepath.Join(target, "__pycache__"))
	assert.Equal(t, []string{target}, in.Injected())

	require.NoError(t, in.Cleanup())
	assert.NoDirExists(t, target)
	assert.Empty(t, in.Injected())
}

func TestInjectReplacesPreviousCopy(t *testing.T) {
	hostPath := t.TempDir()
	root := writeInjectFixture(t)
	in := NewInjector(hostPath, zerolog.Nop())

	target, err := in.Inject(root, "weather")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(target, "stale.py"), []byte("old"), 0o644))

	_, err = in.Inject(root, "weather")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(target, "stale.py"))
}

func TestInjectSkipsPluginAlreadyInHost(t *testing.T) {
	hostPath := t.TempDir()
	root := filepath.Join(hostPath, "plugins", "weather")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "plugin.py"), []byte("x = 1\n"), 0o644))

	in := NewInjector(hostPath, zerolog.Nop())
	target, err := in.Inject(root, "weather")
	require.NoError(t, err)

	resolved, resolveErr := filepath.EvalSymlinks(target)
	require.NoError(t, resolveErr)
	expected, expectedErr := filepath.EvalSymlinks(root)
	require.NoError(t, expectedErr)
	assert.Equal(t, expected, resolved)

	// Nothing to clean up: the plugin was never copied.
	assert.Empty(t, in.Injected())
	assert.FileExists(t, filepath.Join(root, "plugin.py"))
}
