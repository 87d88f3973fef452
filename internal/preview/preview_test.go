package preview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderStripsHeaderAndExtractsLinks(t *testing.T) {
	dir := t.TempDir()
	src := "---\nname: John Doe\nqrcode: qr.png\n---\n\n# Offer\n\nSee [policy](https://example.com/policy) and [intranet](http://intranet/hr).\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content.md"), []byte(src), 0o644))

	path, links, err := Render(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<h1")
	assert.NotContains(t, string(out), "name: John Doe")

	assert.Equal(t, []string{"https://example.com/policy", "http://intranet/hr"}, links)
}

func TestRenderWithoutHeader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content.md"), []byte("plain *markdown*\n"), 0o644))

	path, links, err := Render(dir)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Empty(t, links)
}

func TestRenderMissingSource(t *testing.T) {
	_, _, err := Render(t.TempDir())
	assert.Error(t, err)
}
