package typeset

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFileT(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRotateNoArtifactIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, RotateArtifact(dir))
	_, err := os.Stat(filepath.Join(dir, HistoryDir))
	assert.True(t, os.IsNotExist(err), "no history dir should be created")
}

func TestRotateFirstVersion(t *testing.T) {
	dir := t.TempDir()
	writeFileT(t, filepath.Join(dir, ArtifactFile), "artifact-1")

	require.NoError(t, RotateArtifact(dir))

	data, err := os.ReadFile(filepath.Join(dir, HistoryDir, "final-v1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "artifact-1", string(data))
}

func TestRotateAppendsNextVersion(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 3; i++ {
		writeFileT(t, filepath.Join(dir, HistoryDir, fmt.Sprintf("final-v%d.pdf", i)), fmt.Sprintf("v%d", i))
	}
	writeFileT(t, filepath.Join(dir, ArtifactFile), "current")

	require.NoError(t, RotateArtifact(dir))

	data, err := os.ReadFile(filepath.Join(dir, HistoryDir, "final-v4.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "current", string(data))

	// v1..v3 untouched
	for i := 1; i <= 3; i++ {
		data, err := os.ReadFile(filepath.Join(dir, HistoryDir, fmt.Sprintf("final-v%d.pdf", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("v%d", i), string(data))
	}
}

func TestRotateOrdersNumericallyPastNine(t *testing.T) {
	dir := t.TempDir()
	// Lexically "final-v9.pdf" > "final-v10.pdf"; numeric parsing must pick 10.
	for _, i := range []int{1, 9, 10} {
		writeFileT(t, filepath.Join(dir, HistoryDir, fmt.Sprintf("final-v%d.pdf", i)), "x")
	}
	writeFileT(t, filepath.Join(dir, ArtifactFile), "current")

	require.NoError(t, RotateArtifact(dir))

	_, err := os.Stat(filepath.Join(dir, HistoryDir, "final-v11.pdf"))
	assert.NoError(t, err)
}

func TestRotateIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	writeFileT(t, filepath.Join(dir, HistoryDir, "notes.txt"), "x")
	writeFileT(t, filepath.Join(dir, HistoryDir, "final-vX.pdf"), "x")
	writeFileT(t, filepath.Join(dir, ArtifactFile), "current")

	require.NoError(t, RotateArtifact(dir))

	_, err := os.Stat(filepath.Join(dir, HistoryDir, "final-v1.pdf"))
	assert.NoError(t, err)
}

func TestParseVersion(t *testing.T) {
	cases := []struct {
		name string
		n    int
		ok   bool
	}{
		{"final-v1.pdf", 1, true},
		{"final-v10.pdf", 10, true},
		{"final-v0.pdf", 0, false},
		{"final-v.pdf", 0, false},
		{"final.pdf", 0, false},
		{"final-v2.txt", 0, false},
	}
	for _, c := range cases {
		n, ok := parseVersion(c.name)
		assert.Equal(t, c.ok, ok, c.name)
		if c.ok {
			assert.Equal(t, c.n, n, c.name)
		}
	}
}
