package preview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestWriteAndRelease(t *testing.T) {
	dir, err := NewDir(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)

	h, err := dir.Write("render-5", png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", h.ContentType)
	assert.Equal(t, int64(len(png)), h.Size)
	assert.Equal(t, ".png", filepath.Ext(h.Path))
	assert.Equal(t, dir.Path, filepath.Dir(h.Path))

	data, err := h.Read()
	require.NoError(t, err)
	assert.Equal(t, png, data)

	require.NoError(t, h.Release())
	_, err = os.Stat(h.Path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, h.Release(), "second release is a no-op")
}

func TestReleaseNil(t *testing.T) {
	var h *Handle
	assert.NoError(t, h.Release())
}

func TestDistinctFiles(t *testing.T) {
	dir, err := NewDir(t.TempDir())
	require.NoError(t, err)

	a, err := dir.Write("draft", png)
	require.NoError(t, err)
	b, err := dir.Write("draft", png)
	require.NoError(t, err)
	defer a.Release()
	defer b.Release()

	assert.NotEqual(t, a.Path, b.Path)
}
