package storage

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	ls, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return ls
}

func TestSaveOpenDelete(t *testing.T) {
	ls := newTestStorage(t)

	locator, err := ls.Save(strings.NewReader("hello media"), FileInfo{
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		Size:        11,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(locator, ".mp4"))

	file, err := ls.Open(locator)
	require.NoError(t, err)
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	file.Close()
	assert.Equal(t, "hello media", string(content))

	require.NoError(t, ls.Delete(locator))
	_, err = ls.Open(locator)
	assert.Error(t, err)
}

func TestSaveWithoutExtension(t *testing.T) {
	ls := newTestStorage(t)

	locator, err := ls.Save(strings.NewReader("data"), FileInfo{Filename: "noext"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(locator, ".bin"))
}

func TestLocalPathRejectsTraversal(t *testing.T) {
	ls := newTestStorage(t)

	_, err := ls.LocalPath("../etc/passwd")
	assert.Error(t, err)

	_, err = ls.LocalPath("/etc/passwd")
	assert.Error(t, err)

	_, err = ls.LocalPath("sub/../../escape.mp4")
	assert.Error(t, err)
}

func TestAllocateChunk(t *testing.T) {
	ls := newTestStorage(t)

	locator, path, err := ls.AllocateChunk("abc123.mp4", 7)
	require.NoError(t, err)
	assert.Equal(t, "abc123_chunk007.mp4", locator)
	assert.True(t, strings.HasSuffix(path, "abc123_chunk007.mp4"))

	// The allocated path is writable inside the storage root.
	require.NoError(t, os.WriteFile(path, []byte("chunk"), 0644))
	resolved, err := ls.LocalPath(locator)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
}

func TestAllocateChunkRejectsTraversal(t *testing.T) {
	ls := newTestStorage(t)

	_, _, err := ls.AllocateChunk("../outside.mp4", 0)
	assert.Error(t, err)
}
