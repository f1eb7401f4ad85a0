package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorageCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	_, err := NewStorage(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewStorageEmptyDir(t *testing.T) {
	_, err := NewStorage("")
	assert.Error(t, err)
}

func TestSaveDownloaded(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStorage(dir)
	require.NoError(t, err)

	path, err := store.SaveDownloaded("media-123", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "media-123.jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestSaveDownloadedUnknownMimeType(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStorage(dir)
	require.NoError(t, err)

	path, err := store.SaveDownloaded("media-456", "application/x-unknown", strings.NewReader("bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "media-456"), path)
}

func TestSaveDownloadedSanitizesMediaID(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStorage(dir)
	require.NoError(t, err)

	path, err := store.SaveDownloaded("../../etc/passwd", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, dir), "stored path must stay inside the upload dir")
	assert.NotContains(t, path, "..")

	_, err = store.SaveDownloaded("///", "text/plain", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestSaveUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStorage(dir)
	require.NoError(t, err)

	path, err := store.SaveUpload("passport.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".png"))
	assert.NotContains(t, filepath.Base(path), "passport", "uploads get generated names")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestSaveUploadFallsBackToFilenameExtension(t *testing.T) {
	store, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	path, err := store.SaveUpload("report.pdf", "application/x-unknown", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".pdf"))
}

func TestSaveUploadNoExtension(t *testing.T) {
	store, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	path, err := store.SaveUpload("blob", "application/x-unknown", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Empty(t, filepath.Ext(path))
}
