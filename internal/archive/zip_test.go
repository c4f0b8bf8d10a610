package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youruser/canvasapp/internal/output"
)

type fixture struct {
	images  string
	zips    string
	folders *output.Folders
	arch    *Archiver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		images: filepath.Join(base, "images"),
		zips:   filepath.Join(base, "zip"),
	}
	f.folders = output.New(f.images, "/public")
	f.arch = New(f.folders, f.zips, "/public", DefaultLevel)
	return f
}

// seed writes files (relative path -> content) into batch id.
func (f *fixture) seed(t *testing.T, id string, files map[string]string) {
	t.Helper()
	dir, err := f.folders.Ensure(id)
	require.NoError(t, err)
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func readZip(t *testing.T, p string) (map[string]string, []string) {
	t.Helper()
	r, err := zip.OpenReader(p)
	require.NoError(t, err)
	defer r.Close()

	files := map[string]string{}
	var names []string
	for _, zf := range r.File {
		names = append(names, zf.Name)
		if zf.FileInfo().IsDir() {
			continue
		}
		assert.Equal(t, zip.Deflate, zf.Method, zf.Name)
		rc, err := zf.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		files[zf.Name] = string(b)
	}
	sort.Strings(names)
	return files, names
}

func TestArchiveRoundTripKeepsSource(t *testing.T) {
	f := newFixture(t)
	content := map[string]string{
		"a.png":     "first image bytes",
		"b.png":     "second image bytes",
		"sub/c.txt": "nested",
	}
	f.seed(t, "1700000000000", content)

	got, err := f.arch.Archive(context.Background(), "out", "1700000000000", false)
	require.NoError(t, err)
	assert.Equal(t, Result{Path: "/public/zip/out.zip"}, got)

	files, names := readZip(t, filepath.Join(f.zips, "out.zip"))
	assert.Equal(t, content, files)
	assert.Equal(t, []string{"a.png", "b.png", "sub/", "sub/c.txt"}, names)

	for rel, body := range content {
		b, err := os.ReadFile(filepath.Join(f.images, "1700000000000", filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, body, string(b))
	}
}

func TestArchiveDeletesSourceAfterClose(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42", map[string]string{"a.png": "a", "deep/er/b.png": "b"})

	got, err := f.arch.Archive(context.Background(), "bundle", "42", true)
	require.NoError(t, err)
	assert.True(t, got.SourceDeleted)

	assert.NoDirExists(t, filepath.Join(f.images, "42"))
	assert.DirExists(t, f.images, "only the batch folder is removed")

	files, _ := readZip(t, filepath.Join(f.zips, "bundle.zip"))
	assert.Equal(t, map[string]string{"a.png": "a", "deep/er/b.png": "b"}, files)
}

func TestArchiveDefaultName(t *testing.T) {
	f := newFixture(t)
	f.arch.now = func() time.Time { return time.UnixMilli(1700000000123) }
	f.seed(t, "7", map[string]string{"a.png": "a"})

	got, err := f.arch.Archive(context.Background(), "", "7", false)
	require.NoError(t, err)
	assert.Equal(t, "/public/zip/1700000000123.zip", got.Path)
	assert.FileExists(t, filepath.Join(f.zips, "1700000000123.zip"))
}

func TestArchiveMissingFolderYieldsEmptyZip(t *testing.T) {
	f := newFixture(t)

	_, err := f.arch.Archive(context.Background(), "empty", "does-not-exist", true)
	require.NoError(t, err)

	files, names := readZip(t, filepath.Join(f.zips, "empty.zip"))
	assert.Empty(t, files)
	assert.Empty(t, names)
}

func TestArchiveFailureRemovesPartialZipAndKeepsSource(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "9", map[string]string{"a.png": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := f.arch.Archive(ctx, "partial", "9", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchive)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Result{}, got)

	assert.NoFileExists(t, filepath.Join(f.zips, "partial.zip"))
	assert.FileExists(t, filepath.Join(f.images, "9", "a.png"))
	assertNoTempFiles(t, f.zips)
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestArchiveFailureKeepsExistingZip(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "9", map[string]string{"a.png": "new"})
	_, err := f.arch.Archive(context.Background(), "out", "9", false)
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(f.zips, "out.zip"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.arch.Archive(ctx, "out", "9", false)
	require.ErrorIs(t, err, ErrArchive)

	after, err := os.ReadFile(filepath.Join(f.zips, "out.zip"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "earlier archive survives a failed rebuild")
	assertNoTempFiles(t, f.zips)
}

func TestArchiveReplacesExistingZip(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.zips, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.zips, "out.zip"), []byte("stale"), 0o644))
	f.seed(t, "3", map[string]string{"a.png": "fresh"})

	_, err := f.arch.Archive(context.Background(), "out", "3", false)
	require.NoError(t, err)

	files, _ := readZip(t, filepath.Join(f.zips, "out.zip"))
	assert.Equal(t, map[string]string{"a.png": "fresh"}, files)
	info, err := os.Stat(filepath.Join(f.zips, "out.zip"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	assertNoTempFiles(t, f.zips)
}

func TestArchiveReportsFailedSourceDeletion(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "5", map[string]string{"a.png": "a"})
	f.arch.removeTree = func(string) error { return os.ErrPermission }

	got, err := f.arch.Archive(context.Background(), "kept", "5", true)
	require.NoError(t, err, "a deletion failure does not invalidate the archive")
	assert.Equal(t, "/public/zip/kept.zip", got.Path)
	assert.False(t, got.SourceDeleted)
	assert.FileExists(t, filepath.Join(f.images, "5", "a.png"))
}

func TestArchiveUnwritableZipRoot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.zips), 0o755))
	require.NoError(t, os.WriteFile(f.zips, []byte("a file, not a dir"), 0o644))
	f.seed(t, "1", map[string]string{"a.png": "a"})

	_, err := f.arch.Archive(context.Background(), "x", "1", true)
	assert.ErrorIs(t, err, ErrArchive)
	assert.FileExists(t, filepath.Join(f.images, "1", "a.png"))
}

func TestNewClampsLevel(t *testing.T) {
	folders := output.New(t.TempDir(), "/public")
	assert.Equal(t, DefaultLevel, New(folders, t.TempDir(), "/public", 0).level)
	assert.Equal(t, DefaultLevel, New(folders, t.TempDir(), "/public", 42).level)
	assert.Equal(t, 3, New(folders, t.TempDir(), "/public", 3).level)
}
