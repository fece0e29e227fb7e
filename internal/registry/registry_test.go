package registry

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docrag-mcp/pkg/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Missing(t *testing.T) {
	reg := Load(t.TempDir(), nil)
	require.NotNil(t, reg)
	assert.Empty(t, reg)
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "{not json")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	reg := Load(dir, logger)
	require.NotNil(t, reg)
	assert.Empty(t, reg)
	assert.Contains(t, buf.String(), "registry corrupt")
}

func TestLoad_NullDocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "null")

	reg := Load(dir, nil)
	require.NotNil(t, reg)
	reg.Record(types.FileFingerprint{Path: "a", Hash: "h"})
	assert.Len(t, reg, 1)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	src := t.TempDir()
	a := writeFile(t, src, "a.txt", "alpha")
	b := writeFile(t, src, "b.md", "# beta")

	reg := New()
	for _, p := range []string{a, b} {
		fp, err := Fingerprint(p, nil)
		require.NoError(t, err)
		reg.Record(fp)
	}

	dir := filepath.Join(t.TempDir(), "processed", "nested")
	require.NoError(t, Save(dir, reg))
	assert.FileExists(t, Path(dir))

	loaded := Load(dir, nil)
	require.Len(t, loaded, 2)
	for path, fp := range reg {
		got := loaded[path]
		assert.Equal(t, fp.Hash, got.Hash)
		assert.Equal(t, fp.Size, got.Size)
		assert.True(t, fp.ModTime.Equal(got.ModTime))
		assert.True(t, fp.Matches(got))
		assert.False(t, loaded.NeedsReprocessing(fp))
	}
}

func TestSave_Overwrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, Registry{"x": {Path: "x", Hash: "1"}}))
	require.NoError(t, Save(dir, Registry{"y": {Path: "y", Hash: "2"}}))

	loaded := Load(dir, nil)
	assert.Equal(t, []string{"y"}, loaded.Paths())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, New()))
	require.NoError(t, Delete(dir))
	assert.NoFileExists(t, Path(dir))
	assert.NoError(t, Delete(dir), "deleting twice is fine")
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.txt", "hello")

	fp, err := Fingerprint(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, fp.Path)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", fp.Hash)
	assert.Equal(t, int64(5), fp.Size)
	assert.False(t, fp.Fallback)
	assert.NoError(t, fp.Validate())
}

func TestFingerprint_MissingFile(t *testing.T) {
	_, err := Fingerprint(filepath.Join(t.TempDir(), "gone.txt"), nil)
	assert.Error(t, err)
}

func TestFingerprint_HashFallback(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doc.txt", "hello")

	origHash, origNow := hashFile, now
	t.Cleanup(func() { hashFile, now = origHash, origNow })
	hashFile = func(string) (string, error) { return "", errors.New("device busy") }
	now = func() time.Time { return time.Unix(1700000000, 0) }

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	fp, err := Fingerprint(path, logger)
	require.NoError(t, err)
	assert.Equal(t, "timestamp-1700000000", fp.Hash)
	assert.True(t, fp.Fallback)
	assert.Contains(t, buf.String(), "fingerprint hash fallback")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestNeedsReprocessing(t *testing.T) {
	dir := t.TempDir()
	unchanged := writeFile(t, dir, "same.txt", "stable content")
	changed := writeFile(t, dir, "changed.txt", "version one")

	reg := New()
	for _, p := range []string{unchanged, changed} {
		fp, err := Fingerprint(p, nil)
		require.NoError(t, err)
		reg.Record(fp)
	}

	// Same size, different content, same mtime
	info, err := os.Stat(changed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(changed, []byte("version two"), 0o644))
	require.NoError(t, os.Chtimes(changed, info.ModTime(), info.ModTime()))

	fpUnchanged, err := Fingerprint(unchanged, nil)
	require.NoError(t, err)
	fpChanged, err := Fingerprint(changed, nil)
	require.NoError(t, err)

	assert.False(t, reg.NeedsReprocessing(fpUnchanged))
	assert.True(t, reg.NeedsReprocessing(fpChanged))
}

func TestNeedsReprocessing_Fields(t *testing.T) {
	base := types.FileFingerprint{Path: "/src/a.txt", Hash: "abc", ModTime: time.Unix(100, 0), Size: 10}
	reg := Registry{base.Path: base}

	tests := []struct {
		name   string
		mutate func(fp *types.FileFingerprint)
		want   bool
	}{
		{"identical", func(*types.FileFingerprint) {}, false},
		{"hash differs", func(fp *types.FileFingerprint) { fp.Hash = "def" }, true},
		{"mtime differs", func(fp *types.FileFingerprint) { fp.ModTime = fp.ModTime.Add(time.Second) }, true},
		{"size differs", func(fp *types.FileFingerprint) { fp.Size = 11 }, true},
		{"unknown path", func(fp *types.FileFingerprint) { fp.Path = "/src/b.txt" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := base
			tt.mutate(&fp)
			assert.Equal(t, tt.want, reg.NeedsReprocessing(fp))
		})
	}
}

func TestMissing(t *testing.T) {
	reg := Registry{
		"/src/a": {Path: "/src/a", Hash: "1"},
		"/src/b": {Path: "/src/b", Hash: "2"},
		"/src/c": {Path: "/src/c", Hash: "3"},
	}
	present := map[string]struct{}{"/src/b": {}}
	assert.Equal(t, []string{"/src/a", "/src/c"}, reg.Missing(present))

	reg.Remove("/src/a")
	assert.Equal(t, []string{"/src/b", "/src/c"}, reg.Paths())
}
