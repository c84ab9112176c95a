package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestImporter(t *testing.T) (*ImportService, *fakeStore, *recordingNotifier, string) {
	t.Helper()
	store := newFakeStore()
	require.NoError(t, store.CreateCollection(context.Background(), "imported"))
	notifier := &recordingNotifier{}
	importer := NewImportService(store, &fakeEmbedder{}, notifier, "imported", zap.NewNop().Sugar())
	return importer, store, notifier, t.TempDir()
}

func writeNote(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanDirectoryImportsNotes(t *testing.T) {
	importer, store, notifier, dir := newTestImporter(t)
	ctx := context.Background()

	notePath := writeNote(t, dir, "go.md", "goroutines are cheap")
	writeNote(t, dir, "ignored.xyz", "unsupported")

	require.NoError(t, importer.ScanDirectory(ctx, dir))

	docs, err := store.Get(ctx, "imported", nil, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "goroutines are cheap", docs[0].Content)
	assert.Equal(t, "go.md", docs[0].Metadata["name"])
	assert.Equal(t, notePath, docs[0].Metadata[MetaSourceFile])
	assert.NotEmpty(t, docs[0].Metadata[MetaFileHash])
	assert.Equal(t, 1, notifier.count())
}

func TestScanDirectoryIsIdempotent(t *testing.T) {
	importer, store, _, dir := newTestImporter(t)
	ctx := context.Background()

	writeNote(t, dir, "go.md", "content")
	require.NoError(t, importer.ScanDirectory(ctx, dir))
	store.upserts = 0

	require.NoError(t, importer.ScanDirectory(ctx, dir))
	assert.Zero(t, store.upserts, "unchanged files must not be re-imported")
}

func TestScanDirectoryReplacesChangedFile(t *testing.T) {
	importer, store, _, dir := newTestImporter(t)
	ctx := context.Background()

	path := writeNote(t, dir, "go.md", "old content")
	require.NoError(t, importer.ScanDirectory(ctx, dir))

	writeNote(t, dir, "go.md", "new content")
	require.NoError(t, importer.ScanDirectory(ctx, dir))

	docs, err := store.Get(ctx, "imported", nil, false)
	require.NoError(t, err)
	require.Len(t, docs, 1, "old chunks are removed before re-import")
	assert.Equal(t, "new content", docs[0].Content)
	assert.Equal(t, path, docs[0].Metadata[MetaSourceFile])
}

func TestScanDirectoryRemovesDeletedFile(t *testing.T) {
	importer, store, _, dir := newTestImporter(t)
	ctx := context.Background()

	path := writeNote(t, dir, "go.md", "content")
	require.NoError(t, importer.ScanDirectory(ctx, dir))
	require.NoError(t, os.Remove(path))

	require.NoError(t, importer.ScanDirectory(ctx, dir))

	docs, err := store.Get(ctx, "imported", nil, false)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
