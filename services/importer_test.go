package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"muse/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackfill records batches without doing any lookups
type fakeBackfill struct {
	mu      sync.Mutex
	batches [][]*types.Album
	updated int
}

func (f *fakeBackfill) Backfill(ctx context.Context, jobID string, albums []*types.Album) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, albums)
	return f.updated
}

type importerFixture struct {
	orchestrator ImportOrchestrator
	library      LibraryService
	folders      FolderHistory
	backfill     *fakeBackfill
	hub          *fakeHub
}

func newImporterFixture() *importerFixture {
	storage := NewMemoryStorage()
	library := NewLibraryService(storage)
	folders := NewFolderHistory(storage)
	extractor := NewMetadataExtractor()
	backfill := &fakeBackfill{}
	hub := &fakeHub{}

	return &importerFixture{
		orchestrator: NewImportOrchestrator(extractor, NewAlbumGrouper(extractor), backfill, library, folders, hub),
		library:      library,
		folders:      folders,
		backfill:     backfill,
		hub:          hub,
	}
}

func taggedFile(filename, relPath, artist, album, title string) types.ImportFile {
	return types.ImportFile{
		Filename: filename,
		RelPath:  relPath,
		Content: newID3Fixture().
			text("TPE1", artist).
			text("TALB", album).
			text("TIT2", title).
			bytes(),
	}
}

// TestImportFilesEndToEnd tests the full pipeline over an in-memory batch
func TestImportFilesEndToEnd(t *testing.T) {
	f := newImporterFixture()

	files := []types.ImportFile{
		taggedFile("01.mp3", "Discovery/01.mp3", "Daft Punk", "Discovery", "One More Time"),
		taggedFile("02.mp3", "Discovery/02.mp3", "Daft Punk", "Discovery", "Aerodynamic"),
		taggedFile("01.mp3", "Homework/01.mp3", "Daft Punk", "Homework", "Da Funk"),
	}

	albums, err := f.orchestrator.ImportFiles(context.Background(), files, "Daft Punk Rips")
	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, "Discovery", albums[0].Title)
	assert.Len(t, albums[0].Tracks, 2)
	assert.Equal(t, "Homework", albums[1].Title)

	// Imported albums are persisted
	stored, err := f.library.Albums()
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	// The source shows up in folder history
	records, err := f.folders.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Daft Punk Rips", records[0].Name)
	assert.Equal(t, 3, records[0].FileCount)

	// Backfill received the imported albums
	f.orchestrator.WaitForBackfill()
	require.Len(t, f.backfill.batches, 1)
	assert.Len(t, f.backfill.batches[0], 2)
}

// TestImportFilesEmitsProgressEvents tests the event stream ordering
func TestImportFilesEmitsProgressEvents(t *testing.T) {
	f := newImporterFixture()

	files := []types.ImportFile{
		taggedFile("01.mp3", "", "Artist", "Album", "One"),
		taggedFile("02.mp3", "", "Artist", "Album", "Two"),
	}

	_, err := f.orchestrator.ImportFiles(context.Background(), files, "Batch")
	require.NoError(t, err)
	f.orchestrator.WaitForBackfill()

	assert.Len(t, f.hub.eventsOfType(types.EventImportStarted), 1)
	assert.Len(t, f.hub.eventsOfType(types.EventFileProgress), 2)
	assert.Len(t, f.hub.eventsOfType(types.EventImportCompleted), 1)
	assert.Len(t, f.hub.eventsOfType(types.EventBackfillCompleted), 1)

	added := f.hub.eventsOfType(types.EventAlbumAdded)
	require.Len(t, added, 1)
	require.NotNil(t, added[0].Album)
	assert.Equal(t, "Album", added[0].Album.Title)
}

// TestImportFilesNoAudio tests that a batch without audio files signals a
// notice instead of importing
func TestImportFilesNoAudio(t *testing.T) {
	f := newImporterFixture()

	files := []types.ImportFile{
		{Filename: "cover.jpg", Content: []byte{0x01}},
		{Filename: "notes.txt", Content: []byte("liner notes")},
	}

	_, err := f.orchestrator.ImportFiles(context.Background(), files, "Scans")
	assert.ErrorIs(t, err, ErrNoAudioFiles)
	assert.Len(t, f.hub.eventsOfType(types.EventNoAudioFiles), 1)

	stored, err := f.library.Albums()
	require.NoError(t, err)
	assert.Empty(t, stored)

	records, err := f.folders.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestImportFilesFiltersNonAudio tests that stray files ride along without
// breaking the import
func TestImportFilesFiltersNonAudio(t *testing.T) {
	f := newImporterFixture()

	files := []types.ImportFile{
		taggedFile("01.mp3", "", "Artist", "Album", "One"),
		{Filename: "folder.jpg", Content: []byte{0x01}},
	}

	albums, err := f.orchestrator.ImportFiles(context.Background(), files, "Mixed")
	require.NoError(t, err)
	require.Len(t, albums, 1)
	require.Len(t, albums[0].Tracks, 1)

	records, err := f.folders.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].FileCount)
}

// TestImportFilesTracksJobLifecycle tests job bookkeeping through to the
// done phase
func TestImportFilesTracksJobLifecycle(t *testing.T) {
	f := newImporterFixture()

	files := []types.ImportFile{taggedFile("01.mp3", "", "Artist", "Album", "One")}
	_, err := f.orchestrator.ImportFiles(context.Background(), files, "Batch")
	require.NoError(t, err)
	f.orchestrator.WaitForBackfill()

	jobs := f.orchestrator.GetAllJobs()
	require.Len(t, jobs, 1)
	job, exists := f.orchestrator.GetJob(jobs[0].ID)
	require.True(t, exists)

	assert.Equal(t, types.PhaseDone, job.Phase)
	assert.Equal(t, 1, job.FilesTotal)
	assert.Equal(t, 1, job.FilesDone)
	assert.Equal(t, 1, job.AlbumCount)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.CompletedAt)
}

// TestImportFilesProgressCallback tests the per-file callback hook
func TestImportFilesProgressCallback(t *testing.T) {
	f := newImporterFixture()

	var seen []string
	f.orchestrator.SetProgressFunc(func(done, total int, filename string) {
		assert.Equal(t, 2, total)
		seen = append(seen, filename)
	})

	files := []types.ImportFile{
		taggedFile("01.mp3", "", "Artist", "Album", "One"),
		taggedFile("02.mp3", "", "Artist", "Album", "Two"),
	}
	_, err := f.orchestrator.ImportFiles(context.Background(), files, "Batch")
	require.NoError(t, err)

	assert.Equal(t, []string{"01.mp3", "02.mp3"}, seen)
}

func writeFixtureTree(t *testing.T, root string) {
	t.Helper()
	albumDir := filepath.Join(root, "Discovery")
	require.NoError(t, os.MkdirAll(albumDir, 0755))

	content := newID3Fixture().
		text("TPE1", "Daft Punk").
		text("TALB", "Discovery").
		text("TIT2", "One More Time").
		bytes()
	require.NoError(t, os.WriteFile(filepath.Join(albumDir, "01 - One More Time.mp3"), content, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(albumDir, "cover.jpg"), []byte{0x01}, 0644))
}

// TestImportDirectory tests the filesystem walk path and handle capture
func TestImportDirectory(t *testing.T) {
	f := newImporterFixture()
	root := t.TempDir()
	writeFixtureTree(t, root)

	albums, err := f.orchestrator.ImportDirectory(context.Background(), root, "")
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "Discovery", albums[0].Title)
	require.Len(t, albums[0].Tracks, 1)
	assert.Equal(t, "file://"+filepath.Join(root, "Discovery", "01 - One More Time.mp3"),
		albums[0].Tracks[0].URL)

	// The directory name becomes the source label, the path the handle
	label := filepath.Base(root)
	records, err := f.folders.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, label, records[0].Name)

	handle, ok := f.folders.HandlePath(label)
	require.True(t, ok)
	assert.Equal(t, root, handle)

	f.orchestrator.WaitForBackfill()
}

// TestReindexFolder tests re-scanning through the stored handle and
// reconciling the collection
func TestReindexFolder(t *testing.T) {
	f := newImporterFixture()
	root := t.TempDir()
	writeFixtureTree(t, root)

	_, err := f.orchestrator.ImportDirectory(context.Background(), root, "My Music")
	require.NoError(t, err)
	f.orchestrator.WaitForBackfill()

	// A second album appears on disk before the reindex
	otherDir := filepath.Join(root, "Homework")
	require.NoError(t, os.MkdirAll(otherDir, 0755))
	content := newID3Fixture().
		text("TPE1", "Daft Punk").
		text("TALB", "Homework").
		text("TIT2", "Da Funk").
		bytes()
	require.NoError(t, os.WriteFile(filepath.Join(otherDir, "01 - Da Funk.mp3"), content, 0644))

	merged, err := f.orchestrator.ReindexFolder(context.Background(), "My Music")
	require.NoError(t, err)
	require.Len(t, merged, 2)

	stored, err := f.library.Albums()
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	f.orchestrator.WaitForBackfill()
}

// TestReindexFolderWithoutHandle tests the missing-handle error path
func TestReindexFolderWithoutHandle(t *testing.T) {
	f := newImporterFixture()

	_, err := f.orchestrator.ReindexFolder(context.Background(), "Never Imported")
	assert.ErrorIs(t, err, ErrNoFolderHandle)
}

// TestImportFilesReturnsDetachedSnapshot tests that the returned albums and
// emitted album_added payloads stay stable while the asynchronous cover
// backfill runs; backfill results land through album_updated events and the
// persisted library instead.
func TestImportFilesReturnsDetachedSnapshot(t *testing.T) {
	const resolvedCover = "data:image/jpeg;base64,QkJCQg=="

	storage := NewMemoryStorage()
	library := NewLibraryService(storage)
	extractor := NewMetadataExtractor()
	hub := &fakeHub{}
	lookup := &fakeLookup{lookup: func(artist, album string) (string, error) {
		return resolvedCover, nil
	}}
	orchestrator := NewImportOrchestrator(
		extractor, NewAlbumGrouper(extractor), NewCoverBackfill(lookup, hub),
		library, NewFolderHistory(storage), hub,
	)

	files := []types.ImportFile{
		taggedFile("01.mp3", "Discovery/01.mp3", "Daft Punk", "Discovery", "One More Time"),
	}

	albums, err := orchestrator.ImportFiles(context.Background(), files, "Discovery")
	require.NoError(t, err)
	require.Len(t, albums, 1)

	// Callers serialize the result while backfill is still running.
	for i := 0; i < 50; i++ {
		_, err := json.Marshal(albums)
		require.NoError(t, err)
	}
	orchestrator.WaitForBackfill()

	assert.Equal(t, types.PlaceholderCover, albums[0].Cover)
	assert.Equal(t, types.PlaceholderCover, albums[0].Tracks[0].Cover)

	added := hub.eventsOfType(types.EventAlbumAdded)
	require.Len(t, added, 1)
	assert.Equal(t, types.PlaceholderCover, added[0].Album.Cover)

	updatedEvents := hub.eventsOfType(types.EventAlbumUpdated)
	require.Len(t, updatedEvents, 1)
	assert.Equal(t, resolvedCover, updatedEvents[0].Album.Cover)

	stored, err := library.Albums()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, resolvedCover, stored[0].Cover)
	assert.Equal(t, resolvedCover, stored[0].Tracks[0].Cover)
}

// TestGetJobReturnsSnapshot tests that job lookups hand out copies instead
// of the live record the backfill goroutine keeps writing to
func TestGetJobReturnsSnapshot(t *testing.T) {
	f := newImporterFixture()

	files := []types.ImportFile{
		taggedFile("01.mp3", "Discovery/01.mp3", "Daft Punk", "Discovery", "One More Time"),
	}
	_, err := f.orchestrator.ImportFiles(context.Background(), files, "Discovery")
	require.NoError(t, err)

	jobs := f.orchestrator.GetAllJobs()
	require.Len(t, jobs, 1)

	first, ok := f.orchestrator.GetJob(jobs[0].ID)
	require.True(t, ok)
	second, ok := f.orchestrator.GetJob(jobs[0].ID)
	require.True(t, ok)
	assert.NotSame(t, first, second)

	// Mutating a snapshot must not leak into the orchestrator's state.
	f.orchestrator.WaitForBackfill()
	first.Phase = types.PhaseScanning
	current, ok := f.orchestrator.GetJob(first.ID)
	require.True(t, ok)
	assert.Equal(t, types.PhaseDone, current.Phase)
}
