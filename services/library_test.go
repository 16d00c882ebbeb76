package services

import (
	"testing"

	"muse/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func libraryWith(t *testing.T, albums ...*types.Album) LibraryService {
	t.Helper()
	storage := NewMemoryStorage()
	require.NoError(t, storage.SaveAlbums(albums))
	return NewLibraryService(storage)
}

func twoTrackAlbum(id, folderName string) *types.Album {
	return &types.Album{
		ID:         id,
		Title:      "Album " + id,
		Artist:     "Artist",
		Cover:      types.PlaceholderCover,
		FolderName: folderName,
		Tracks: []*types.Track{
			{ID: id + "-t1", Title: "First", AlbumID: id, Cover: types.PlaceholderCover, URL: "file:///" + id + "/1.mp3"},
			{ID: id + "-t2", Title: "Second", AlbumID: id, Cover: types.PlaceholderCover, URL: "file:///" + id + "/2.mp3"},
		},
	}
}

// TestAddAlbumsAppends tests that imports extend the stored collection
func TestAddAlbumsAppends(t *testing.T) {
	library := libraryWith(t, twoTrackAlbum("a", "Old"))

	require.NoError(t, library.AddAlbums([]*types.Album{twoTrackAlbum("b", "New")}))

	albums, err := library.Albums()
	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, "a", albums[0].ID)
	assert.Equal(t, "b", albums[1].ID)
}

// TestDeleteAlbum tests album removal and the not-found case
func TestDeleteAlbum(t *testing.T) {
	library := libraryWith(t, twoTrackAlbum("a", ""), twoTrackAlbum("b", ""))

	require.NoError(t, library.DeleteAlbum("a"))

	albums, err := library.Albums()
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "b", albums[0].ID)

	assert.ErrorIs(t, library.DeleteAlbum("missing"), ErrNotFound)
}

// TestDeleteTrackRemovesEmptiedAlbum tests that deleting the last track of
// an album also deletes the album
func TestDeleteTrackRemovesEmptiedAlbum(t *testing.T) {
	library := libraryWith(t, twoTrackAlbum("a", ""))

	require.NoError(t, library.DeleteTrack("a-t1"))

	albums, err := library.Albums()
	require.NoError(t, err)
	require.Len(t, albums, 1)
	require.Len(t, albums[0].Tracks, 1)

	require.NoError(t, library.DeleteTrack("a-t2"))

	albums, err = library.Albums()
	require.NoError(t, err)
	assert.Empty(t, albums)

	assert.ErrorIs(t, library.DeleteTrack("a-t1"), ErrNotFound)
}

// TestUpdateTrack tests partial edits: set fields change, nil fields stay
func TestUpdateTrack(t *testing.T) {
	library := libraryWith(t, twoTrackAlbum("a", ""))

	newTitle := "Renamed"
	newGenre := "Jazz"
	track, err := library.UpdateTrack("a-t1", TrackUpdate{
		Title: &newTitle,
		Genre: &newGenre,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", track.Title)
	assert.Equal(t, "Jazz", track.Genre)
	assert.Equal(t, "Artist", track.Artist)

	albums, err := library.Albums()
	require.NoError(t, err)
	assert.Equal(t, "Renamed", albums[0].Tracks[0].Title)

	_, err = library.UpdateTrack("missing", TrackUpdate{Title: &newTitle})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestUpdateCovers tests the backfill persistence path: matched albums get
// the new cover on album and tracks, unmatched stay put
func TestUpdateCovers(t *testing.T) {
	library := libraryWith(t, twoTrackAlbum("a", ""), twoTrackAlbum("b", ""))

	resolved := twoTrackAlbum("a", "")
	resolved.SetCover("data:image/jpeg;base64,AAAA")
	require.NoError(t, library.UpdateCovers([]*types.Album{resolved}))

	albums, err := library.Albums()
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", albums[0].Cover)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", albums[0].Tracks[0].Cover)
	assert.Equal(t, types.PlaceholderCover, albums[1].Cover)
}

// TestReconcileFolderPersists tests that the merged result is stored
func TestReconcileFolderPersists(t *testing.T) {
	library := libraryWith(t, twoTrackAlbum("stale", "Music"), twoTrackAlbum("other", "Else"))

	fresh := []*types.Album{twoTrackAlbum("fresh", "Music")}
	merged, err := library.ReconcileFolder(fresh, "Music")
	require.NoError(t, err)
	require.Len(t, merged, 2)

	albums, err := library.Albums()
	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, "other", albums[0].ID)
	assert.Equal(t, "fresh", albums[1].ID)
}

// TestRemoveFolderAlbums tests explicit folder deletion with albums
func TestRemoveFolderAlbums(t *testing.T) {
	library := libraryWith(t, twoTrackAlbum("a", "Music"), twoTrackAlbum("b", "Else"))

	require.NoError(t, library.RemoveFolderAlbums("Music"))

	albums, err := library.Albums()
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "b", albums[0].ID)
}
