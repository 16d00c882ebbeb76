package services

import (
	"errors"
	"sync"

	"muse/types"
)

// ErrNotFound is returned when an album or track id is not in the library
var ErrNotFound = errors.New("not found")

// TrackUpdate carries the editable track fields; nil fields are unchanged
type TrackUpdate struct {
	Title    *string  `json:"title,omitempty"`
	Artist   *string  `json:"artist,omitempty"`
	Album    *string  `json:"album,omitempty"`
	Genre    *string  `json:"genre,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
	Cover    *string  `json:"cover,omitempty"`
}

// LibraryService owns every mutation of the persisted album collection.
// Each operation is a full read-modify-write of the stored list; storage is
// the single source of truth and a single logical writer is assumed.
type LibraryService interface {
	Albums() ([]*types.Album, error)
	AddAlbums(albums []*types.Album) error
	ReconcileFolder(fresh []*types.Album, folderName string) ([]*types.Album, error)
	UpdateCovers(albums []*types.Album) error
	DeleteAlbum(id string) error
	DeleteTrack(id string) error
	UpdateTrack(id string, update TrackUpdate) (*types.Track, error)
	RemoveFolderAlbums(folderName string) error
}

// libraryService implements the LibraryService interface
type libraryService struct {
	storage Storage
	mu      sync.Mutex
}

// NewLibraryService creates a new library service backed by storage
func NewLibraryService(storage Storage) LibraryService {
	return &libraryService{storage: storage}
}

// Albums returns the stored album collection in insertion order
func (l *libraryService) Albums() ([]*types.Album, error) {
	return l.storage.LoadAlbums()
}

// AddAlbums appends newly imported albums to the collection
func (l *libraryService) AddAlbums(albums []*types.Album) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.storage.LoadAlbums()
	if err != nil {
		return err
	}
	return l.storage.SaveAlbums(append(current, albums...))
}

// ReconcileFolder replaces the subset of albums attributable to folderName
// with the freshly regrouped list and returns the merged collection.
func (l *libraryService) ReconcileFolder(fresh []*types.Album, folderName string) ([]*types.Album, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.storage.LoadAlbums()
	if err != nil {
		return nil, err
	}

	merged := ReconcileFolder(current, fresh, folderName)
	if err := l.storage.SaveAlbums(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// UpdateCovers persists cover changes made by the backfill service. Stored
// albums are matched by id; unmatched entries are left untouched.
func (l *libraryService) UpdateCovers(albums []*types.Album) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.storage.LoadAlbums()
	if err != nil {
		return err
	}

	covers := make(map[string]string, len(albums))
	for _, album := range albums {
		covers[album.ID] = album.Cover
	}

	changed := false
	for _, album := range current {
		cover, ok := covers[album.ID]
		if !ok || album.Cover == cover {
			continue
		}
		album.SetCover(cover)
		changed = true
	}

	if !changed {
		return nil
	}
	return l.storage.SaveAlbums(current)
}

// DeleteAlbum removes an album and all of its tracks
func (l *libraryService) DeleteAlbum(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.storage.LoadAlbums()
	if err != nil {
		return err
	}

	kept := current[:0]
	found := false
	for _, album := range current {
		if album.ID == id {
			found = true
			continue
		}
		kept = append(kept, album)
	}
	if !found {
		return ErrNotFound
	}
	return l.storage.SaveAlbums(kept)
}

// DeleteTrack removes a track from its owning album. Removing the last
// track removes the album from the collection entirely.
func (l *libraryService) DeleteTrack(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.storage.LoadAlbums()
	if err != nil {
		return err
	}

	for ai, album := range current {
		for ti, track := range album.Tracks {
			if track.ID != id {
				continue
			}

			album.Tracks = append(album.Tracks[:ti], album.Tracks[ti+1:]...)
			if len(album.Tracks) == 0 {
				current = append(current[:ai], current[ai+1:]...)
			}
			return l.storage.SaveAlbums(current)
		}
	}
	return ErrNotFound
}

// UpdateTrack applies an edit to a single track and persists the collection
func (l *libraryService) UpdateTrack(id string, update TrackUpdate) (*types.Track, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.storage.LoadAlbums()
	if err != nil {
		return nil, err
	}

	for _, album := range current {
		for _, track := range album.Tracks {
			if track.ID != id {
				continue
			}

			if update.Title != nil && *update.Title != "" {
				track.Title = *update.Title
			}
			if update.Artist != nil && *update.Artist != "" {
				track.Artist = *update.Artist
			}
			if update.Album != nil && *update.Album != "" {
				track.Album = *update.Album
			}
			if update.Genre != nil {
				track.Genre = *update.Genre
			}
			if update.Duration != nil && *update.Duration >= 0 {
				track.Duration = *update.Duration
			}
			if update.Cover != nil && *update.Cover != "" {
				track.Cover = *update.Cover
			}

			if err := l.storage.SaveAlbums(current); err != nil {
				return nil, err
			}
			return track, nil
		}
	}
	return nil, ErrNotFound
}

// RemoveFolderAlbums removes every album attributable to a folder; used by
// explicit folder deletion.
func (l *libraryService) RemoveFolderAlbums(folderName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.storage.LoadAlbums()
	if err != nil {
		return err
	}

	kept := current[:0]
	for _, album := range current {
		if albumBelongsToFolder(album, folderName) {
			continue
		}
		kept = append(kept, album)
	}
	return l.storage.SaveAlbums(kept)
}
