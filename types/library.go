package types

// Default values substituted when a file carries no usable tags
const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"

	// PlaceholderCover marks an album as a cover-backfill candidate
	PlaceholderCover = "https://images.unsplash.com/photo-1470225620780-dba8ba36b745?w=500"
)

// Track represents one playable track in the library
type Track struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	AlbumID  string  `json:"albumId"`
	Duration float64 `json:"duration"` // seconds, 0 if undetermined
	Cover    string  `json:"cover"`
	URL      string  `json:"url,omitempty"`
	Genre    string  `json:"genre,omitempty"`
}

// Album represents a group of tracks sharing the same (artist, title) key.
// Track order is discovery order and is preserved across persistence.
type Album struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Artist     string   `json:"artist"`
	Year       int      `json:"year"`
	Cover      string   `json:"cover"`
	Tracks     []*Track `json:"tracks"`
	FolderName string   `json:"folderName,omitempty"`
}

// HasPlaceholderCover reports whether the album still shows the generic
// placeholder and is therefore a cover-backfill candidate.
func (a *Album) HasPlaceholderCover() bool {
	return a.Cover == "" || a.Cover == PlaceholderCover
}

// SetCover updates the album cover and propagates it to every owned track.
func (a *Album) SetCover(cover string) {
	a.Cover = cover
	for _, t := range a.Tracks {
		t.Cover = cover
	}
}

// Clone returns a deep copy of the album and its tracks.
func (a *Album) Clone() *Album {
	clone := *a
	clone.Tracks = make([]*Track, len(a.Tracks))
	for i, t := range a.Tracks {
		track := *t
		clone.Tracks[i] = &track
	}
	return &clone
}

// CloneAlbums deep-copies a slice of albums.
func CloneAlbums(albums []*Album) []*Album {
	clones := make([]*Album, len(albums))
	for i, a := range albums {
		clones[i] = a.Clone()
	}
	return clones
}

// FolderRecord is the persisted history entry for an imported folder.
// The folder name acts as the key; re-importing the same name overwrites.
type FolderRecord struct {
	Name      string `json:"name"`
	AddedAt   string `json:"addedAt"` // RFC3339
	FileCount int    `json:"fileCount"`
}
