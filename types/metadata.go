package types

// Picture holds embedded artwork extracted from an audio file
type Picture struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType,omitempty"`
}

// TrackMetadata is the normalized result of parsing one file's tag block.
// All fields may be empty; callers fall back to filename-derived values.
type TrackMetadata struct {
	Title    string   `json:"title,omitempty"`
	Artist   string   `json:"artist,omitempty"`
	Album    string   `json:"album,omitempty"`
	Year     string   `json:"year,omitempty"` // raw tag value, coerced during grouping
	Duration float64  `json:"duration,omitempty"`
	Genre    string   `json:"genre,omitempty"`
	Picture  *Picture `json:"picture,omitempty"`
}

// ImportFile is one candidate file handed to the import pipeline
type ImportFile struct {
	Filename string // base name, e.g. "01 - Intro.mp3"
	RelPath  string // path relative to the imported folder, "" if unknown
	FullPath string // absolute path on disk, "" for in-memory content
	Content  []byte // raw bytes when the file is not on disk
	URL      string // playable source URL recorded on the track
}
