package types

import "time"

// Library event types sent over the WebSocket
const (
	EventImportStarted     = "import_started"
	EventFileProgress      = "file_progress"
	EventAlbumAdded        = "album_added"
	EventAlbumUpdated      = "album_updated"
	EventNoAudioFiles      = "no_audio_files"
	EventImportCompleted   = "import_completed"
	EventBackfillCompleted = "backfill_completed"
	EventImportError       = "import_error"
)

// LibraryMessage represents a WebSocket library update message.
// Album is set for album_added / album_updated events so consumers can
// apply cover updates without sharing mutable references with the pipeline.
type LibraryMessage struct {
	JobID       string      `json:"jobId"`
	Type        string      `json:"type"`
	Phase       ImportPhase `json:"phase,omitempty"`
	Progress    float64     `json:"progress"`              // 0-100 percentage
	CurrentFile string      `json:"currentFile,omitempty"` // file currently being extracted
	Album       *Album      `json:"album,omitempty"`
	Message     string      `json:"message,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}
