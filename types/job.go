package types

import "time"

// ImportPhase represents where an import job is in the pipeline
type ImportPhase string

const (
	PhaseIdle        ImportPhase = "idle"
	PhaseScanning    ImportPhase = "scanning"
	PhaseExtracting  ImportPhase = "extracting"
	PhaseGrouping    ImportPhase = "grouping"
	PhaseEmitting    ImportPhase = "emitting"
	PhaseBackfilling ImportPhase = "backfilling_covers"
	PhaseReconciling ImportPhase = "reconciling"
	PhaseDone        ImportPhase = "done"
)

// ImportJob tracks one import or reindex operation
type ImportJob struct {
	ID          string      `json:"id"`
	Source      string      `json:"source"` // folder label the files came from
	Reindex     bool        `json:"reindex"`
	Phase       ImportPhase `json:"phase"`
	FilesTotal  int         `json:"filesTotal"`
	FilesDone   int         `json:"filesDone"`
	AlbumCount  int         `json:"albumCount"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// ImportError wraps an unexpected failure in the top-level orchestration,
// keeping the underlying message for the user-facing notice.
type ImportError struct {
	Op  string
	Err error
}

func (e *ImportError) Error() string {
	return "import failed during " + e.Op + ": " + e.Err.Error()
}

func (e *ImportError) Unwrap() error {
	return e.Err
}
