package services

import (
	"errors"
	"sync"
	"time"

	"muse/types"
)

// maxFolderHistory bounds the persisted history to the most recently
// touched folders; the oldest entry is evicted first.
const maxFolderHistory = 10

// Folder access errors surfaced during reindex
var (
	ErrNoFolderHandle   = errors.New("no directory handle for folder")
	ErrPermissionDenied = errors.New("permission denied reading folder")
)

// FolderHistory keeps the persisted folder records plus a process-wide
// volatile map of folder name to directory path. The two stores share the
// same key but have different lifecycles: handles are lost on restart.
type FolderHistory interface {
	List() ([]types.FolderRecord, error)
	Touch(name string, fileCount int, handlePath string) error
	Remove(name string) error
	Clear() error
	HandlePath(name string) (string, bool)
}

// folderHistory implements the FolderHistory interface
type folderHistory struct {
	storage Storage
	mu      sync.Mutex
	handles map[string]string // volatile, not serializable
}

// NewFolderHistory creates a new folder history backed by storage
func NewFolderHistory(storage Storage) FolderHistory {
	return &folderHistory{
		storage: storage,
		handles: make(map[string]string),
	}
}

// List returns the persisted records, most recently added first
func (f *folderHistory) List() ([]types.FolderRecord, error) {
	return f.storage.LoadFolders()
}

// Touch creates or refreshes the record for a folder. A non-empty
// handlePath also registers the volatile directory handle.
func (f *folderHistory) Touch(name string, fileCount int, handlePath string) error {
	f.mu.Lock()
	if handlePath != "" {
		f.handles[name] = handlePath
	}
	f.mu.Unlock()

	folders, err := f.storage.LoadFolders()
	if err != nil {
		return err
	}

	record := types.FolderRecord{
		Name:      name,
		AddedAt:   time.Now().Format(time.RFC3339),
		FileCount: fileCount,
	}

	for i := range folders {
		if folders[i].Name == name {
			folders[i] = record
			return f.storage.SaveFolders(folders)
		}
	}

	folders = append([]types.FolderRecord{record}, folders...)
	if len(folders) > maxFolderHistory {
		for _, evicted := range folders[maxFolderHistory:] {
			f.dropHandle(evicted.Name)
		}
		folders = folders[:maxFolderHistory]
	}
	return f.storage.SaveFolders(folders)
}

// Remove deletes the record and erases its volatile handle
func (f *folderHistory) Remove(name string) error {
	f.dropHandle(name)

	folders, err := f.storage.LoadFolders()
	if err != nil {
		return err
	}

	kept := folders[:0]
	for _, record := range folders {
		if record.Name != name {
			kept = append(kept, record)
		}
	}
	return f.storage.SaveFolders(kept)
}

// Clear removes every record and every volatile handle
func (f *folderHistory) Clear() error {
	f.mu.Lock()
	f.handles = make(map[string]string)
	f.mu.Unlock()

	return f.storage.SaveFolders(nil)
}

// HandlePath returns the volatile directory path registered for a folder
func (f *folderHistory) HandlePath(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.handles[name]
	return path, ok
}

func (f *folderHistory) dropHandle(name string) {
	f.mu.Lock()
	delete(f.handles, name)
	f.mu.Unlock()
}
