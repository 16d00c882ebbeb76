package services

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"muse/types"
)

// Storage persists the album and folder-history collections with
// whole-collection get/set semantics. Corrupt stored data is recovered
// as an empty collection.
type Storage interface {
	LoadAlbums() ([]*types.Album, error)
	SaveAlbums(albums []*types.Album) error
	LoadFolders() ([]types.FolderRecord, error)
	SaveFolders(folders []types.FolderRecord) error
}

const (
	albumsFile  = "library.json"
	foldersFile = "folders.json"
)

// fileStorage persists collections as JSON files in a data directory
type fileStorage struct {
	dir string
	mu  sync.Mutex
}

// NewFileStorage creates a file-backed storage rooted at dir
func NewFileStorage(dir string) (Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &fileStorage{dir: dir}, nil
}

func (s *fileStorage) LoadAlbums() ([]*types.Album, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var albums []*types.Album
	if !s.loadCollection(albumsFile, &albums) {
		albums = nil
	}
	return albums, nil
}

func (s *fileStorage) SaveAlbums(albums []*types.Album) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if albums == nil {
		albums = []*types.Album{}
	}
	return s.saveCollection(albumsFile, albums)
}

func (s *fileStorage) LoadFolders() ([]types.FolderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var folders []types.FolderRecord
	if !s.loadCollection(foldersFile, &folders) {
		folders = nil
	}
	return folders, nil
}

func (s *fileStorage) SaveFolders(folders []types.FolderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if folders == nil {
		folders = []types.FolderRecord{}
	}
	return s.saveCollection(foldersFile, folders)
}

// loadCollection reads a stored JSON collection into target. Missing or
// unparsable files are treated as an empty collection; it returns false
// when target must be discarded because the decode failed partway through.
func (s *fileStorage) loadCollection(name string, target interface{}) bool {
	path := filepath.Join(s.dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: could not read %s: %v", name, err)
		}
		return true
	}

	if err := json.Unmarshal(data, target); err != nil {
		log.Printf("Warning: corrupt %s, starting with empty collection: %v", name, err)
		return false
	}
	return true
}

// saveCollection replaces the stored JSON collection
func (s *fileStorage) saveCollection(name string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, name), data, 0644)
}

// memoryStorage keeps collections in memory; used by tests and one-shot runs
type memoryStorage struct {
	mu      sync.Mutex
	albums  []*types.Album
	folders []types.FolderRecord
}

// NewMemoryStorage creates an in-memory storage
func NewMemoryStorage() Storage {
	return &memoryStorage{}
}

func (s *memoryStorage) LoadAlbums() ([]*types.Album, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Album(nil), s.albums...), nil
}

func (s *memoryStorage) SaveAlbums(albums []*types.Album) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.albums = append([]*types.Album(nil), albums...)
	return nil
}

func (s *memoryStorage) LoadFolders() ([]types.FolderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.FolderRecord(nil), s.folders...), nil
}

func (s *memoryStorage) SaveFolders(folders []types.FolderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders = append([]types.FolderRecord(nil), folders...)
	return nil
}
