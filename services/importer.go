package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"muse/types"
	"muse/websocket"

	"github.com/google/uuid"
)

// Import signals that are user-facing notices rather than failures
var ErrNoAudioFiles = errors.New("no audio files found")

// audioExtensions are the recognized audio file extensions
var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".aac":  true,
}

// ProgressFunc is invoked after each file's extraction completes
type ProgressFunc func(done, total int, filename string)

// ImportOrchestrator drives the end-to-end import pipeline: file filtering,
// per-file metadata extraction, grouping, progressive emission, cover
// backfill and folder-history bookkeeping.
type ImportOrchestrator interface {
	ImportFiles(ctx context.Context, files []types.ImportFile, sourceLabel string) ([]*types.Album, error)
	ImportDirectory(ctx context.Context, dirPath, sourceLabel string) ([]*types.Album, error)
	ReindexFolder(ctx context.Context, folderName string) ([]*types.Album, error)
	GetJob(id string) (*types.ImportJob, bool)
	GetAllJobs() []*types.ImportJob
	SetProgressFunc(fn ProgressFunc)
	WaitForBackfill()
}

// importOrchestrator implements the ImportOrchestrator interface
type importOrchestrator struct {
	extractor MetadataExtractor
	grouper   AlbumGrouper
	backfill  CoverBackfill
	library   LibraryService
	folders   FolderHistory
	hub       websocket.Hub

	// mu serializes whole imports; the pipeline assumes a single writer
	mu sync.Mutex

	jobsMu   sync.RWMutex
	jobs     map[string]*types.ImportJob
	progress ProgressFunc

	backfillWG sync.WaitGroup
}

// NewImportOrchestrator creates a new import orchestrator
func NewImportOrchestrator(
	extractor MetadataExtractor,
	grouper AlbumGrouper,
	backfill CoverBackfill,
	library LibraryService,
	folders FolderHistory,
	hub websocket.Hub,
) ImportOrchestrator {
	return &importOrchestrator{
		extractor: extractor,
		grouper:   grouper,
		backfill:  backfill,
		library:   library,
		folders:   folders,
		hub:       hub,
		jobs:      make(map[string]*types.ImportJob),
	}
}

// SetProgressFunc registers a per-file progress callback (CLI progress bar)
func (o *importOrchestrator) SetProgressFunc(fn ProgressFunc) {
	o.progress = fn
}

// WaitForBackfill blocks until every pending cover backfill has finished.
// One-shot runs call this before exiting.
func (o *importOrchestrator) WaitForBackfill() {
	o.backfillWG.Wait()
}

// ImportFiles runs the pipeline over a caller-supplied file batch. Albums
// are emitted progressively over the hub as they complete grouping. The
// returned slice is a snapshot taken before cover backfill starts; backfill
// results reach callers through album_updated events and the persisted
// library, never by mutating the returned albums.
func (o *importOrchestrator) ImportFiles(ctx context.Context, files []types.ImportFile, sourceLabel string) ([]*types.Album, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	job := o.newJob(sourceLabel, false)
	albums, err := o.runPipeline(ctx, job, files, sourceLabel, "", false)
	if err != nil {
		o.failJob(job, err)
		return nil, err
	}
	return albums, nil
}

// ImportDirectory walks a directory recursively and imports its files.
// The directory is registered as the folder's volatile handle for later
// reindexing.
func (o *importOrchestrator) ImportDirectory(ctx context.Context, dirPath, sourceLabel string) ([]*types.Album, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if sourceLabel == "" {
		sourceLabel = filepath.Base(dirPath)
	}

	files, err := collectDirectoryFiles(dirPath)
	if err != nil {
		return nil, err
	}

	job := o.newJob(sourceLabel, false)
	albums, err := o.runPipeline(ctx, job, files, sourceLabel, dirPath, false)
	if err != nil {
		o.failJob(job, err)
		return nil, err
	}
	return albums, nil
}

// ReindexFolder re-scans a previously imported folder through its stored
// handle and merges the regrouped result into the library, replacing only
// the subset attributable to that folder.
func (o *importOrchestrator) ReindexFolder(ctx context.Context, folderName string) ([]*types.Album, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	dirPath, ok := o.folders.HandlePath(folderName)
	if !ok {
		return nil, ErrNoFolderHandle
	}

	files, err := collectDirectoryFiles(dirPath)
	if err != nil {
		return nil, err
	}

	job := o.newJob(folderName, true)
	merged, err := o.runPipeline(ctx, job, files, folderName, dirPath, true)
	if err != nil {
		o.failJob(job, err)
		return nil, err
	}
	return merged, nil
}

// runPipeline is the shared import path. For a reindex the grouped albums
// replace the folder's previous contribution instead of being appended.
func (o *importOrchestrator) runPipeline(ctx context.Context, job *types.ImportJob, files []types.ImportFile, sourceLabel, handlePath string, reindex bool) ([]*types.Album, error) {
	o.setPhase(job, types.PhaseScanning)
	o.emit(job, types.EventImportStarted, nil, "", fmt.Sprintf("Importing %d files from %s", len(files), sourceLabel))

	audioFiles := filterAudioFiles(files)
	o.updateJob(job, func(j *types.ImportJob) { j.FilesTotal = len(audioFiles) })

	if len(audioFiles) == 0 {
		o.emit(job, types.EventNoAudioFiles, nil, "", "No valid audio files found")
		o.completeJob(job)
		return nil, ErrNoAudioFiles
	}

	// Sequential per-file extraction: track order within an album must
	// reflect the order the caller supplied files in. Extraction failures
	// degrade to filename-derived metadata and never abort the batch.
	o.setPhase(job, types.PhaseExtracting)
	extracted := make([]ExtractedTrack, 0, len(audioFiles))
	for i, file := range audioFiles {
		extracted = append(extracted, ExtractedTrack{
			File:     file,
			Metadata: o.extractor.Extract(file),
		})

		o.updateJob(job, func(j *types.ImportJob) { j.FilesDone = i + 1 })
		o.emitProgress(job, file.Filename, float64(i+1)/float64(len(audioFiles))*100)
		if o.progress != nil {
			o.progress(i+1, len(audioFiles), file.Filename)
		}
	}

	o.setPhase(job, types.PhaseGrouping)
	albums := o.grouper.Group(extracted, sourceLabel)
	o.updateJob(job, func(j *types.ImportJob) { j.AlbumCount = len(albums) })

	// Progressive emission: callers may render albums with placeholder
	// covers before backfill resolves real artwork.
	// Events and returned slices carry deep copies: the backfill goroutine
	// keeps mutating the grouped albums after this function returns.
	o.setPhase(job, types.PhaseEmitting)
	for _, album := range albums {
		o.emit(job, types.EventAlbumAdded, album.Clone(), "", "")
	}

	result := albums
	if reindex {
		o.setPhase(job, types.PhaseReconciling)
		merged, err := o.library.ReconcileFolder(albums, sourceLabel)
		if err != nil {
			return nil, &types.ImportError{Op: "reconciling", Err: err}
		}
		result = merged
	} else {
		if err := o.library.AddAlbums(albums); err != nil {
			return nil, &types.ImportError{Op: "persisting", Err: err}
		}
	}

	if err := o.folders.Touch(sourceLabel, len(audioFiles), handlePath); err != nil {
		log.Printf("Warning: could not update folder history for %s: %v", sourceLabel, err)
	}

	o.emit(job, types.EventImportCompleted, nil, "", fmt.Sprintf("%d albums imported from %s", len(albums), sourceLabel))

	// Cover backfill runs after the import has already succeeded; it only
	// upgrades placeholder covers and never fails the import.
	o.setPhase(job, types.PhaseBackfilling)
	o.backfillWG.Add(1)
	go func() {
		defer o.backfillWG.Done()
		// The request context ends with the HTTP response; backfill
		// outlives it on purpose.
		updated := o.backfill.Backfill(context.Background(), job.ID, albums)
		if updated > 0 {
			if err := o.library.UpdateCovers(albums); err != nil {
				log.Printf("Warning: could not persist backfilled covers: %v", err)
			}
		}
		o.emit(job, types.EventBackfillCompleted, nil, "", fmt.Sprintf("Cover backfill finished, %d albums updated", updated))
		o.completeJob(job)
	}()

	return types.CloneAlbums(result), nil
}

// GetJob retrieves a snapshot of a job by ID. The backfill goroutine keeps
// updating the live job, so callers get a copy taken under the lock.
func (o *importOrchestrator) GetJob(id string) (*types.ImportJob, bool) {
	o.jobsMu.RLock()
	defer o.jobsMu.RUnlock()
	job, exists := o.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// GetAllJobs returns snapshots of all jobs
func (o *importOrchestrator) GetAllJobs() []*types.ImportJob {
	o.jobsMu.RLock()
	defer o.jobsMu.RUnlock()

	jobs := make([]*types.ImportJob, 0, len(o.jobs))
	for _, job := range o.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

func (o *importOrchestrator) newJob(source string, reindex bool) *types.ImportJob {
	job := &types.ImportJob{
		ID:        uuid.New().String(),
		Source:    source,
		Reindex:   reindex,
		Phase:     types.PhaseIdle,
		CreatedAt: time.Now(),
	}

	o.jobsMu.Lock()
	o.jobs[job.ID] = job
	o.jobsMu.Unlock()

	return job
}

func (o *importOrchestrator) updateJob(job *types.ImportJob, fn func(*types.ImportJob)) {
	o.jobsMu.Lock()
	fn(job)
	o.jobsMu.Unlock()
}

func (o *importOrchestrator) setPhase(job *types.ImportJob, phase types.ImportPhase) {
	o.updateJob(job, func(j *types.ImportJob) { j.Phase = phase })
}

func (o *importOrchestrator) completeJob(job *types.ImportJob) {
	o.updateJob(job, func(j *types.ImportJob) {
		j.Phase = types.PhaseDone
		now := time.Now()
		j.CompletedAt = &now
	})
}

func (o *importOrchestrator) failJob(job *types.ImportJob, err error) {
	if errors.Is(err, ErrNoAudioFiles) {
		return // a notice, not a failure
	}

	o.updateJob(job, func(j *types.ImportJob) {
		j.Phase = types.PhaseDone
		j.Error = err.Error()
		now := time.Now()
		j.CompletedAt = &now
	})
	o.emit(job, types.EventImportError, nil, "", err.Error())
	log.Printf("Import job %s failed: %v", job.ID, err)
}

func (o *importOrchestrator) emit(job *types.ImportJob, eventType string, album *types.Album, currentFile, message string) {
	if o.hub == nil {
		return
	}

	o.jobsMu.RLock()
	phase := job.Phase
	progress := 0.0
	if job.FilesTotal > 0 {
		progress = float64(job.FilesDone) / float64(job.FilesTotal) * 100
	}
	o.jobsMu.RUnlock()

	o.hub.BroadcastEvent(types.LibraryMessage{
		JobID:       job.ID,
		Type:        eventType,
		Phase:       phase,
		Progress:    progress,
		CurrentFile: currentFile,
		Album:       album,
		Message:     message,
		Timestamp:   time.Now(),
	})
}

func (o *importOrchestrator) emitProgress(job *types.ImportJob, filename string, progress float64) {
	if o.hub == nil {
		return
	}

	o.hub.BroadcastEvent(types.LibraryMessage{
		JobID:       job.ID,
		Type:        types.EventFileProgress,
		Phase:       types.PhaseExtracting,
		Progress:    progress,
		CurrentFile: filename,
		Timestamp:   time.Now(),
	})
}

// filterAudioFiles keeps only files with a recognized audio extension
func filterAudioFiles(files []types.ImportFile) []types.ImportFile {
	var audio []types.ImportFile
	for _, file := range files {
		if IsAudioFile(file.Filename) {
			audio = append(audio, file)
		}
	}
	return audio
}

// IsAudioFile reports whether a filename has a recognized audio extension
func IsAudioFile(filename string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(filename))]
}

// collectDirectoryFiles recursively enumerates a directory, annotating each
// file with its path relative to the root. A permission error on the root
// maps to ErrPermissionDenied so callers can offer re-selection; errors on
// individual entries are logged and skipped.
func collectDirectoryFiles(rootPath string) ([]types.ImportFile, error) {
	if _, err := os.Stat(rootPath); err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		return nil, err
	}

	var files []types.ImportFile
	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) && path == rootPath {
				return ErrPermissionDenied
			}
			log.Printf("Error accessing path %s: %v", path, err)
			return nil // Continue walking, don't fail entire scan
		}
		if info.IsDir() {
			return nil
		}

		relativePath, err := filepath.Rel(rootPath, path)
		if err != nil {
			relativePath = path // fallback to absolute path
		}

		files = append(files, types.ImportFile{
			Filename: info.Name(),
			RelPath:  relativePath,
			FullPath: path,
			URL:      "file://" + path,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
