package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"muse/config"
	"muse/services"
	"muse/types"
	"muse/websocket"

	"github.com/gin-gonic/gin"
)

// LibraryHandler handles library import and management endpoints
type LibraryHandler struct {
	orchestrator services.ImportOrchestrator
	library      services.LibraryService
	hub          websocket.Hub
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(orchestrator services.ImportOrchestrator, library services.LibraryService, hub websocket.Hub) *LibraryHandler {
	return &LibraryHandler{
		orchestrator: orchestrator,
		library:      library,
		hub:          hub,
	}
}

// ImportFiles imports a batch of uploaded audio files
func (h *LibraryHandler) ImportFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid multipart form",
			"details": err.Error(),
		})
		return
	}

	uploads := form.File["files"]
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "no files provided",
		})
		return
	}

	// Folder-relative paths travel in a parallel "paths" field because
	// multipart filenames are stripped to their base name on the way in.
	relPaths := form.Value["paths"]

	files := make([]types.ImportFile, 0, len(uploads))
	for i, upload := range uploads {
		src, err := upload.Open()
		if err != nil {
			log.Printf("Error opening uploaded file %s: %v", upload.Filename, err)
			continue
		}

		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			log.Printf("Error reading uploaded file %s: %v", upload.Filename, err)
			continue
		}

		relPath := filepath.ToSlash(upload.Filename)
		if i < len(relPaths) && relPaths[i] != "" {
			relPath = filepath.ToSlash(relPaths[i])
		}

		files = append(files, types.ImportFile{
			Filename: filepath.Base(relPath),
			RelPath:  relPath,
			Content:  content,
		})
	}

	sourceLabel := c.PostForm("source")
	if sourceLabel == "" && len(files) > 0 {
		sourceLabel = labelFromUploads(files[0].RelPath)
	}

	albums, err := h.orchestrator.ImportFiles(c.Request.Context(), files, sourceLabel)
	if err != nil {
		h.respondImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"albums": albums,
		"count":  len(albums),
		"source": sourceLabel,
	})
}

// ImportFolder imports a directory on the server's filesystem
func (h *LibraryHandler) ImportFolder(c *gin.Context) {
	var req struct {
		Path  string `json:"path" binding:"required"`
		Label string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	albums, err := h.orchestrator.ImportDirectory(c.Request.Context(), req.Path, req.Label)
	if err != nil {
		h.respondImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"albums": albums,
		"count":  len(albums),
	})
}

// ReindexFolder re-scans a previously imported folder and reconciles the
// library against the fresh result
func (h *LibraryHandler) ReindexFolder(c *gin.Context) {
	folderName := c.Param("folder")
	if folderName == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "folder name is required",
		})
		return
	}

	albums, err := h.orchestrator.ReindexFolder(c.Request.Context(), folderName)
	if err != nil {
		h.respondImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"albums": albums,
		"count":  len(albums),
	})
}

// GetAlbums returns the full album collection
func (h *LibraryHandler) GetAlbums(c *gin.Context) {
	albums, err := h.library.Albums()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to load library",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"albums": albums,
		"total":  len(albums),
	})
}

// DeleteAlbum removes an album and its tracks from the library
func (h *LibraryHandler) DeleteAlbum(c *gin.Context) {
	albumID := c.Param("id")
	if err := h.library.DeleteAlbum(albumID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "album not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to delete album",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "album deleted successfully",
	})
}

// DeleteTrack removes a track; its album is removed too when emptied
func (h *LibraryHandler) DeleteTrack(c *gin.Context) {
	trackID := c.Param("id")
	if err := h.library.DeleteTrack(trackID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "track not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to delete track",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "track deleted successfully",
	})
}

// UpdateTrack applies a partial metadata edit to a track
func (h *LibraryHandler) UpdateTrack(c *gin.Context) {
	trackID := c.Param("id")

	var update services.TrackUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	track, err := h.library.UpdateTrack(trackID, update)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "track not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to update track",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"track": track,
	})
}

// GetAllJobs returns all import jobs
func (h *LibraryHandler) GetAllJobs(c *gin.Context) {
	jobs := h.orchestrator.GetAllJobs()
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetJob returns a specific import job by ID
func (h *LibraryHandler) GetJob(c *gin.Context) {
	jobID := c.Param("jobId")
	job, exists := h.orchestrator.GetJob(jobID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job": job,
	})
}

// StreamTrack streams an audio file from the library root with support for
// range requests
func (h *LibraryHandler) StreamTrack(c *gin.Context) {
	requestedPath := c.Param("filepath")

	// Remove leading slash from filepath param
	if strings.HasPrefix(requestedPath, "/") {
		requestedPath = requestedPath[1:]
	}

	if strings.Contains(requestedPath, "..") {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "path traversal not allowed",
		})
		return
	}

	if !services.IsAudioFile(requestedPath) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "file extension not allowed",
			"details": "only audio files can be streamed",
		})
		return
	}

	libraryRoot := config.GetLibraryRoot()
	fullPath := filepath.Join(libraryRoot, requestedPath)

	// Security: Ensure resolved path is within the library root
	absLibraryRoot, err := filepath.Abs(libraryRoot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "server configuration error",
		})
		return
	}

	absRequestPath, err := filepath.Abs(fullPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid file path",
		})
		return
	}

	if !pathWithinRoot(absRequestPath, absLibraryRoot) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "path traversal not allowed",
		})
		return
	}

	fileInfo, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "file not found",
				"path":  requestedPath,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "file access error",
			"details": err.Error(),
		})
		return
	}

	if fileInfo.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "path is a directory, not a file",
		})
		return
	}

	file, err := os.Open(fullPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to open file",
			"details": err.Error(),
		})
		return
	}
	defer file.Close()

	c.Header("Content-Type", audioContentType(requestedPath))
	c.Header("Content-Length", strconv.FormatInt(fileInfo.Size(), 10))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "public, max-age=3600")

	rangeHeader := c.GetHeader("Range")
	if rangeHeader != "" {
		h.handleRangeRequest(c, file, fileInfo.Size(), rangeHeader, requestedPath)
		return
	}

	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		log.Printf("Error streaming file %s: %v", requestedPath, err)
	}
}

// handleRangeRequest handles HTTP range requests for efficient seeking
func (h *LibraryHandler) handleRangeRequest(c *gin.Context, file *os.File, fileSize int64, rangeHeader string, filePath string) {
	// Parse range header (e.g., "bytes=0-1023" or "bytes=1024-")
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	rangeSpec := strings.TrimPrefix(rangeHeader, "bytes=")
	ranges := strings.Split(rangeSpec, "-")
	if len(ranges) != 2 {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	var start, end int64
	var err error

	if ranges[0] != "" {
		start, err = strconv.ParseInt(ranges[0], 10, 64)
		if err != nil || start < 0 {
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
	}

	if ranges[1] != "" {
		end, err = strconv.ParseInt(ranges[1], 10, 64)
		if err != nil || end < start {
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
	} else {
		end = fileSize - 1
	}

	if start >= fileSize {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= fileSize {
		end = fileSize - 1
	}

	contentLength := end - start + 1

	if _, err := file.Seek(start, 0); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to seek file",
		})
		return
	}

	c.Header("Content-Type", audioContentType(filePath))
	c.Header("Content-Length", strconv.FormatInt(contentLength, 10))
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "public, max-age=3600")
	c.Status(http.StatusPartialContent)

	if _, err := io.CopyN(c.Writer, file, contentLength); err != nil {
		log.Printf("Error streaming range %d-%d: %v", start, end, err)
	}
}

// HandleWebSocketConnection handles WebSocket connections for a specific
// import job's progress
func (h *LibraryHandler) HandleWebSocketConnection(c *gin.Context) {
	jobID := c.Param("jobId")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job ID is required"})
		return
	}

	// Check if job exists
	_, exists := h.orchestrator.GetJob(jobID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, jobID)
	h.hub.RegisterClient(client)

	// Start client pumps
	client.StartPumps()
}

// HandleWebSocketAllConnection handles WebSocket connections for all
// library events
func (h *LibraryHandler) HandleWebSocketAllConnection(c *gin.Context) {
	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, "all")
	h.hub.RegisterClient(client)

	// Start client pumps
	client.StartPumps()
}

// respondImportError maps pipeline errors onto HTTP responses
func (h *LibraryHandler) respondImportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNoAudioFiles):
		// A notice, not a failure: the batch simply had nothing to import
		c.JSON(http.StatusOK, gin.H{
			"albums":  []*types.Album{},
			"count":   0,
			"message": "No valid audio files found",
		})
	case errors.Is(err, services.ErrNoFolderHandle):
		c.JSON(http.StatusConflict, gin.H{
			"error": "folder handle is no longer available, re-select the folder to reindex",
			"code":  "folder_handle_missing",
		})
	case errors.Is(err, services.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "permission to read the folder was denied",
			"code":  "permission_denied",
		})
	default:
		log.Printf("Import failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "import failed",
			"details": err.Error(),
		})
	}
}

// labelFromUploads derives a source label from an uploaded file's relative
// path, falling back to a generic label for loose files
func labelFromUploads(relPath string) string {
	relPath = filepath.ToSlash(relPath)
	if idx := strings.Index(relPath, "/"); idx > 0 {
		return relPath[:idx]
	}
	return "Imported Files"
}

// audioContentType returns the MIME type for a supported audio file
// pathWithinRoot reports whether abs is root itself or a path inside it.
// A bare string prefix is not enough: a sibling like "/music-other" must
// not pass for root "/music".
func pathWithinRoot(abs, root string) bool {
	if abs == root {
		return true
	}
	return strings.HasPrefix(abs, root+string(os.PathSeparator))
}

func audioContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}
