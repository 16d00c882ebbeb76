package handlers

import (
	"log"
	"net/http"

	"muse/services"

	"github.com/gin-gonic/gin"
)

// FolderHandler handles imported-folder history endpoints
type FolderHandler struct {
	folders services.FolderHistory
	library services.LibraryService
}

// NewFolderHandler creates a new folder handler
func NewFolderHandler(folders services.FolderHistory, library services.LibraryService) *FolderHandler {
	return &FolderHandler{
		folders: folders,
		library: library,
	}
}

// ListFolders returns the folder history, most recent first
func (h *FolderHandler) ListFolders(c *gin.Context) {
	records, err := h.folders.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to load folder history",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"folders": records,
		"total":   len(records),
	})
}

// RemoveFolder deletes a folder record. With ?albums=true the folder's
// albums are removed from the library as well.
func (h *FolderHandler) RemoveFolder(c *gin.Context) {
	folderName := c.Param("name")
	if folderName == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "folder name is required",
		})
		return
	}

	if c.Query("albums") == "true" {
		if err := h.library.RemoveFolderAlbums(folderName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to remove folder albums",
				"details": err.Error(),
			})
			return
		}
	}

	if err := h.folders.Remove(folderName); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to remove folder",
			"details": err.Error(),
		})
		return
	}

	log.Printf("Removed folder %s from history", folderName)
	c.JSON(http.StatusOK, gin.H{
		"message": "folder removed successfully",
	})
}

// ClearFolders wipes the entire folder history
func (h *FolderHandler) ClearFolders(c *gin.Context) {
	if err := h.folders.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to clear folder history",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "folder history cleared",
	})
}
