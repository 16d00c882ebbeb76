package cmd

import (
	"log"
	"os"
	"strconv"

	"muse/config"
	"muse/handlers"
	"muse/middleware"
	"muse/services"
	"muse/websocket"

	"github.com/gin-gonic/gin"
)

// StartWebServer starts the web server
func StartWebServer(port int) {
	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize services
	hub := websocket.NewHub()
	go hub.Run()

	storage, err := services.NewFileStorage(config.GetDataDir())
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	library := services.NewLibraryService(storage)
	folders := services.NewFolderHistory(storage)
	extractor := services.NewMetadataExtractor()
	grouper := services.NewAlbumGrouper(extractor)
	lookup := services.NewMusicBrainzLookup(config.GetMusicBrainzEndpoint(), config.GetCoverArtEndpoint())
	backfill := services.NewCoverBackfill(lookup, hub)
	orchestrator := services.NewImportOrchestrator(extractor, grouper, backfill, library, folders, hub)

	// Initialize handlers
	libraryHandler := handlers.NewLibraryHandler(orchestrator, library, hub)
	folderHandler := handlers.NewFolderHandler(folders, library)
	healthHandler := handlers.NewHealthHandler()
	settingsHandler := handlers.NewSettingsHandler()

	// Setup router
	r := gin.Default()

	// Apply middleware
	r.Use(middleware.CORS())
	r.Use(middleware.Logging())
	r.Use(middleware.Security())

	// Setup routes
	setupRoutes(r, libraryHandler, folderHandler, healthHandler, settingsHandler)

	// Start server
	portStr := strconv.Itoa(port)
	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		portStr = serverPort
	}

	log.Printf("Muse web server starting on port %s", portStr)
	if err := r.Run(":" + portStr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, libraryHandler *handlers.LibraryHandler, folderHandler *handlers.FolderHandler, healthHandler *handlers.HealthHandler, settingsHandler *handlers.SettingsHandler) {
	// Health check endpoint
	r.GET("/health", healthHandler.HealthCheck)

	// API routes group
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		// Library Management Endpoints
		libraryGroup := apiGroup.Group("/library")
		{
			// Imports
			libraryGroup.POST("/import", libraryHandler.ImportFiles)
			libraryGroup.POST("/import/folder", libraryHandler.ImportFolder)
			libraryGroup.POST("/reindex/:folder", libraryHandler.ReindexFolder)

			// Collection
			libraryGroup.GET("/albums", libraryHandler.GetAlbums)
			libraryGroup.DELETE("/albums/:id", libraryHandler.DeleteAlbum)
			libraryGroup.DELETE("/tracks/:id", libraryHandler.DeleteTrack)
			libraryGroup.PATCH("/tracks/:id", libraryHandler.UpdateTrack)

			// Import jobs
			libraryGroup.GET("/jobs", libraryHandler.GetAllJobs)
			libraryGroup.GET("/jobs/:jobId", libraryHandler.GetJob)

			// Folder history
			libraryGroup.GET("/folders", folderHandler.ListFolders)
			libraryGroup.DELETE("/folders", folderHandler.ClearFolders)
			libraryGroup.DELETE("/folders/:name", folderHandler.RemoveFolder)

			// Streaming
			libraryGroup.GET("/stream/*filepath", libraryHandler.StreamTrack)
		}

		// WebSocket endpoints for real-time progress
		wsGroup := apiGroup.Group("/ws")
		{
			// WebSocket endpoint for specific job progress
			wsGroup.GET("/library/:jobId", libraryHandler.HandleWebSocketConnection)

			// WebSocket endpoint for all library events
			wsGroup.GET("/library", libraryHandler.HandleWebSocketAllConnection)
		}

		// Settings endpoints
		apiGroup.GET("/settings", settingsHandler.GetSettings)
		apiGroup.POST("/settings", settingsHandler.UpdateSettings)
	}
}
