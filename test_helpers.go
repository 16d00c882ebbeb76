package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"muse/handlers"
	"muse/services"
	"muse/types"
	ws "muse/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestHelper provides utilities for testing the Muse server
type TestHelper struct {
	Server       *httptest.Server
	LibraryDir   string
	Orchestrator services.ImportOrchestrator
	Library      services.LibraryService
	Folders      services.FolderHistory
	Hub          ws.Hub
	Router       *gin.Engine
}

// noCoverLookup always reports a registry miss, keeping tests offline
type noCoverLookup struct{}

func (noCoverLookup) Lookup(ctx context.Context, artist, album string) (string, error) {
	return "", services.ErrNoCoverFound
}

// NewTestHelper creates a new test helper with a temporary test environment
func NewTestHelper(t *testing.T) *TestHelper {
	libraryDir := t.TempDir()
	t.Setenv("MUSE_LIBRARY", libraryDir)
	t.Setenv("MUSE_DATA", t.TempDir())

	// Setup gin in test mode
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub()
	go hub.Run()

	storage := services.NewMemoryStorage()
	library := services.NewLibraryService(storage)
	folders := services.NewFolderHistory(storage)
	extractor := services.NewMetadataExtractor()
	grouper := services.NewAlbumGrouper(extractor)
	backfill := services.NewCoverBackfill(noCoverLookup{}, hub)
	orchestrator := services.NewImportOrchestrator(extractor, grouper, backfill, library, folders, hub)

	router := setupTestRouter(orchestrator, library, folders, hub)
	server := httptest.NewServer(router)

	helper := &TestHelper{
		Server:       server,
		LibraryDir:   libraryDir,
		Orchestrator: orchestrator,
		Library:      library,
		Folders:      folders,
		Hub:          hub,
		Router:       router,
	}

	t.Cleanup(func() {
		helper.Orchestrator.WaitForBackfill()
		server.Close()
	})

	return helper
}

// setupTestRouter creates a router with the production route layout
func setupTestRouter(orchestrator services.ImportOrchestrator, library services.LibraryService, folders services.FolderHistory, hub ws.Hub) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	libraryHandler := handlers.NewLibraryHandler(orchestrator, library, hub)
	folderHandler := handlers.NewFolderHandler(folders, library)
	healthHandler := handlers.NewHealthHandler()

	router.GET("/health", healthHandler.HealthCheck)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		libraryGroup := apiGroup.Group("/library")
		{
			libraryGroup.POST("/import", libraryHandler.ImportFiles)
			libraryGroup.POST("/import/folder", libraryHandler.ImportFolder)
			libraryGroup.POST("/reindex/:folder", libraryHandler.ReindexFolder)
			libraryGroup.GET("/albums", libraryHandler.GetAlbums)
			libraryGroup.DELETE("/albums/:id", libraryHandler.DeleteAlbum)
			libraryGroup.DELETE("/tracks/:id", libraryHandler.DeleteTrack)
			libraryGroup.PATCH("/tracks/:id", libraryHandler.UpdateTrack)
			libraryGroup.GET("/jobs", libraryHandler.GetAllJobs)
			libraryGroup.GET("/jobs/:jobId", libraryHandler.GetJob)
			libraryGroup.GET("/folders", folderHandler.ListFolders)
			libraryGroup.DELETE("/folders", folderHandler.ClearFolders)
			libraryGroup.DELETE("/folders/:name", folderHandler.RemoveFolder)
			libraryGroup.GET("/stream/*filepath", libraryHandler.StreamTrack)
		}

		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/library/:jobId", libraryHandler.HandleWebSocketConnection)
			wsGroup.GET("/library", libraryHandler.HandleWebSocketAllConnection)
		}
	}

	return router
}

// SetupTestAlbum writes a tagged album folder into the test library dir
// and returns its path
func (h *TestHelper) SetupTestAlbum(t *testing.T, artist, album string, titles ...string) string {
	albumDir := filepath.Join(h.LibraryDir, album)
	require.NoError(t, os.MkdirAll(albumDir, 0755))

	for i, title := range titles {
		content := buildTaggedMP3(artist, album, title)
		name := filepath.Join(albumDir, fmt.Sprintf("%02d - %s.mp3", i+1, title))
		require.NoError(t, os.WriteFile(name, content, 0644))
	}

	return albumDir
}

// buildTaggedMP3 builds a minimal ID3v2.3 tagged payload
func buildTaggedMP3(artist, album, title string) []byte {
	frame := func(id, value string) []byte {
		payload := append([]byte{0x00}, []byte(value)...)
		b := []byte(id)
		b = append(b, byte(len(payload)>>24), byte(len(payload)>>16), byte(len(payload)>>8), byte(len(payload)))
		b = append(b, 0x00, 0x00)
		return append(b, payload...)
	}

	var body []byte
	body = append(body, frame("TPE1", artist)...)
	body = append(body, frame("TALB", album)...)
	body = append(body, frame("TIT2", title)...)

	out := []byte("ID3\x03\x00\x00")
	out = append(out,
		byte(len(body)>>21&0x7F), byte(len(body)>>14&0x7F), byte(len(body)>>7&0x7F), byte(len(body)&0x7F))
	return append(out, body...)
}

// MakeRequest makes an HTTP request to the test server
func (h *TestHelper) MakeRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reqBody)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

// GetJSON makes a GET request and unmarshals the JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, target interface{}) *http.Response {
	resp := h.MakeRequest(t, "GET", path, nil)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil {
		err = json.Unmarshal(body, target)
		require.NoError(t, err)
	}

	return resp
}

// PostJSON makes a POST request with a JSON body and unmarshals the JSON
// response
func (h *TestHelper) PostJSON(t *testing.T, path string, requestBody interface{}, target interface{}) *http.Response {
	resp := h.MakeRequest(t, "POST", path, requestBody)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil {
		err = json.Unmarshal(body, target)
		require.NoError(t, err)
	}

	return resp
}

// ConnectWebSocket connects to a WebSocket endpoint
func (h *TestHelper) ConnectWebSocket(t *testing.T, path string) *websocket.Conn {
	wsURL := "ws" + h.Server.URL[4:] + path // Replace http:// with ws://

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	return conn
}

// ReadEventUntil reads broadcast messages until one matches the wanted
// type or the deadline passes
func (h *TestHelper) ReadEventUntil(t *testing.T, conn *websocket.Conn, eventType string, timeout time.Duration) types.LibraryMessage {
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)

	for time.Now().Before(deadline) {
		var message types.LibraryMessage
		if err := conn.ReadJSON(&message); err != nil {
			break
		}
		if message.Type == eventType {
			return message
		}
	}

	t.Fatalf("Did not receive %s event within %s", eventType, timeout)
	return types.LibraryMessage{}
}
