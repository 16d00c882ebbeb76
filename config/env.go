package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

var Env = map[string]string{
	"MUSE_LIBRARY":     os.Getenv("MUSE_LIBRARY"),
	"MUSE_DATA":        os.Getenv("MUSE_DATA"),
	"MUSE_MB_ENDPOINT": os.Getenv("MUSE_MB_ENDPOINT"),
}

// GetLibraryRoot returns the directory audio files are served from
func GetLibraryRoot() string {
	// First check environment variable for custom location
	if customPath := os.Getenv("MUSE_LIBRARY"); customPath != "" {
		return customPath
	}

	// Then the user's saved preference
	if saved := getUserLibraryLocation(); saved != "" {
		return saved
	}

	// Use standard OS-appropriate music location
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if can't get home dir
		return filepath.Join(".", "library")
	}

	// This works for Windows, Mac, and Linux
	return filepath.Join(homeDir, "Music", "Muse")
}

// GetDataDir returns the directory where the library and folder-history
// collections are persisted.
func GetDataDir() string {
	if customPath := os.Getenv("MUSE_DATA"); customPath != "" {
		return customPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".muse")
	}

	return filepath.Join(homeDir, ".muse")
}

// GetMusicBrainzEndpoint returns the metadata registry base URL
func GetMusicBrainzEndpoint() string {
	endpoint := Env["MUSE_MB_ENDPOINT"]
	if endpoint != "" {
		return endpoint
	}
	return "https://musicbrainz.org/ws/2"
}

// GetCoverArtEndpoint returns the cover art archive base URL
func GetCoverArtEndpoint() string {
	if endpoint := os.Getenv("MUSE_CAA_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "https://coverartarchive.org"
}

// UserSettings represents the user's personal settings
type UserSettings struct {
	LibraryLocation string `json:"libraryLocation"`
}

// getSettingsFilePath returns the path to the settings file
func getSettingsFilePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".muse-settings.json")
}

// getUserLibraryLocation loads the user's preferred library location from settings file
func getUserLibraryLocation() string {
	settingsPath := getSettingsFilePath()

	// If file doesn't exist, return empty string to fall back to defaults
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		return ""
	}

	// Read and parse the settings file
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return ""
	}

	var settings UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return ""
	}

	return settings.LibraryLocation
}
