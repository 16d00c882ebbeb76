package services

import (
	"strings"

	"muse/types"
)

// ReconcileFolder merges a freshly regrouped folder's albums into the
// current collection: albums attributable to that folder are replaced
// wholesale, everything else is retained untouched.
//
// Ownership prefers the album's persisted folder provenance when both sides
// carry one. Albums imported before provenance existed fall back to the
// legacy heuristic: an album is locally sourced (replaceable) when any of
// its tracks plays from a non-remote URL.
func ReconcileFolder(current, fresh []*types.Album, folderName string) []*types.Album {
	merged := make([]*types.Album, 0, len(current)+len(fresh))

	for _, album := range current {
		if albumBelongsToFolder(album, folderName) {
			continue
		}
		merged = append(merged, album)
	}

	return append(merged, fresh...)
}

func albumBelongsToFolder(album *types.Album, folderName string) bool {
	if album.FolderName != "" {
		return album.FolderName == folderName
	}

	for _, track := range album.Tracks {
		if isLocalSourceURL(track.URL) {
			return true
		}
	}
	return false
}

// isLocalSourceURL reports whether a playable URL references local content
// rather than a remote stream.
func isLocalSourceURL(u string) bool {
	if u == "" {
		return false
	}
	return !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://")
}
