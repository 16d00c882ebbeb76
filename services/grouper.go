package services

import (
	"encoding/base64"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"muse/types"

	"github.com/google/uuid"
)

// ExtractedTrack pairs one candidate file with its parsed metadata
type ExtractedTrack struct {
	File     types.ImportFile
	Metadata *types.TrackMetadata
}

// AlbumGrouper groups an ordered batch of extracted tracks into albums
// keyed by (artist, album title) after default substitution.
type AlbumGrouper interface {
	Group(tracks []ExtractedTrack, sourceLabel string) []*types.Album
}

// albumGrouper implements the AlbumGrouper interface
type albumGrouper struct {
	extractor MetadataExtractor
}

// NewAlbumGrouper creates a new album grouper
func NewAlbumGrouper(extractor MetadataExtractor) AlbumGrouper {
	return &albumGrouper{extractor: extractor}
}

// leadingYear matches the year part of values like "2001" or "2001-05-12"
var leadingYear = regexp.MustCompile(`^\d{4}`)

// Group accumulates tracks into albums in first-encountered key order.
// The first file of a key establishes the album's year and cover; every
// track keeps its own embedded art when it carries any.
func (g *albumGrouper) Group(tracks []ExtractedTrack, sourceLabel string) []*types.Album {
	albumsByKey := make(map[string]*types.Album)
	var order []string

	for _, t := range tracks {
		artist := t.Metadata.Artist
		if artist == "" {
			artist = types.UnknownArtist
		}

		albumTitle := g.resolveAlbumTitle(t, sourceLabel)

		title := t.Metadata.Title
		if title == "" {
			title = g.extractor.TitleFromFilename(t.File.Filename)
		}

		cover := types.PlaceholderCover
		if t.Metadata.Picture != nil {
			cover = pictureDataURI(t.Metadata.Picture)
		}

		key := artist + "-" + albumTitle
		album, exists := albumsByKey[key]
		if !exists {
			album = &types.Album{
				ID:         "album-" + uuid.New().String(),
				Title:      albumTitle,
				Artist:     artist,
				Year:       coerceYear(t.Metadata.Year),
				Cover:      cover,
				FolderName: sourceLabel,
			}
			albumsByKey[key] = album
			order = append(order, key)
		} else if t.Metadata.Picture == nil {
			// Art-less files on an existing album inherit its cover.
			cover = album.Cover
		}

		album.Tracks = append(album.Tracks, &types.Track{
			ID:       "track-" + uuid.New().String(),
			Title:    title,
			Artist:   artist,
			Album:    albumTitle,
			AlbumID:  album.ID,
			Duration: t.Metadata.Duration,
			Cover:    cover,
			URL:      t.File.URL,
			Genre:    t.Metadata.Genre,
		})
	}

	albums := make([]*types.Album, 0, len(order))
	for _, key := range order {
		albums = append(albums, albumsByKey[key])
	}
	return albums
}

// resolveAlbumTitle applies the album-title fallback chain:
// tag album -> enclosing relative-path folder -> source label -> unknown.
func (g *albumGrouper) resolveAlbumTitle(t ExtractedTrack, sourceLabel string) string {
	if t.Metadata.Album != "" {
		return t.Metadata.Album
	}

	if t.File.RelPath != "" {
		dir := path.Dir(filepath.ToSlash(t.File.RelPath))
		if dir != "." && dir != "/" {
			if segment := path.Base(dir); segment != "" && segment != "." {
				return segment
			}
		}
	}

	if sourceLabel != "" {
		return sourceLabel
	}

	return types.UnknownAlbum
}

// coerceYear converts a raw tag year to a number, defaulting to the current
// calendar year when absent or unparsable.
func coerceYear(raw string) int {
	if raw != "" {
		if year, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && year > 0 {
			return year
		}
		// Release dates like "2001-05-12" coerce to their year part
		if m := leadingYear.FindString(strings.TrimSpace(raw)); m != "" {
			if year, err := strconv.Atoi(m); err == nil {
				return year
			}
		}
	}
	return time.Now().Year()
}

// pictureDataURI converts embedded artwork into an embeddable data URI
func pictureDataURI(pic *types.Picture) string {
	return "data:" + pic.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(pic.Data)
}
