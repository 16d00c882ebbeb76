package services

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"muse/types"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

// MetadataExtractor parses one audio file's embedded tags into a normalized
// record. Parse failures are never fatal; callers fall back to the filename.
type MetadataExtractor interface {
	Extract(file types.ImportFile) *types.TrackMetadata
	TitleFromFilename(filename string) string
}

// metadataExtractor implements the MetadataExtractor interface
type metadataExtractor struct{}

// NewMetadataExtractor creates a new metadata extractor
func NewMetadataExtractor() MetadataExtractor {
	return &metadataExtractor{}
}

// Alternate native tag identifiers probed when the common tag set misses a
// field. Covers MP4/iTunes atoms, ID3v2.3/2.2 frames and vorbis comments.
var (
	altArtistKeys = []string{"\xa9ART", "aART", "TPE1", "TPE2", "TP1", "TP2", "artist", "albumartist", "album_artist"}
	altAlbumKeys  = []string{"\xa9alb", "TALB", "TAL", "album"}
	altTitleKeys  = []string{"\xa9nam", "TIT2", "TT2", "title"}
	altYearKeys   = []string{"\xa9day", "TDRC", "TYER", "TYE", "date", "year"}
	altGenreKeys  = []string{"\xa9gen", "TCON", "TCO", "genre"}
)

// trackNumberPrefix matches leading track numbers like "01 - ", "1. ", "03-"
var trackNumberPrefix = regexp.MustCompile(`^(\d+)[\.\-\s]+(.+)`)

// Extract parses the file's embedded tag container with fallback logic
func (me *metadataExtractor) Extract(file types.ImportFile) *types.TrackMetadata {
	meta := &types.TrackMetadata{}

	reader, closeFn, err := openImportFile(file)
	if err != nil {
		log.Printf("Warning: Could not open audio file %s: %v", file.Filename, err)
		return meta
	}
	defer closeFn()

	parsed, err := tag.ReadFrom(reader)
	if err != nil {
		log.Printf("Warning: Could not parse audio metadata from %s: %v", file.Filename, err)
		return meta
	}

	// Common tag set first
	meta.Title = normalizeTagValue(parsed.Title())
	meta.Artist = normalizeTagValue(parsed.Artist())
	meta.Album = normalizeTagValue(parsed.Album())
	meta.Genre = normalizeTagValue(parsed.Genre())
	if year := parsed.Year(); year > 0 {
		meta.Year = strconv.Itoa(year)
	}

	// Probe alternate native tag identifiers for anything still missing
	raw := parsed.Raw()
	if meta.Artist == "" {
		meta.Artist = probeRawTags(raw, altArtistKeys)
	}
	if meta.Album == "" {
		meta.Album = probeRawTags(raw, altAlbumKeys)
	}
	if meta.Title == "" {
		meta.Title = probeRawTags(raw, altTitleKeys)
	}
	if meta.Year == "" {
		meta.Year = probeRawTags(raw, altYearKeys)
	}
	if meta.Genre == "" {
		meta.Genre = probeRawTags(raw, altGenreKeys)
	}

	meta.Picture = extractPicture(parsed)

	// dhowden/tag does not expose duration; FLAC streams carry enough in
	// STREAMINFO to compute it directly.
	if strings.EqualFold(filepath.Ext(file.Filename), ".flac") {
		if _, err := reader.Seek(0, io.SeekStart); err == nil {
			meta.Duration = flacDuration(reader)
		}
	}

	return meta
}

// TitleFromFilename derives a track title from the filename by stripping the
// extension and any leading track-number prefix.
func (me *metadataExtractor) TitleFromFilename(filename string) string {
	title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	if matches := trackNumberPrefix.FindStringSubmatch(title); len(matches) > 2 {
		title = matches[2]
	}

	return strings.TrimSpace(title)
}

// openImportFile returns a seekable reader over the file's content
func openImportFile(file types.ImportFile) (io.ReadSeeker, func(), error) {
	if file.Content != nil {
		return bytes.NewReader(file.Content), func() {}, nil
	}

	if file.FullPath == "" {
		return nil, nil, fmt.Errorf("import file %q has no content or path", file.Filename)
	}

	f, err := os.Open(file.FullPath)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// normalizeTagValue collapses the value shapes different tag containers
// produce (plain strings, numbers, value lists) into a single primitive,
// discarding empty or sentinel "undefined" strings.
func normalizeTagValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "undefined") {
			return ""
		}
		return s
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		if len(v) > 0 {
			return normalizeTagValue(v[0])
		}
		return ""
	case []interface{}:
		if len(v) > 0 {
			return normalizeTagValue(v[0])
		}
		return ""
	case *tag.Comm:
		if v != nil {
			return normalizeTagValue(v.Text)
		}
		return ""
	default:
		return ""
	}
}

// probeRawTags takes the first non-empty normalized hit from an ordered list
// of native tag identifiers.
func probeRawTags(raw map[string]interface{}, keys []string) string {
	if raw == nil {
		return ""
	}
	for _, key := range keys {
		if value, ok := raw[key]; ok {
			if s := normalizeTagValue(value); s != "" {
				return s
			}
		}
	}
	return ""
}

// extractPicture checks the standard embedded-picture slot first, then scans
// the native tag groups for any alternate artwork payload.
func extractPicture(parsed tag.Metadata) *types.Picture {
	if pic := parsed.Picture(); pic != nil && len(pic.Data) > 0 {
		return &types.Picture{Data: pic.Data, MIMEType: pictureMIME(pic)}
	}

	for _, value := range parsed.Raw() {
		if pic, ok := value.(*tag.Picture); ok && pic != nil && len(pic.Data) > 0 {
			return &types.Picture{Data: pic.Data, MIMEType: pictureMIME(pic)}
		}
	}

	return nil
}

// pictureMIME returns the payload's mime type, defaulting to JPEG
func pictureMIME(pic *tag.Picture) string {
	if pic.MIMEType != "" {
		return pic.MIMEType
	}
	return "image/jpeg"
}

// flacDuration computes the stream duration in seconds from the FLAC
// STREAMINFO metadata block. Returns 0 if the stream is not readable.
func flacDuration(r io.Reader) float64 {
	marker := make([]byte, 4)
	if _, err := io.ReadFull(r, marker); err != nil || string(marker) != "fLaC" {
		return 0
	}

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			return 0
		}

		last := header[0]&0x80 != 0
		blockType := header[0] & 0x7F
		length := int(binary.BigEndian.Uint32(append([]byte{0}, header[1:4]...)))

		if blockType == 0 && length >= 34 {
			info := make([]byte, length)
			if _, err := io.ReadFull(r, info); err != nil {
				return 0
			}

			sampleRate := uint32(info[10])<<12 | uint32(info[11])<<4 | uint32(info[12])>>4
			totalSamples := uint64(info[13]&0x0F)<<32 |
				uint64(info[14])<<24 | uint64(info[15])<<16 | uint64(info[16])<<8 | uint64(info[17])

			if sampleRate == 0 || totalSamples == 0 {
				return 0
			}
			return float64(totalSamples) / float64(sampleRate)
		}

		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return 0
		}
		if last {
			return 0
		}
	}
}
