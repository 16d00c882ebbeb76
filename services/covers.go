package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"muse/types"
	"muse/websocket"
)

// Sentinel results from a cover lookup. ErrNoCoverFound means the registry
// had no match, which is not a failure; ErrQuotaExceeded aborts the batch.
var (
	ErrNoCoverFound  = errors.New("no cover art found")
	ErrQuotaExceeded = errors.New("cover lookup quota exceeded")
)

// CoverLookup resolves an album's artwork from a remote registry
type CoverLookup interface {
	Lookup(ctx context.Context, artist, album string) (string, error)
}

// Cover backfill limits. The inter-request delay and batch cap are a
// deliberate throttle against the registry's usage policy; do not
// parallelize the loop.
const (
	backfillDelay       = time.Second
	maxLookupsPerImport = 10
)

// CoverBackfill resolves real artwork for albums still showing the
// placeholder cover, sequentially and rate-limited.
type CoverBackfill interface {
	Backfill(ctx context.Context, jobID string, albums []*types.Album) int
}

// coverBackfill implements the CoverBackfill interface
type coverBackfill struct {
	lookup CoverLookup
	hub    websocket.Hub
	delay  time.Duration
	cap    int
	sleep  func(time.Duration)
}

// NewCoverBackfill creates a new cover backfill service
func NewCoverBackfill(lookup CoverLookup, hub websocket.Hub) CoverBackfill {
	return &coverBackfill{
		lookup: lookup,
		hub:    hub,
		delay:  backfillDelay,
		cap:    maxLookupsPerImport,
		sleep:  time.Sleep,
	}
}

// Backfill processes placeholder-covered albums in order, at most cap per
// batch, pausing between lookups. Successful hits update the album and all
// of its tracks in place and emit an album_updated event. Returns the
// number of albums updated.
func (b *coverBackfill) Backfill(ctx context.Context, jobID string, albums []*types.Album) int {
	var candidates []*types.Album
	for _, album := range albums {
		if album.HasPlaceholderCover() {
			candidates = append(candidates, album)
		}
	}
	if len(candidates) > b.cap {
		log.Printf("Cover backfill capped at %d of %d candidate albums", b.cap, len(candidates))
		candidates = candidates[:b.cap]
	}

	updated := 0
	for i, album := range candidates {
		if i > 0 {
			b.sleep(b.delay)
		}

		coverURL, err := b.lookup.Lookup(ctx, album.Artist, album.Title)
		if err != nil {
			if errors.Is(err, ErrQuotaExceeded) || isQuotaError(err) {
				log.Printf("Cover lookup quota exceeded, aborting backfill with %d albums remaining",
					len(candidates)-i-1)
				break
			}
			if errors.Is(err, ErrNoCoverFound) {
				continue
			}
			log.Printf("Cover lookup failed for %s - %s: %v", album.Artist, album.Title, err)
			continue
		}
		if coverURL == "" {
			continue
		}

		album.SetCover(coverURL)
		updated++

		if b.hub != nil {
			// The hub serializes messages on its own goroutine; hand it a
			// copy so later writes to the album cannot race that encode.
			b.hub.BroadcastEvent(types.LibraryMessage{
				JobID:     jobID,
				Type:      types.EventAlbumUpdated,
				Album:     album.Clone(),
				Message:   "Cover art resolved for " + album.Title,
				Timestamp: time.Now(),
			})
		}
	}

	return updated
}

// isQuotaError detects quota/rate-limit wording in lookup errors that do not
// use the sentinel.
func isQuotaError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}
