package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const lookupUserAgent = "Muse/1.0 (https://github.com/muse-player/muse)"

// MusicBrainzLookup resolves cover art in two steps: search the MusicBrainz
// release registry by artist and release title, then fetch the front cover
// from the Cover Art Archive keyed by the release id. The image is returned
// as an embeddable data URI.
type MusicBrainzLookup struct {
	client        *http.Client
	searchBaseURL string
	coverBaseURL  string
	limiter       chan time.Time // token-bucket rate limiter: 1 req/sec
}

// NewMusicBrainzLookup creates a cover lookup against the given endpoints
func NewMusicBrainzLookup(searchBaseURL, coverBaseURL string) *MusicBrainzLookup {
	s := &MusicBrainzLookup{
		client:        &http.Client{Timeout: 10 * time.Second},
		searchBaseURL: searchBaseURL,
		coverBaseURL:  coverBaseURL,
		limiter:       make(chan time.Time, 1),
	}
	s.limiter <- time.Now().Add(-time.Second) // allow immediate first request
	return s
}

// waitRateLimit enforces MusicBrainz's 1 request/second policy.
func (s *MusicBrainzLookup) waitRateLimit() {
	last := <-s.limiter
	elapsed := time.Since(last)
	if elapsed < time.Second {
		time.Sleep(time.Second - elapsed)
	}
	s.limiter <- time.Now()
}

// Lookup implements the CoverLookup interface
func (s *MusicBrainzLookup) Lookup(ctx context.Context, artist, album string) (string, error) {
	mbid, err := s.searchRelease(ctx, artist, album)
	if err != nil {
		return "", err
	}

	return s.fetchFrontCover(ctx, mbid)
}

// searchRelease returns the best-matching release id for artist+album
func (s *MusicBrainzLookup) searchRelease(ctx context.Context, artist, album string) (string, error) {
	query := fmt.Sprintf(`artist:%q AND release:%q`, artist, album)
	reqURL := fmt.Sprintf("%s/release/?query=%s&fmt=json&limit=1",
		s.searchBaseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", lookupUserAgent)
	req.Header.Set("Accept", "application/json")

	s.waitRateLimit()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return "", ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("MusicBrainz search failed: %s", resp.Status)
	}

	var result struct {
		Releases []struct {
			ID string `json:"id"`
		} `json:"releases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Releases) == 0 {
		return "", ErrNoCoverFound
	}
	return result.Releases[0].ID, nil
}

// fetchFrontCover downloads the release's front cover and transcodes it
// into a data URI.
func (s *MusicBrainzLookup) fetchFrontCover(ctx context.Context, mbid string) (string, error) {
	reqURL := fmt.Sprintf("%s/release/%s/front", s.coverBaseURL, mbid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", lookupUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return "", ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		// The archive has no front image for this release
		return "", ErrNoCoverFound
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
