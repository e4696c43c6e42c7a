// Package lyrics fetches and extracts song lyrics from Genius song pages.
package lyrics

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/obadiaz/lyricsbot/internal/logger"
)

// ErrNotFound means the page fetched fine but yielded no lyrics blocks.
var ErrNotFound = errors.New("lyrics: not found on page")

// Genius renders lyrics in one of these containers depending on page
// generation.
const lyricsSelector = `div[data-lyrics-container="true"], .Lyrics__container, div[class^="Lyrics__Container"]`

// Scraper fetches a lyrics page and extracts the text.
type Scraper struct {
	httpClient *http.Client
	userAgent  string
}

func NewScraper() *Scraper {
	return &Scraper{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	}
}

// Fetch downloads pageURL and returns the raw lyrics text.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	return ExtractFromDocument(doc)
}

// ExtractFromDocument pulls lyrics text out of a parsed Genius page.
func ExtractFromDocument(doc *goquery.Document) (string, error) {
	selection := doc.Find(lyricsSelector)
	if selection.Length() == 0 {
		return "", ErrNotFound
	}

	// <br> separates lyric lines in the DOM; make them real newlines before
	// flattening to text.
	selection.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})

	var b strings.Builder
	selection.Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
		b.WriteString("\n")
	})

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrNotFound
	}
	return text, nil
}

// Service combines the scraper with the local cache. Repeat selections of
// the same song skip the network entirely.
type Service struct {
	scraper *Scraper
	cache   *Cache
}

// NewService creates the lyrics service. cache may be nil.
func NewService(cache *Cache) *Service {
	return &Service{
		scraper: NewScraper(),
		cache:   cache,
	}
}

// Lyrics returns the formatted lyrics for a song page URL.
func (s *Service) Lyrics(ctx context.Context, pageURL string) (string, error) {
	if s.cache != nil {
		if text, ok := s.cache.Get(pageURL); ok {
			logger.Debug("lyrics cache hit", zap.String("url", pageURL))
			return text, nil
		}
	}

	raw, err := s.scraper.Fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}

	text := Format(raw)
	if s.cache != nil {
		if err := s.cache.Put(pageURL, text); err != nil {
			logger.Warn("failed to cache lyrics", zap.String("url", pageURL), zap.Error(err))
		}
	}
	return text, nil
}
