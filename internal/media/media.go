// Package media downloads audio or video for a song via yt-dlp and
// transcodes audio to mp3 via ffmpeg. Both run as subprocesses bounded by
// the caller's context.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obadiaz/lyricsbot/internal/logger"
)

// Kind selects the downloaded format.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// DownloadError is any failure of the download/transcode pipeline.
type DownloadError struct {
	Op  string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("media: %s failed: %v", e.Op, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Video is one YouTube search hit.
type Video struct {
	Title        string
	URL          string
	ThumbnailURL string
	Duration     float64
}

// Fetcher wraps the yt-dlp and ffmpeg binaries.
type Fetcher struct {
	ytdlpPath  string
	ffmpegPath string
	workDir    string
	timeout    time.Duration
}

// NewFetcher creates a fetcher. Empty workDir means the OS temp dir; zero
// timeout means 5 minutes per operation.
func NewFetcher(ytdlpPath, ffmpegPath, workDir string, timeout time.Duration) *Fetcher {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Fetcher{
		ytdlpPath:  ytdlpPath,
		ffmpegPath: ffmpegPath,
		workDir:    workDir,
		timeout:    timeout,
	}
}

// FindVideo returns the best YouTube match for query.
func (f *Fetcher) FindVideo(ctx context.Context, query string) (Video, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ytdlpPath,
		"--dump-json", "--no-playlist", "ytsearch1:"+query)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Video{}, &DownloadError{Op: "video search", Err: fmt.Errorf("%w: %s", err, firstLine(stderr.String()))}
	}

	var parsed struct {
		Title      string  `json:"title"`
		WebpageURL string  `json:"webpage_url"`
		Thumbnail  string  `json:"thumbnail"`
		Duration   float64 `json:"duration"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return Video{}, &DownloadError{Op: "video search", Err: fmt.Errorf("failed to decode yt-dlp output: %w", err)}
	}
	if parsed.WebpageURL == "" {
		return Video{}, &DownloadError{Op: "video search", Err: fmt.Errorf("no match for query %q", query)}
	}

	return Video{
		Title:        parsed.Title,
		URL:          parsed.WebpageURL,
		ThumbnailURL: parsed.Thumbnail,
		Duration:     parsed.Duration,
	}, nil
}

// Fetch downloads videoURL and returns the local file path. Audio is
// transcoded to mp3; video comes back as mp4. The caller owns the returned
// file and should remove it after delivery.
func (f *Fetcher) Fetch(ctx context.Context, videoURL string, kind Kind) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	base := filepath.Join(f.workDir, "lyricsbot-"+uuid.NewString()[:8])

	switch kind {
	case KindVideo:
		out := base + ".mp4"
		if err := f.runYtdlp(ctx, videoURL, "-f", "mp4", "-o", out); err != nil {
			return "", err
		}
		return out, nil
	case KindAudio:
		raw := base + ".m4a"
		if err := f.runYtdlp(ctx, videoURL, "-f", "bestaudio[ext=m4a]/bestaudio", "-o", raw); err != nil {
			return "", err
		}
		defer os.Remove(raw)

		out := base + ".mp3"
		if err := f.runFfmpeg(ctx, raw, out); err != nil {
			return "", err
		}
		return out, nil
	}

	return "", &DownloadError{Op: "fetch", Err: fmt.Errorf("unknown kind %q", kind)}
}

func (f *Fetcher) runYtdlp(ctx context.Context, videoURL string, args ...string) error {
	full := append([]string{"--no-playlist", "--no-progress"}, args...)
	full = append(full, videoURL)

	cmd := exec.CommandContext(ctx, f.ytdlpPath, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("running yt-dlp", zap.Strings("args", full))
	if err := cmd.Run(); err != nil {
		return &DownloadError{Op: "download", Err: fmt.Errorf("%w: %s", err, firstLine(stderr.String()))}
	}
	return nil
}

func (f *Fetcher) runFfmpeg(ctx context.Context, in, out string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y", "-i", in, "-vn", "-codec:a", "libmp3lame", "-q:a", "2", out)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("running ffmpeg", zap.String("in", in), zap.String("out", out))
	if err := cmd.Run(); err != nil {
		return &DownloadError{Op: "transcode", Err: fmt.Errorf("%w: %s", err, firstLine(stderr.String()))}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
