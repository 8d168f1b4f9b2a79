package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// ErrNoTranscript is returned when a video has no usable captions
var ErrNoTranscript = errors.New("no transcript available")

// EnsureYtdlp installs a managed yt-dlp binary if none is present
func EnsureYtdlp(ctx context.Context) {
	ytdlp.MustInstall(ctx, nil)
}

// TranscriptState classifies the transcript cache column of a video
type TranscriptState int

const (
	// TranscriptNone means no fetch was ever attempted
	TranscriptNone TranscriptState = iota
	// TranscriptUnavailable means a fetch was attempted and found nothing
	TranscriptUnavailable
	// TranscriptCached means transcript text is stored
	TranscriptCached
)

// TranscriptStateOf maps the nullable column value to its state
func TranscriptStateOf(transcript *string) TranscriptState {
	switch {
	case transcript == nil:
		return TranscriptNone
	case strings.TrimSpace(*transcript) == "":
		return TranscriptUnavailable
	default:
		return TranscriptCached
	}
}

// TranscriptFetcher downloads captions for a video
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// YtdlpFetcher fetches captions with yt-dlp and converts them to plain text
type YtdlpFetcher struct {
	cacheDir string
	timeout  time.Duration
	logger   *Logger
}

// NewYtdlpFetcher creates a caption fetcher writing temp files under cacheDir
func NewYtdlpFetcher(cacheDir string, timeout time.Duration, logger *Logger) *YtdlpFetcher {
	return &YtdlpFetcher{cacheDir: cacheDir, timeout: timeout, logger: logger}
}

// Fetch downloads English captions (manual or auto-generated) for a video
// and returns them as clean plain text.
func (f *YtdlpFetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	if err := EnsureDirs(f.cacheDir); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	outputPath := filepath.Join(f.cacheDir, "%(id)s")
	videoURL := "https://www.youtube.com/watch?v=" + videoID

	dl := ytdlp.New().
		WriteSubs().
		WriteAutoSubs().
		SubLangs("en.*,en").
		ConvertSubs("srt").
		SkipDownload().
		Output(outputPath)

	result, runErr := dl.Run(ctx, videoURL)
	if runErr != nil && f.logger != nil {
		f.logger.Debugf("yt-dlp exited with error for %s: %v", videoID, runErr)
	}

	// yt-dlp sometimes exits non-zero after writing usable subtitle files,
	// so check for artifacts regardless of the exit code.
	pattern := filepath.Join(f.cacheDir, videoID+"*.srt")
	files, err := filepath.Glob(pattern)
	if err != nil || len(files) == 0 {
		if runErr != nil {
			if result != nil && result.Stderr != "" && f.logger != nil {
				f.logger.Debugf("yt-dlp stderr for %s: %s", videoID, result.Stderr)
			}
			return "", fmt.Errorf("downloading captions for %s: %w", videoID, runErr)
		}
		return "", fmt.Errorf("%w for %s", ErrNoTranscript, videoID)
	}

	defer func() {
		for _, file := range files {
			if err := os.Remove(file); err != nil && f.logger != nil {
				f.logger.Warnf("failed to remove subtitle file %s: %v", file, err)
			}
		}
	}()

	content, err := os.ReadFile(files[0])
	if err != nil {
		return "", fmt.Errorf("reading subtitle file: %w", err)
	}

	text := CleanSRT(string(content))
	if text == "" {
		return "", fmt.Errorf("%w for %s", ErrNoTranscript, videoID)
	}
	return text, nil
}

// CleanSRT converts SRT subtitle content to deduplicated plain text
func CleanSRT(content string) string {
	lines := parseSRT(content)
	deduplicated := removeDuplicates(lines)
	return strings.TrimSpace(strings.Join(deduplicated, "\n"))
}

// parseSRT extracts text content from SRT format
func parseSRT(content string) []string {
	var lines []string

	for block := range strings.SplitSeq(content, "\n\n") {
		blockLines := strings.Split(block, "\n")
		if len(blockLines) >= 3 {
			// Skip sequence number and timestamp, get text lines
			for i := 2; i < len(blockLines); i++ {
				if strings.TrimSpace(blockLines[i]) != "" {
					lines = append(lines, strings.TrimSpace(blockLines[i]))
				}
			}
		}
	}

	return lines
}

// removeDuplicates eliminates consecutive repeated lines
func removeDuplicates(lines []string) []string {
	result := make([]string, 0, len(lines))
	prevLine := ""

	for _, line := range lines {
		isDuplicate := prevLine != "" && (strings.Contains(line, prevLine) || strings.Contains(prevLine, line))
		if !isDuplicate {
			result = append(result, line)
		}
		prevLine = line
	}

	return result
}

// TranscriptService resolves transcripts through the database cache
type TranscriptService struct {
	store   *Store
	fetcher TranscriptFetcher
	logger  *Logger
}

// NewTranscriptService creates a transcript resolver
func NewTranscriptService(store *Store, fetcher TranscriptFetcher, logger *Logger) *TranscriptService {
	return &TranscriptService{store: store, fetcher: fetcher, logger: logger}
}

// Get returns the transcript for a video, fetching and caching it when the
// cache is empty. A video whose previous fetch failed is retried; the failed
// marker only prevents serving stale text, not new attempts.
func (t *TranscriptService) Get(ctx context.Context, video *Video) (string, error) {
	if TranscriptStateOf(video.Transcript) == TranscriptCached {
		return *video.Transcript, nil
	}

	text, err := t.fetcher.Fetch(ctx, video.VideoID)
	if err != nil || strings.TrimSpace(text) == "" {
		// Record the failed attempt so callers can tell "never tried"
		// from "tried and found nothing".
		empty := ""
		if saveErr := t.store.UpdateVideoTranscript(video.ID, &empty); saveErr != nil && t.logger != nil {
			t.logger.Warnf("failed to record transcript miss for %s: %v", video.VideoID, saveErr)
		}
		video.Transcript = &empty
		if err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w for %s", ErrNoTranscript, video.VideoID)
	}

	if saveErr := t.store.UpdateVideoTranscript(video.ID, &text); saveErr != nil && t.logger != nil {
		t.logger.Warnf("failed to cache transcript for %s: %v", video.VideoID, saveErr)
	}
	video.Transcript = &text
	return text, nil
}
