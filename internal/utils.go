package internal

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// IsValidYouTubeID checks if a string looks like a valid YouTube video ID
func IsValidYouTubeID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// ExtractVideoID pulls the 11-character video ID out of any common YouTube
// URL shape: watch, youtu.be, shorts, embed, and their mobile variants.
// A bare video ID is also accepted.
func ExtractVideoID(arg string) (string, error) {
	arg = strings.TrimSpace(arg)

	if IsValidYouTubeID(arg) {
		return arg, nil
	}

	if !strings.Contains(arg, "://") {
		arg = "https://" + arg
	}

	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}

	host := strings.TrimPrefix(u.Host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		if IsValidYouTubeID(id) {
			return id, nil
		}
	case "youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); IsValidYouTubeID(v) {
			return v, nil
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/", "/v/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id := strings.SplitN(rest, "/", 2)[0]
				if IsValidYouTubeID(id) {
					return id, nil
				}
			}
		}
	default:
		return "", fmt.Errorf("not a YouTube URL: %s", arg)
	}

	return "", fmt.Errorf("could not extract video ID from URL: %s", arg)
}

// FileExists checks if a file exists
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}

// EnsureDirs creates directories if needed
func EnsureDirs(dir ...string) error {
	for _, dir := range dir {
		if !FileExists(dir) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

// Truncate shortens s to at most max runes
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
