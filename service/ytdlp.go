package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// YtDlp shells out to the yt-dlp binary for YouTube metadata and
// captions. The binary must be on PATH.
type YtDlp struct {
	bin     string
	tempDir string
}

// NewYtDlp returns a wrapper around the yt-dlp binary.
func NewYtDlp() *YtDlp {
	return &YtDlp{bin: "yt-dlp", tempDir: os.TempDir()}
}

// PlaylistEntry is one video row from a flat playlist dump.
type PlaylistEntry struct {
	VideoID string
	Title   string
}

// PlaylistVideos lists the newest videos of a channel or playlist URL
// without resolving each one.
func (y *YtDlp) PlaylistVideos(ctx context.Context, url string, limit int) ([]PlaylistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	out, err := exec.CommandContext(ctx, y.bin,
		"--flat-playlist",
		"--print", "%(id)s\t%(title)s",
		"--playlist-end", strconv.Itoa(limit),
		"--no-warnings",
		url,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp playlist %s: %w", url, ytdlpErr(err))
	}

	var entries []PlaylistEntry
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		id, title, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		entries = append(entries, PlaylistEntry{VideoID: id, Title: title})
	}
	return entries, nil
}

// VideoDuration returns a video's length in seconds.
func (y *YtDlp) VideoDuration(ctx context.Context, videoID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, y.bin,
		"--print", "duration",
		"--no-download",
		"--no-warnings",
		"--", "https://www.youtube.com/watch?v="+videoID,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("yt-dlp duration %s: %w", videoID, ytdlpErr(err))
	}
	raw := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("yt-dlp duration %s: unparsable output %q", videoID, raw)
	}
	return int(seconds), nil
}

// Captions downloads a video's English auto-captions and returns the
// cleaned transcript. Returns an empty string when the video has none.
func (y *YtDlp) Captions(ctx context.Context, videoID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	base := filepath.Join(y.tempDir, "caption_"+videoID)
	_, err := exec.CommandContext(ctx, y.bin,
		"--write-auto-sub",
		"--sub-lang", "en",
		"--skip-download",
		"--sub-format", "vtt",
		"--no-warnings",
		"-o", base,
		"--", "https://www.youtube.com/watch?v="+videoID,
	).Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp captions %s: %w", videoID, ytdlpErr(err))
	}

	matches, _ := filepath.Glob(base + "*.vtt")
	if len(matches) == 0 {
		return "", nil
	}
	data, err := os.ReadFile(matches[0])
	for _, m := range matches {
		os.Remove(m)
	}
	if err != nil {
		return "", fmt.Errorf("read captions %s: %w", videoID, err)
	}
	return ParseVTT(string(data)), nil
}

// ytdlpErr surfaces stderr from a failed run.
func ytdlpErr(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		msg := strings.TrimSpace(string(exitErr.Stderr))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}
