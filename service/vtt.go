package service

import (
	"regexp"
	"strings"
)

var (
	vttTimestampRe = regexp.MustCompile(`^\d{2}:\d{2}`)
	vttTimingRe    = regexp.MustCompile(`^[\d\s\-:.>]+$`)
	vttTagRe       = regexp.MustCompile(`<[^>]+>`)
)

// ParseVTT strips WebVTT headers, cue timings, and inline tags from a
// caption file and returns the transcript as a single line. Auto
// captions repeat each cue, so duplicate lines within a short window
// are dropped.
func ParseVTT(vtt string) string {
	var lines []string
	seen := make(map[string]struct{})

	for _, line := range strings.Split(vtt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" ||
			strings.HasPrefix(line, "WEBVTT") ||
			strings.HasPrefix(line, "Kind:") ||
			strings.HasPrefix(line, "Language:") {
			continue
		}
		if vttTimestampRe.MatchString(line) || vttTimingRe.MatchString(line) {
			continue
		}
		line = strings.TrimSpace(vttTagRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		lines = append(lines, line)
		seen[line] = struct{}{}
		// Allow genuinely repeated phrases back in eventually.
		if len(seen) > 20 {
			seen = make(map[string]struct{})
		}
	}
	return strings.Join(lines, " ")
}
