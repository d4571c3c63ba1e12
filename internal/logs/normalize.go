// Package logs normalises raw GitHub Actions job logs.
package logs

import (
	"bufio"
	"regexp"
	"strings"
)

// Raw job logs look like:
//
//	2024-05-01T10:00:00.1234567Z ##[group]Run ./notify.sh
//	2024-05-01T10:00:00.2345678Z ● fix: crash on start ~Dev~: [a1b2c3d]
//	2024-05-01T10:00:01.0000000Z ##[endgroup]
var runnerTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z\s?`)

const maxLineSize = 1024 * 1024

// StripTimestamp removes the timestamp the runner prefixes to every line.
func StripTimestamp(line string) string {
	return runnerTimestamp.ReplaceAllString(line, "")
}

// Lines splits a raw job log into lines with runner timestamps, carriage
// returns and the leading byte order mark removed.
func Lines(raw string) []string {
	raw = strings.TrimPrefix(raw, "\ufeff")

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lines = append(lines, StripTimestamp(line))
	}
	return lines
}

// IsGroupMarker reports whether line opens or closes a collapsible step group.
func IsGroupMarker(line string) bool {
	return strings.HasPrefix(line, "##[group]") || strings.HasPrefix(line, "##[endgroup]")
}
