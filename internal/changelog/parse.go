package changelog

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kyleking/gh-releasewatch/internal/logs"
)

// Glyphs the notification step uses to start a changelog line.
var bullets = []string{"●", "•", "◦", "▪", "➤"}

const minMessageLen = 3

var (
	// "[a1b2c3d]: msg", "~Dev~: msg", "(scope): msg"
	metaSeparator = regexp.MustCompile(`[\]\)~]\s*:`)

	conventionalType = regexp.MustCompile(`(?i)(^|[\s\]])(feat|fix|chore|docs|refactor|perf|test|build|ci|style|revert)(\([^)]*\))?!?:`)
	changeVerb       = regexp.MustCompile(`(?i)\b(added|upgraded|updated|removed|fixed|improved)\b`)

	noisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(current runner version|runner image|runner name|machine name|image:|version:|operating system|included software|image release)`),
		regexp.MustCompile(`^\s*(##\[(warning|error|notice|debug|section|command)\]|\[command\])`),
		regexp.MustCompile(`(?i)^\s*([+$>] |(echo|printf|curl|export|cat)\b|(shell|env):)`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`),
		regexp.MustCompile(`^\s*(#|//)`),
	}

	commitRef     = regexp.MustCompile(`\[([0-9a-f]{7,40})\](\([^)]*\))?`)
	commitURL     = regexp.MustCompile(`https?://\S+/commit/([0-9a-f]{7,40})[^\s)]*`)
	authorPair    = regexp.MustCompile(`~([^~]+)~`)
	authorTrail   = regexp.MustCompile(`\s~([^~\[\]()]+)$`)
	emptyParens   = regexp.MustCompile(`\(\s*\)`)
	residualNoise = regexp.MustCompile(`(^|\s)%(\s|$)|\$\{?[A-Za-z_][A-Za-z0-9_]*\}?`)
)

// ParseLines extracts changelog entries from the raw log of a notification
// job. Entries whose commit cannot be recovered have an empty CommitID.
func ParseLines(raw string) []Entry {
	var entries []Entry
	seen := make(map[Entry]bool)

	for _, line := range logs.Lines(raw) {
		if !isCandidate(line) {
			continue
		}
		e, ok := parseLine(line)
		if !ok || seen[e] {
			continue
		}
		seen[e] = true
		entries = append(entries, e)
	}
	return entries
}

func isCandidate(line string) bool {
	if !hasBullet(line) || logs.IsGroupMarker(strings.TrimSpace(line)) {
		return false
	}
	if !metaSeparator.MatchString(line) && !conventionalType.MatchString(line) && !changeVerb.MatchString(line) {
		return false
	}
	for _, re := range noisePatterns {
		if re.MatchString(line) {
			return false
		}
	}
	return true
}

func hasBullet(line string) bool {
	for _, b := range bullets {
		if strings.Contains(line, b) {
			return true
		}
	}
	return false
}

func parseLine(line string) (Entry, bool) {
	text := afterBullet(line)

	var e Entry
	if m := commitRef.FindStringSubmatch(text); m != nil {
		e.CommitID = m[1]
		text = strings.Replace(text, m[0], " ", 1)
	}
	if m := commitURL.FindStringSubmatch(text); m != nil {
		if e.CommitID == "" {
			e.CommitID = m[1]
		}
		text = strings.Replace(text, m[0], " ", 1)
	}

	if m := authorPair.FindStringSubmatch(text); m != nil {
		e.Author = strings.TrimSpace(m[1])
		text = strings.Replace(text, m[0], " ", 1)
	} else if m := authorTrail.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		e.Author = strings.TrimSpace(m[1])
		text = strings.TrimSuffix(strings.TrimSpace(text), strings.TrimLeft(m[0], " \t"))
	}

	e.Message = cleanMessage(text)
	if utf8.RuneCountInString(e.Message) < minMessageLen || residualNoise.MatchString(e.Message) {
		return Entry{}, false
	}
	return e, true
}

func afterBullet(line string) string {
	idx, size := -1, 0
	for _, b := range bullets {
		if i := strings.Index(line, b); i >= 0 && (idx < 0 || i < idx) {
			idx, size = i, len(b)
		}
	}
	if idx < 0 {
		return line
	}
	return line[idx+size:]
}

func cleanMessage(s string) string {
	s = emptyParens.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " :|-")
}
