package changelog

import (
	"fmt"
	"strings"

	"github.com/kyleking/gh-releasewatch/internal/github"
)

// Bullet prefixes every emitted changelog line.
const Bullet = "●"

// Placeholder changelogs that carry no commit information. The publisher
// leaves release notes untouched when it receives one of these.
const (
	NoNewCommits     = Bullet + " No new commits"
	NoRunData        = Bullet + " No workflow run data available"
	NoSendMessageJob = Bullet + " No sendMessage job found"
	FetchError       = Bullet + " Error fetching commit logs"
)

var sentinels = []string{NoNewCommits, NoRunData, NoSendMessageJob, FetchError}

// IsSentinel reports whether changelog is one of the "no data" placeholders.
func IsSentinel(changelog string) bool {
	changelog = strings.TrimSpace(changelog)
	if changelog == "" {
		return true
	}
	for _, s := range sentinels {
		if changelog == s {
			return true
		}
	}
	return false
}

// Entry is one changelog line before formatting.
type Entry struct {
	Message  string
	Author   string
	CommitID string
}

// LinkFunc returns the web link for a commit.
type LinkFunc func(sha string) string

// Format renders e as a bullet line with a commit link.
func (e Entry) Format(link LinkFunc) string {
	var b strings.Builder
	b.WriteString(Bullet)
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Author != "" {
		b.WriteString(" ~")
		b.WriteString(e.Author)
	}
	if e.CommitID != "" {
		fmt.Fprintf(&b, " [%s](%s)", github.ShortSHA(e.CommitID), link(e.CommitID))
	}
	return b.String()
}

// FromCommit builds an entry from the subject line of c.
func FromCommit(c github.Commit) Entry {
	return Entry{Message: c.Subject(), Author: c.Author, CommitID: c.SHA}
}

// Encode makes a changelog safe for single-line transports. It must be
// applied exactly once; the publisher reverses it.
func Encode(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\n", "%0A")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return s
}
