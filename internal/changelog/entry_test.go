package changelog

import (
	"strings"
	"testing"

	"github.com/kyleking/gh-releasewatch/internal/github"
)

func testLink(sha string) string {
	return "https://github.com/o/r/commit/" + sha
}

func TestEntry_Format(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			"with author",
			Entry{Message: "fix: crash", Author: "Dev", CommitID: "a1b2c3d4e5f6"},
			"● fix: crash ~Dev [a1b2c3d](https://github.com/o/r/commit/a1b2c3d4e5f6)",
		},
		{
			"without author",
			Entry{Message: "fix: crash", CommitID: "a1b2c3d"},
			"● fix: crash [a1b2c3d](https://github.com/o/r/commit/a1b2c3d)",
		},
		{
			"without commit",
			Entry{Message: "fix: crash"},
			"● fix: crash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Format(testLink); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromCommit_UsesSubject(t *testing.T) {
	e := FromCommit(github.Commit{SHA: "abc", Message: "subject line\n\nbody text", Author: "Dev"})
	if e.Message != "subject line" || e.Author != "Dev" || e.CommitID != "abc" {
		t.Errorf("FromCommit = %+v", e)
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "● fix", "● fix"},
		{"newline", "a\nb", "a%0Ab"},
		{"carriage return", "a\r\nb", "a%0D%0Ab"},
		{"percent first", "100%\n", "100%25%0A"},
		{"already encoded text is re-encoded", "%0A", "%250A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.in)
			if got != tt.want {
				t.Errorf("Encode(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.ContainsAny(got, "\r\n") {
				t.Errorf("Encode(%q) left a line break", tt.in)
			}
		})
	}
}

func TestIsSentinel(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{NoNewCommits, true},
		{NoRunData, true},
		{NoSendMessageJob, true},
		{FetchError, true},
		{"  " + NoNewCommits + "\n", true},
		{"", true},
		{"● fix: crash", false},
		{NoNewCommits + "%0A● fix", false},
	}

	for _, tt := range tests {
		if got := IsSentinel(tt.in); got != tt.want {
			t.Errorf("IsSentinel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
