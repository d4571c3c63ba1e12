// Package buildtag finds release directives such as "[build.apk]" in commit messages.
package buildtag

import (
	"strings"

	"github.com/kyleking/gh-releasewatch/internal/github"
)

// BuildType selects which platforms a release covers.
type BuildType string

const (
	All     BuildType = "all"
	APK     BuildType = "apk"
	Windows BuildType = "windows"
	Linux   BuildType = "linux"
	IOS     BuildType = "ios"
	MacOS   BuildType = "macos"

	// UpdateNote is not a directive. It asks the publisher to refresh release
	// notes of an already published commit.
	UpdateNote BuildType = "update_note"
)

// Releasable reports whether t is one of the platform build types a
// directive may select. UpdateNote is not releasable.
func (t BuildType) Releasable() bool {
	switch t {
	case All, APK, Windows, Linux, IOS, MacOS:
		return true
	}
	return false
}

// Directive pairs a substring with the build type it selects.
type Directive struct {
	Pattern string    `yaml:"pattern"`
	Type    BuildType `yaml:"type"`
}

// DefaultDirectives is the built-in table in priority order.
var DefaultDirectives = []Directive{
	{Pattern: "[build.all]", Type: All},
	{Pattern: "[build.apk]", Type: APK},
	{Pattern: "[build.windows]", Type: Windows},
	{Pattern: "[build.linux]", Type: Linux},
	{Pattern: "[build.ios]", Type: IOS},
	{Pattern: "[build.macos]", Type: MacOS},
}

// Request is a detected release request.
type Request struct {
	Type     BuildType
	CommitID string
	Commit   github.Commit
}

// Detector scans commits with an ordered directive table.
type Detector struct {
	directives []Directive
}

// NewDetector creates a Detector. A nil or empty table uses DefaultDirectives.
func NewDetector(directives []Directive) *Detector {
	if len(directives) == 0 {
		directives = DefaultDirectives
	}
	return &Detector{directives: directives}
}

// Detect returns the request for the first commit (in the given newest-first
// order) carrying any directive. Within one message the table order decides.
func (d *Detector) Detect(commits []github.Commit) (Request, bool) {
	for _, c := range commits {
		if t, ok := d.Match(c.Message); ok {
			return Request{Type: t, CommitID: c.SHA, Commit: c}, true
		}
	}
	return Request{}, false
}

// Match returns the highest priority directive present in message.
func (d *Detector) Match(message string) (BuildType, bool) {
	for _, dir := range d.directives {
		if dir.Pattern != "" && strings.Contains(message, dir.Pattern) {
			return dir.Type, true
		}
	}
	return "", false
}
