// Package commits provides the upstream commit history, newest first.
package commits

import (
	"context"
	"sync"

	"github.com/kyleking/gh-releasewatch/internal/github"
)

// Source fetches upstream commit history. Implementations must return commits
// newest first; build-tag detection depends on that ordering.
type Source interface {
	Commits(ctx context.Context) ([]github.Commit, error)
}

// CommitLister is the subset of the GitHub client used by APISource.
type CommitLister interface {
	Commits(ctx context.Context, limit int) ([]github.Commit, error)
}

// APISource reads commits through the REST API.
type APISource struct {
	client CommitLister
	limit  int
}

// NewAPISource creates a Source backed by the REST commits listing.
func NewAPISource(client CommitLister, limit int) *APISource {
	return &APISource{client: client, limit: limit}
}

// Commits implements Source.
func (s *APISource) Commits(ctx context.Context) ([]github.Commit, error) {
	return s.client.Commits(ctx, s.limit)
}

// Static is a fixed Source, useful for tests and dry runs.
type Static []github.Commit

// Commits implements Source.
func (s Static) Commits(context.Context) ([]github.Commit, error) {
	return append([]github.Commit(nil), s...), nil
}

// Memo fetches from a Source once and replays the result, so one pass sees
// a single consistent history.
type Memo struct {
	src  Source
	once sync.Once
	list []github.Commit
	err  error
}

// NewMemo wraps src.
func NewMemo(src Source) *Memo {
	return &Memo{src: src}
}

// Commits implements Source.
func (m *Memo) Commits(ctx context.Context) ([]github.Commit, error) {
	m.once.Do(func() {
		m.list, m.err = m.src.Commits(ctx)
	})
	if m.err != nil {
		return nil, m.err
	}
	return append([]github.Commit(nil), m.list...), nil
}

// IndexOf returns the position of sha in commits, or -1.
func IndexOf(commits []github.Commit, sha string) int {
	if sha == "" {
		return -1
	}
	for i, c := range commits {
		if c.SHA == sha {
			return i
		}
	}
	return -1
}
