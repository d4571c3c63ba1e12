package commits

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/kyleking/gh-releasewatch/internal/github"
)

// GitSource reads commit history from a git repository instead of the REST API.
// The default opener performs a shallow in-memory clone on every call.
type GitSource struct {
	open  func(ctx context.Context) (*git.Repository, error)
	limit int
}

// NewGitSource clones url (shallow, default branch only) into memory on each call.
func NewGitSource(url, token string, limit int) *GitSource {
	return &GitSource{
		limit: limit,
		open: func(ctx context.Context) (*git.Repository, error) {
			opts := &git.CloneOptions{
				URL:          url,
				Depth:        limit,
				SingleBranch: true,
				Tags:         git.NoTags,
			}
			if token != "" {
				opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
			}
			return git.CloneContext(ctx, memory.NewStorage(), nil, opts)
		},
	}
}

// NewRepositorySource reads from an already opened repository.
func NewRepositorySource(repo *git.Repository, limit int) *GitSource {
	return &GitSource{
		limit: limit,
		open: func(context.Context) (*git.Repository, error) {
			return repo, nil
		},
	}
}

// Commits implements Source, walking from HEAD by committer time.
func (s *GitSource) Commits(ctx context.Context) ([]github.Commit, error) {
	repo, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var out []github.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if s.limit > 0 && len(out) >= s.limit {
			return storer.ErrStop
		}
		out = append(out, github.Commit{
			SHA:     c.Hash.String(),
			Message: c.Message,
			Author:  c.Author.Name,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk log: %w", err)
	}
	return out, nil
}
