package commits

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kyleking/gh-releasewatch/internal/github"
)

type fakeLister struct {
	commits []github.Commit
	limit   int
}

func (f *fakeLister) Commits(_ context.Context, limit int) ([]github.Commit, error) {
	f.limit = limit
	return f.commits, nil
}

func TestAPISource_PassesLimit(t *testing.T) {
	lister := &fakeLister{commits: []github.Commit{{SHA: "a"}, {SHA: "b"}}}
	src := NewAPISource(lister, 25)

	got, err := src.Commits(context.Background())
	if err != nil {
		t.Fatalf("Commits failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("commits: got %d, want 2", len(got))
	}
	if lister.limit != 25 {
		t.Errorf("limit: got %d, want 25", lister.limit)
	}
}

func TestIndexOf(t *testing.T) {
	list := []github.Commit{{SHA: "c3"}, {SHA: "c2"}, {SHA: "c1"}}

	tests := []struct {
		name string
		sha  string
		want int
	}{
		{"newest", "c3", 0},
		{"oldest", "c1", 2},
		{"missing", "zz", -1},
		{"empty", "", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IndexOf(list, tt.sha); got != tt.want {
				t.Errorf("IndexOf(%q) = %d, want %d", tt.sha, got, tt.want)
			}
		})
	}
}

func TestGitSource_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	messages := []string{"initial", "feat: add thing", "fix: bug [build.apk]"}
	for i, msg := range messages {
		name := fmt.Sprintf("file%d.txt", i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(msg), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatal(err)
		}
		_, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "Dev", Email: "dev@example.com", When: base.Add(time.Duration(i) * time.Hour)},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	src := NewRepositorySource(repo, 2)
	got, err := src.Commits(context.Background())
	if err != nil {
		t.Fatalf("Commits failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("commits: got %d, want 2 (limit)", len(got))
	}
	if got[0].Subject() != "fix: bug [build.apk]" {
		t.Errorf("newest commit: got %q", got[0].Subject())
	}
	if got[1].Subject() != "feat: add thing" {
		t.Errorf("second commit: got %q", got[1].Subject())
	}
	if got[0].Author != "Dev" {
		t.Errorf("author: got %q, want Dev", got[0].Author)
	}
	if len(got[0].SHA) != 40 {
		t.Errorf("sha length: got %d, want 40", len(got[0].SHA))
	}
}

func TestStatic_ReturnsCopy(t *testing.T) {
	src := Static{{SHA: "a"}}
	got, _ := src.Commits(context.Background())
	got[0].SHA = "mutated"
	if src[0].SHA != "a" {
		t.Error("Static should return a copy")
	}
}

type countingSource struct {
	calls int
}

func (c *countingSource) Commits(context.Context) ([]github.Commit, error) {
	c.calls++
	return []github.Commit{{SHA: "a"}, {SHA: "b"}}, nil
}

func TestMemo_FetchesOnce(t *testing.T) {
	src := &countingSource{}
	m := NewMemo(src)

	for i := 0; i < 3; i++ {
		got, err := m.Commits(context.Background())
		if err != nil || len(got) != 2 {
			t.Fatalf("call %d: got (%v, %v)", i, got, err)
		}
		got[0].SHA = "mutated"
	}
	if src.calls != 1 {
		t.Errorf("underlying calls: got %d, want 1", src.calls)
	}
}
