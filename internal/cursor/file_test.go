package cursor

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
)

func TestFileStore_MissingIsNoCursor(t *testing.T) {
	s := NewFileStore(afero.NewMemMapFs(), "last_commit.txt")

	_, err := s.Get(context.Background())
	if !errors.Is(err, ErrNoCursor) {
		t.Fatalf("got %v, want ErrNoCursor", err)
	}
	if IsReadError(err) {
		t.Error("missing file should not be a read error")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewFileStore(fs, "state/last_commit.txt")
	ctx := context.Background()

	if err := s.Set(ctx, "a1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "b2"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "b2" {
		t.Errorf("got %q, want b2", got)
	}

	if ok, _ := afero.Exists(fs, "state/last_commit.txt.tmp"); ok {
		t.Error("temporary file left behind")
	}
}

func TestFileStore_TrimsContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr error
	}{
		{"trailing newline", "a1\n", "a1", nil},
		{"surrounding space", "  a1 \r\n", "a1", nil},
		{"empty", "", "", ErrNoCursor},
		{"whitespace only", "\n\n", "", ErrNoCursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "c.txt", []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			got, err := NewFileStore(fs, "c.txt").Get(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err: got %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

type deniedFs struct {
	afero.Fs
}

func (deniedFs) Open(name string) (afero.File, error) {
	return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
}

func TestFileStore_ReadFailure(t *testing.T) {
	_, err := NewFileStore(deniedFs{afero.NewMemMapFs()}, "c.txt").Get(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrNoCursor) {
		t.Error("read failure must be distinguishable from a missing cursor")
	}
	if !IsReadError(err) {
		t.Errorf("got %T, want *ReadError", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("ReadError should unwrap to the cause, got %v", err)
	}
}

func TestFileStore_ReadOnlyFsFailsSet(t *testing.T) {
	s := NewFileStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "c.txt")
	if err := s.Set(context.Background(), "a1"); err == nil {
		t.Error("expected write to a read-only fs to fail")
	}
}
