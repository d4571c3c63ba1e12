package cursor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileStore keeps the cursor as plain text in a single file.
type FileStore struct {
	fs   afero.Fs
	path string
}

// NewFileStore creates a store backed by path on fs.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// NewOSFileStore creates a store on the local filesystem.
func NewOSFileStore(path string) *FileStore {
	return NewFileStore(afero.NewOsFs(), path)
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(ctx context.Context) (string, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCursor
		}
		return "", &ReadError{Err: err}
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", ErrNoCursor
	}
	return id, nil
}

// Set replaces the stored value. The write goes through a temporary file so
// a crash never leaves a truncated cursor behind.
func (s *FileStore) Set(ctx context.Context, commitID string) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cursor dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(commitID), 0o644); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cursor: %w", err)
	}
	return nil
}
