// Package cursor persists the commit id of the last release that was
// triggered, so repeated invocations do not release the same commit twice.
package cursor

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoCursor means nothing was released yet.
	ErrNoCursor = errors.New("no cursor stored")

	// ErrConflict means a compare-and-set lost against a concurrent writer.
	ErrConflict = errors.New("cursor changed concurrently")
)

// ReadError is returned when the stored value exists but could not be read.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read cursor: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Store is a single get/set slot holding the last released commit id.
type Store interface {
	// Get returns ErrNoCursor when no value was ever written.
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, commitID string) error
}

// Swapper is implemented by stores that can update the cursor atomically.
// An empty old value means "no cursor yet".
type Swapper interface {
	CompareAndSet(ctx context.Context, old, commitID string) error
}

// IsReadError reports whether err is a failed read rather than a missing value.
func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}
