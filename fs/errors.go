package fs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m-manu/sshpath/remote"
)

var (
	// ErrRelativePath is returned when a remote path doesn't start with "/"
	ErrRelativePath = errors.New("remote path must be absolute")
	// ErrEmptyName is returned when joining an empty name
	ErrEmptyName = errors.New("name must not be empty")
	// ErrListingMismatch means the stat records of a listing don't line up with its names
	ErrListingMismatch = errors.New("listing and stat output don't match")
)

// NotFoundError means the entry doesn't exist on its host.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no such file or directory", e.Path)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// UnsupportedOperationError is returned for operations that are deliberately not provided.
type UnsupportedOperationError struct {
	Op   string
	Path string
}

func (e *UnsupportedOperationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s is not supported", e.Op)
	}
	return fmt.Sprintf("%s is not supported for %s", e.Op, e.Path)
}

// IsNotFound reports whether err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// notFoundOr converts a remote "No such file or directory" failure into a NotFoundError
// and returns every other error unchanged
func notFoundOr(p string, err error) error {
	var cmdErr *remote.CommandError
	if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, "No such file or directory") {
		return &NotFoundError{Path: p, Err: err}
	}
	return err
}
