package archivefs

import (
	"errors"
	"fmt"
	"sync"
)

// Standard errors that VirtualMount implementations should use.
var (
	// Path resolution errors
	ErrInvalidPath    = errors.New("archivefs: invalid path detected")
	ErrNotMounted     = errors.New("archivefs: path not mounted")
	ErrAlreadyMounted = errors.New("archivefs: path already mounted")
	ErrMountBusy      = errors.New("archivefs: mount point busy")

	// Operation errors
	ErrNotExist          = errors.New("archivefs: resource not found")
	ErrExist             = errors.New("archivefs: resource already exists")
	ErrFileExpected      = errors.New("archivefs: file expected")
	ErrIsDirectory       = errors.New("archivefs: is a directory")
	ErrNotDirectory      = errors.New("archivefs: not a directory")
	ErrDirectoryNotEmpty = errors.New("archivefs: directory not empty")
	ErrReadOnly          = errors.New("archivefs: read-only filesystem")
	ErrNoURL             = errors.New("archivefs: no url available")

	// Lifecycle errors
	ErrCreateFailed = errors.New("archivefs: filesystem creation failed")
	ErrClosed       = errors.New("archivefs: filesystem already closed")
	ErrInvalid      = errors.New("archivefs: invalid argument")
)

// PathError records an error, the operation that raised it and the path
// it applies to. It unwraps to one of the sentinel errors above so callers
// can branch on kind with errors.Is.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s '%s': %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// NotFound returns an ErrNotExist carrying the requested path.
func NotFound(op, path string) error {
	return &PathError{Op: op, Path: path, Err: ErrNotExist}
}

// FileExpected returns an ErrFileExpected carrying the requested path.
func FileExpected(op, path string) error {
	return &PathError{Op: op, Path: path, Err: ErrFileExpected}
}

// ReadOnly returns an ErrReadOnly carrying the requested path.
func ReadOnly(op, path string) error {
	return &PathError{Op: op, Path: path, Err: ErrReadOnly}
}

// NoURL returns an ErrNoURL carrying the requested path and purpose.
func NoURL(path, purpose string) error {
	return &PathError{Op: fmt.Sprintf("url[%s]", purpose), Path: path, Err: ErrNoURL}
}

// Errors collects failures from multi-step cleanup paths where one failure
// must not suppress the remaining steps.
type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}

// CreateFailed wraps a backend-specific construction failure so callers
// see a uniform ErrCreateFailed regardless of the underlying codec.
func CreateFailed(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCreateFailed, err)
}
