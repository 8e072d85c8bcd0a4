package archivefs

import (
	"context"
	"io"
)

// VirtualMount represents a mounted filesystem backend.
// Implementations provide access to a specific storage medium.
// All paths passed to Mount methods are canonical: absolute, forward-slash
// separated, no trailing slash except the root "/".
type VirtualMount interface {
	// Traits returns the declared characteristics of this mount.
	Traits() MountTraits

	// GetInfo returns a namespaced metadata record for the given path.
	// The basic namespace is always populated; additional namespaces are
	// populated only when requested and available.
	// Returns ErrNotExist if the path doesn't exist.
	GetInfo(ctx context.Context, path string, namespaces ...string) (*Info, error)

	// List returns the direct children of the directory at path.
	// Returns an empty slice for an existing empty directory.
	// No ordering is guaranteed.
	// Returns ErrNotExist if the path doesn't exist.
	// Returns ErrNotDirectory if the path is not a directory.
	List(ctx context.Context, path string) ([]*VirtualObjectInfo, error)

	// OpenRead opens the file at path for reading.
	// Each call returns an independent stream with its own read cursor.
	// Returns ErrNotExist if the path doesn't exist.
	// Returns ErrFileExpected if the path is a directory.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens the file at path for writing with the given access
	// mode flags. Use AccessModeCreate to create missing files and
	// AccessModeAppend to continue after the existing content.
	// Returns ErrReadOnly if the mount is read-only.
	OpenWrite(ctx context.Context, path string, flags VirtualAccessMode) (io.WriteCloser, error)

	// SetInfo applies a metadata update to the object at path.
	// Fields a mount cannot persist are ignored rather than rejected.
	// Returns ErrNotExist if the path doesn't exist.
	// Returns ErrReadOnly if the mount is read-only.
	SetInfo(ctx context.Context, path string, update *InfoUpdate) error

	// MakeDir creates a new directory at path.
	// Returns ErrExist if the path already exists.
	// Returns ErrReadOnly if the mount is read-only.
	MakeDir(ctx context.Context, path string) error

	// Remove deletes the file at path.
	// Returns ErrIsDirectory if the path is a directory.
	// Returns ErrReadOnly if the mount is read-only.
	Remove(ctx context.Context, path string) error

	// RemoveDir deletes the empty directory at path.
	// Returns ErrDirectoryNotEmpty if the directory has children.
	// Returns ErrReadOnly if the mount is read-only.
	RemoveDir(ctx context.Context, path string) error

	// URL returns a locator for the object at path, for the given purpose.
	// Returns ErrNoURL if the mount cannot provide one.
	URL(path string, purpose string) (string, error)

	// Close releases all resources held by this mount.
	// Close is idempotent; calls after the first are no-ops.
	Close() error
}
