package archivefs

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mwantia/archivefs/log"
)

// VirtualFileSystem is the VFS manager that handles mount points and
// delegates operations to the appropriate mount. It provides a Unix-like
// filesystem abstraction with support for nested mounts and thread-safe
// operations.
type VirtualFileSystem struct {
	mu     sync.RWMutex
	mounts map[string]*virtualFileSystemEntry
	logger *log.Logger
}

type virtualFileSystemEntry struct {
	mount VirtualMount
	info  VirtualMountInfo
}

// VirtualMountInfo provides metadata about a mounted filesystem.
type VirtualMountInfo struct {
	Path      string    // Mount point path (e.g., "/data")
	Traits    MountTraits
	MountedAt time.Time // When the mount was created
}

// NewVfs creates a new, empty VFS manager.
func NewVfs(opts ...VirtualFileSystemOption) *VirtualFileSystem {
	options := newDefaultVirtualFileSystemOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &VirtualFileSystem{
		mounts: make(map[string]*virtualFileSystemEntry),
		logger: log.NewLogger("vfs", options.LogLevel, options.LogFile, options.NoTerminalLog),
	}
}

// Mount attaches a filesystem backend at the specified path.
// Returns ErrAlreadyMounted if the path is already in use.
func (v *VirtualFileSystem) Mount(ctx context.Context, path string, mount VirtualMount) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	path = CleanPath(path)

	if _, exists := v.mounts[path]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyMounted, path)
	}

	v.mounts[path] = &virtualFileSystemEntry{
		mount: mount,
		info: VirtualMountInfo{
			Path:      path,
			Traits:    mount.Traits(),
			MountedAt: time.Now(),
		},
	}

	v.logger.Debug("Mounted backend at '%s'", path)
	return nil
}

// Unmount removes the filesystem backend at the specified path.
// The mount itself is not closed; ownership returns to the caller.
// Returns ErrNotMounted if the path is not mounted.
// Returns ErrMountBusy if child mounts exist.
func (v *VirtualFileSystem) Unmount(ctx context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	path = CleanPath(path)

	if _, exists := v.mounts[path]; !exists {
		return fmt.Errorf("%w: %s", ErrNotMounted, path)
	}

	if v.hasChildMounts(path) {
		return fmt.Errorf("%w: %s has child mounts", ErrMountBusy, path)
	}

	delete(v.mounts, path)
	v.logger.Debug("Unmounted backend at '%s'", path)
	return nil
}

// Mounts returns information about all mounted filesystems.
func (v *VirtualFileSystem) Mounts() []VirtualMountInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()

	infos := make([]VirtualMountInfo, 0, len(v.mounts))
	for _, entry := range v.mounts {
		infos = append(infos, entry.info)
	}

	return infos
}

// Shutdown unmounts and closes all mounted filesystems.
// Mounts are closed in reverse depth order (deepest first) to avoid
// dependency issues. Close failures are collected, not short-circuited.
func (v *VirtualFileSystem) Shutdown(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	paths := make([]string, 0, len(v.mounts))
	for path := range v.mounts {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		return len(paths[i]) > len(paths[j])
	})

	errs := Errors{}
	for _, path := range paths {
		if err := v.mounts[path].mount.Close(); err != nil {
			v.logger.Error("Failed to close mount at '%s': %v", path, err)
			errs.Add(err)
		}
		delete(v.mounts, path)
	}

	return errs.Errors()
}

// resolve finds the mount responsible for path and the path relative to
// that mount point.
func (v *VirtualFileSystem) resolve(path string) (VirtualMount, string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	path = CleanPath(path)

	// Find longest matching mount point
	var bestMatch string
	found := false
	for mountPoint := range v.mounts {
		if hasPathPrefix(path, mountPoint) {
			if !found || len(mountPoint) > len(bestMatch) {
				bestMatch = mountPoint
				found = true
			}
		}
	}

	if !found {
		return nil, "", fmt.Errorf("%w: no mount for path %s", ErrNotMounted, path)
	}

	rel := path
	if bestMatch != "/" {
		rel = CleanPath(path[len(bestMatch):])
	}

	return v.mounts[bestMatch].mount, rel, nil
}

// GetInfo returns a namespaced metadata record for the given path.
func (v *VirtualFileSystem) GetInfo(ctx context.Context, path string, namespaces ...string) (*Info, error) {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return nil, err
	}

	return mount.GetInfo(ctx, rel, namespaces...)
}

// List returns the direct children of the directory at path.
func (v *VirtualFileSystem) List(ctx context.Context, path string) ([]*VirtualObjectInfo, error) {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return nil, err
	}

	return mount.List(ctx, rel)
}

// OpenRead opens the file at path for reading.
func (v *VirtualFileSystem) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return nil, err
	}

	return mount.OpenRead(ctx, rel)
}

// OpenWrite opens the file at path for writing, creating it if missing.
func (v *VirtualFileSystem) OpenWrite(ctx context.Context, path string) (io.WriteCloser, error) {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return nil, err
	}

	return mount.OpenWrite(ctx, rel, AccessModeWrite|AccessModeCreate|AccessModeTrunc)
}

// OpenAppend opens the file at path for appending, creating it if missing.
func (v *VirtualFileSystem) OpenAppend(ctx context.Context, path string) (io.WriteCloser, error) {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return nil, err
	}

	return mount.OpenWrite(ctx, rel, AccessModeWrite|AccessModeCreate|AccessModeAppend)
}

// SetInfo applies a metadata update to the object at path.
func (v *VirtualFileSystem) SetInfo(ctx context.Context, path string, update *InfoUpdate) error {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return err
	}

	return mount.SetInfo(ctx, rel, update)
}

// MakeDir creates a new directory at path.
func (v *VirtualFileSystem) MakeDir(ctx context.Context, path string) error {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return err
	}

	return mount.MakeDir(ctx, rel)
}

// Remove deletes the file at path.
func (v *VirtualFileSystem) Remove(ctx context.Context, path string) error {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return err
	}

	return mount.Remove(ctx, rel)
}

// RemoveDir deletes the empty directory at path.
func (v *VirtualFileSystem) RemoveDir(ctx context.Context, path string) error {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return err
	}

	return mount.RemoveDir(ctx, rel)
}

// URL returns a locator for the object at path, for the given purpose.
func (v *VirtualFileSystem) URL(path string, purpose string) (string, error) {
	mount, rel, err := v.resolve(path)
	if err != nil {
		return "", err
	}

	return mount.URL(rel, purpose)
}

// hasChildMounts checks if any mounts exist under the given parent path.
// Must be called with lock held.
func (v *VirtualFileSystem) hasChildMounts(parent string) bool {
	for mountPoint := range v.mounts {
		if mountPoint != parent && hasPathPrefix(mountPoint, parent) {
			return true
		}
	}
	return false
}
