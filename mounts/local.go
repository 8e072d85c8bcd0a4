package mounts

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mwantia/archivefs"
)

// LocalMount provides access to a directory on the local filesystem.
// All operations are relative to the root path specified during creation.
type LocalMount struct {
	mu     sync.Mutex
	closed bool
	root   string
}

// NewLocal creates a new LocalMount rooted at the given path.
// The path must be an absolute path to an existing directory.
func NewLocal(root string) *LocalMount {
	return &LocalMount{
		root: filepath.Clean(root),
	}
}

// Traits returns the declared characteristics of this mount.
func (lm *LocalMount) Traits() archivefs.MountTraits {
	return archivefs.MountTraits{
		CaseSensitive: true,
		ReadOnly:      false,
		ThreadSafe:    true,
		Network:       false,
	}
}

// GetInfo returns a namespaced metadata record for the given path.
func (lm *LocalMount) GetInfo(ctx context.Context, path string, namespaces ...string) (*archivefs.Info, error) {
	if err := lm.check(); err != nil {
		return nil, err
	}

	stat, err := os.Stat(lm.resolvePath(path))
	if err != nil {
		return nil, localError("getinfo", path, err)
	}

	info := &archivefs.Info{
		Basic: archivefs.BasicInfo{
			Name:  archivefs.BaseName(path),
			IsDir: stat.IsDir(),
		},
	}

	if archivefs.NamespaceRequested(namespaces, archivefs.NamespaceDetails) {
		objType := archivefs.ObjectTypeFile
		if stat.IsDir() {
			objType = archivefs.ObjectTypeDirectory
		}
		info.Details = &archivefs.DetailsInfo{
			Size:     stat.Size(),
			Type:     objType,
			Modified: stat.ModTime(),
		}
	}

	if archivefs.NamespaceRequested(namespaces, archivefs.NamespaceAccess) {
		info.Access = &archivefs.AccessInfo{
			Permissions: archivefs.VirtualFileMode(stat.Mode().Perm()),
		}
	}

	return info, nil
}

// List returns the direct children of the directory at path.
func (lm *LocalMount) List(ctx context.Context, path string) ([]*archivefs.VirtualObjectInfo, error) {
	if err := lm.check(); err != nil {
		return nil, err
	}

	fullPath := lm.resolvePath(path)

	stat, err := os.Stat(fullPath)
	if err != nil {
		return nil, localError("list", path, err)
	}
	if !stat.IsDir() {
		return nil, archivefs.ErrNotDirectory
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, localError("list", path, err)
	}

	infos := make([]*archivefs.VirtualObjectInfo, 0, len(entries))
	for _, entry := range entries {
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, lm.statToObjectInfo(stat, archivefs.JoinPath(path, entry.Name())))
	}

	return infos, nil
}

// OpenRead opens the file at path for reading.
func (lm *LocalMount) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := lm.check(); err != nil {
		return nil, err
	}

	fullPath := lm.resolvePath(path)

	stat, err := os.Stat(fullPath)
	if err != nil {
		return nil, localError("openread", path, err)
	}
	if stat.IsDir() {
		return nil, archivefs.FileExpected("openread", path)
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, localError("openread", path, err)
	}

	return f, nil
}

// OpenWrite opens the file at path for writing.
func (lm *LocalMount) OpenWrite(ctx context.Context, path string, flags archivefs.VirtualAccessMode) (io.WriteCloser, error) {
	if err := lm.check(); err != nil {
		return nil, err
	}

	fullPath := lm.resolvePath(path)

	if stat, err := os.Stat(fullPath); err == nil && stat.IsDir() {
		return nil, archivefs.FileExpected("openwrite", path)
	}

	osFlags := os.O_WRONLY
	if flags.IsCreate() {
		osFlags |= os.O_CREATE
	}
	if flags.IsAppend() {
		osFlags |= os.O_APPEND
	} else {
		osFlags |= os.O_TRUNC
	}

	f, err := os.OpenFile(fullPath, osFlags, 0644)
	if err != nil {
		return nil, localError("openwrite", path, err)
	}

	return f, nil
}

// SetInfo applies a metadata update to the object at path.
// Extended metadata is not persisted by the local filesystem and ignored.
func (lm *LocalMount) SetInfo(ctx context.Context, path string, update *archivefs.InfoUpdate) error {
	if err := lm.check(); err != nil {
		return err
	}

	fullPath := lm.resolvePath(path)

	if _, err := os.Stat(fullPath); err != nil {
		return localError("setinfo", path, err)
	}

	if update == nil {
		return nil
	}

	if update.ModTime != nil {
		if err := os.Chtimes(fullPath, *update.ModTime, *update.ModTime); err != nil {
			return localError("setinfo", path, err)
		}
	}
	if update.Mode != nil {
		if err := os.Chmod(fullPath, fs.FileMode(update.Mode.Perm())); err != nil {
			return localError("setinfo", path, err)
		}
	}

	return nil
}

// MakeDir creates a new directory at path.
func (lm *LocalMount) MakeDir(ctx context.Context, path string) error {
	if err := lm.check(); err != nil {
		return err
	}

	if err := os.Mkdir(lm.resolvePath(path), 0755); err != nil {
		return localError("makedir", path, err)
	}

	return nil
}

// Remove deletes the file at path.
func (lm *LocalMount) Remove(ctx context.Context, path string) error {
	if err := lm.check(); err != nil {
		return err
	}

	fullPath := lm.resolvePath(path)

	stat, err := os.Stat(fullPath)
	if err != nil {
		return localError("remove", path, err)
	}
	if stat.IsDir() {
		return archivefs.ErrIsDirectory
	}

	if err := os.Remove(fullPath); err != nil {
		return localError("remove", path, err)
	}

	return nil
}

// RemoveDir deletes the empty directory at path.
func (lm *LocalMount) RemoveDir(ctx context.Context, path string) error {
	if err := lm.check(); err != nil {
		return err
	}

	fullPath := lm.resolvePath(path)

	stat, err := os.Stat(fullPath)
	if err != nil {
		return localError("removedir", path, err)
	}
	if !stat.IsDir() {
		return archivefs.ErrNotDirectory
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return localError("removedir", path, err)
	}
	if len(entries) > 0 {
		return archivefs.ErrDirectoryNotEmpty
	}

	if err := os.Remove(fullPath); err != nil {
		return localError("removedir", path, err)
	}

	return nil
}

// URL returns a file locator for the "fs" purpose.
func (lm *LocalMount) URL(path string, purpose string) (string, error) {
	if purpose != "fs" {
		return "", archivefs.NoURL(path, purpose)
	}

	return "file://" + quotePath(filepath.ToSlash(lm.resolvePath(path))), nil
}

// Close marks the mount as closed. There is no OS handle to release.
// Close is idempotent.
func (lm *LocalMount) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.closed = true
	return nil
}

func (lm *LocalMount) check() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.closed {
		return archivefs.ErrClosed
	}
	return nil
}

// resolvePath maps a canonical VFS path onto the rooted OS path.
func (lm *LocalMount) resolvePath(path string) string {
	return filepath.Join(lm.root, filepath.FromSlash(archivefs.CleanPath(path)))
}

func (lm *LocalMount) statToObjectInfo(stat fs.FileInfo, path string) *archivefs.VirtualObjectInfo {
	objType := archivefs.ObjectTypeFile
	mode := archivefs.VirtualFileMode(stat.Mode().Perm())
	if stat.IsDir() {
		objType = archivefs.ObjectTypeDirectory
		mode |= archivefs.ModeDir
	}

	return &archivefs.VirtualObjectInfo{
		Path:    path,
		Name:    stat.Name(),
		Type:    objType,
		Size:    stat.Size(),
		Mode:    mode,
		ModTime: stat.ModTime(),
	}
}

// localError maps OS errors onto the VFS taxonomy.
func localError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return archivefs.NotFound(op, path)
	case errors.Is(err, fs.ErrExist):
		return archivefs.ErrExist
	default:
		return err
	}
}
