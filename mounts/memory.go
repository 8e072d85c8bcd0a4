package mounts

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"github.com/mwantia/archivefs"
)

// MemoryMount is a thread-safe in-memory filesystem implementation with a
// three-layer architecture:
//
// Layer 1 (paths):  B-tree mapping path key → inode ID for ordered lookups
// Layer 2 (inodes): Map of inode ID → metadata for filesystem operations
// Layer 3 (datas):  Map of inode ID → content for content storage
//
// All files and directories are stored in RAM and are lost when the mount
// is closed. The B-tree keeps path keys sorted, so directory listings are
// range scans instead of full-map sweeps.
type MemoryMount struct {
	mu     sync.RWMutex
	closed bool

	paths  *btree.Map[string, string]
	inodes map[string]*memoryInode
	datas  map[string][]byte
}

// memoryInode holds the metadata of a single file or directory.
type memoryInode struct {
	id       string
	name     string
	isDir    bool
	mode     archivefs.VirtualFileMode
	size     int64
	modTime  time.Time
	metadata map[string]string
}

// NewMemory creates a new in-memory filesystem with an empty root directory.
func NewMemory() *MemoryMount {
	m := &MemoryMount{
		paths:  btree.NewMap[string, string](0), // degree 0 = auto-optimize
		inodes: make(map[string]*memoryInode),
		datas:  make(map[string][]byte),
	}

	root := &memoryInode{
		id:      newInodeID(),
		name:    "",
		isDir:   true,
		mode:    archivefs.ModeDir | 0755,
		modTime: time.Now(),
	}
	m.paths.Set("", root.id)
	m.inodes[root.id] = root

	return m
}

// newInodeID generates a unique, time-ordered inode identifier.
func newInodeID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Traits returns the declared characteristics of this mount.
func (m *MemoryMount) Traits() archivefs.MountTraits {
	return archivefs.MountTraits{
		CaseSensitive: true,
		ReadOnly:      false,
		ThreadSafe:    true,
		Network:       false,
	}
}

// GetInfo returns a namespaced metadata record for the given path.
func (m *MemoryMount) GetInfo(ctx context.Context, path string, namespaces ...string) (*archivefs.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, archivefs.ErrClosed
	}

	inode, err := m.lookup(path)
	if err != nil {
		return nil, archivefs.NotFound("getinfo", path)
	}

	info := &archivefs.Info{
		Basic: archivefs.BasicInfo{
			Name:  inode.name,
			IsDir: inode.isDir,
		},
	}

	if archivefs.NamespaceRequested(namespaces, archivefs.NamespaceDetails) {
		objType := archivefs.ObjectTypeFile
		if inode.isDir {
			objType = archivefs.ObjectTypeDirectory
		}
		info.Details = &archivefs.DetailsInfo{
			Size:     inode.size,
			Type:     objType,
			Modified: inode.modTime,
		}
	}

	if archivefs.NamespaceRequested(namespaces, archivefs.NamespaceAccess) {
		info.Access = &archivefs.AccessInfo{
			Permissions: inode.mode.Perm(),
		}
	}

	return info, nil
}

// List returns the direct children of the directory at path.
func (m *MemoryMount) List(ctx context.Context, path string) ([]*archivefs.VirtualObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, archivefs.ErrClosed
	}

	inode, err := m.lookup(path)
	if err != nil {
		return nil, archivefs.NotFound("list", path)
	}

	if !inode.isDir {
		return nil, archivefs.ErrNotDirectory
	}

	key := archivefs.RelativeKey(path)
	prefix := key
	if prefix != "" {
		prefix += "/"
	}

	infos := make([]*archivefs.VirtualObjectInfo, 0)
	m.paths.Ascend(prefix, func(childKey, inodeID string) bool {
		if !strings.HasPrefix(childKey, prefix) {
			return false
		}
		if childKey == key {
			return true
		}
		// Direct children only
		if strings.Contains(childKey[len(prefix):], "/") {
			return true
		}

		child, exists := m.inodes[inodeID]
		if !exists {
			return true
		}

		infos = append(infos, m.inodeToObjectInfo(child, "/"+childKey))
		return true
	})

	return infos, nil
}

// OpenRead opens the file at path for reading.
// Each call returns an independent reader over a copy of the content.
func (m *MemoryMount) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, archivefs.ErrClosed
	}

	inode, err := m.lookup(path)
	if err != nil {
		return nil, archivefs.NotFound("openread", path)
	}

	if inode.isDir {
		return nil, archivefs.FileExpected("openread", path)
	}

	content := m.datas[inode.id]
	buffer := make([]byte, len(content))
	copy(buffer, content)

	return io.NopCloser(bytes.NewReader(buffer)), nil
}

// OpenWrite opens the file at path for writing.
// Content is buffered and committed atomically when the writer is closed.
func (m *MemoryMount) OpenWrite(ctx context.Context, path string, flags archivefs.VirtualAccessMode) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, archivefs.ErrClosed
	}

	inode, err := m.lookup(path)
	if err != nil {
		if !flags.IsCreate() {
			return nil, archivefs.NotFound("openwrite", path)
		}

		// Verify parent directory exists
		parent, perr := m.lookup(archivefs.DirName(path))
		if perr != nil {
			return nil, archivefs.NotFound("openwrite", path)
		}
		if !parent.isDir {
			return nil, archivefs.ErrNotDirectory
		}
	} else if inode.isDir {
		return nil, archivefs.FileExpected("openwrite", path)
	}

	writer := &memoryWriter{
		mount: m,
		path:  path,
		buf:   new(bytes.Buffer),
	}

	if flags.IsAppend() && inode != nil {
		writer.buf.Write(m.datas[inode.id])
	}

	return writer, nil
}

// SetInfo applies a metadata update to the object at path.
func (m *MemoryMount) SetInfo(ctx context.Context, path string, update *archivefs.InfoUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return archivefs.ErrClosed
	}

	inode, err := m.lookup(path)
	if err != nil {
		return archivefs.NotFound("setinfo", path)
	}

	if update == nil {
		return nil
	}

	if update.ModTime != nil {
		inode.modTime = *update.ModTime
	}
	if update.Mode != nil {
		inode.mode = *update.Mode
		if inode.isDir {
			inode.mode |= archivefs.ModeDir
		}
	}
	for k, v := range update.Metadata {
		if inode.metadata == nil {
			inode.metadata = make(map[string]string)
		}
		inode.metadata[k] = v
	}

	return nil
}

// MakeDir creates a new directory at path.
func (m *MemoryMount) MakeDir(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return archivefs.ErrClosed
	}

	key := archivefs.RelativeKey(path)
	if _, exists := m.paths.Get(key); exists {
		return archivefs.ErrExist
	}

	parent, err := m.lookup(archivefs.DirName(path))
	if err != nil {
		return archivefs.NotFound("makedir", path)
	}
	if !parent.isDir {
		return archivefs.ErrNotDirectory
	}

	inode := &memoryInode{
		id:      newInodeID(),
		name:    archivefs.BaseName(path),
		isDir:   true,
		mode:    archivefs.ModeDir | 0755,
		modTime: time.Now(),
	}
	m.paths.Set(key, inode.id)
	m.inodes[inode.id] = inode

	return nil
}

// Remove deletes the file at path.
func (m *MemoryMount) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return archivefs.ErrClosed
	}

	inode, err := m.lookup(path)
	if err != nil {
		return archivefs.NotFound("remove", path)
	}

	if inode.isDir {
		return archivefs.ErrIsDirectory
	}

	m.paths.Delete(archivefs.RelativeKey(path))
	delete(m.inodes, inode.id)
	delete(m.datas, inode.id)

	return nil
}

// RemoveDir deletes the empty directory at path.
func (m *MemoryMount) RemoveDir(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return archivefs.ErrClosed
	}

	key := archivefs.RelativeKey(path)
	if key == "" {
		return archivefs.ErrInvalidPath
	}

	inode, err := m.lookup(path)
	if err != nil {
		return archivefs.NotFound("removedir", path)
	}

	if !inode.isDir {
		return archivefs.ErrNotDirectory
	}

	empty := true
	prefix := key + "/"
	m.paths.Ascend(prefix, func(childKey, _ string) bool {
		if strings.HasPrefix(childKey, prefix) {
			empty = false
		}
		return false
	})

	if !empty {
		return archivefs.ErrDirectoryNotEmpty
	}

	m.paths.Delete(key)
	delete(m.inodes, inode.id)

	return nil
}

// URL is not supported for in-memory objects.
func (m *MemoryMount) URL(path string, purpose string) (string, error) {
	return "", archivefs.NoURL(path, purpose)
}

// Close releases all three layers. Close is idempotent.
func (m *MemoryMount) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	m.paths.Clear()
	for k := range m.inodes {
		delete(m.inodes, k)
	}
	for k := range m.datas {
		delete(m.datas, k)
	}

	return nil
}

// lookup resolves a canonical path to its inode.
// Must be called with at least a read lock held.
func (m *MemoryMount) lookup(path string) (*memoryInode, error) {
	inodeID, exists := m.paths.Get(archivefs.RelativeKey(path))
	if !exists {
		return nil, archivefs.ErrNotExist
	}

	inode, exists := m.inodes[inodeID]
	if !exists {
		return nil, archivefs.ErrNotExist
	}

	return inode, nil
}

func (m *MemoryMount) inodeToObjectInfo(inode *memoryInode, path string) *archivefs.VirtualObjectInfo {
	objType := archivefs.ObjectTypeFile
	if inode.isDir {
		objType = archivefs.ObjectTypeDirectory
	}

	return &archivefs.VirtualObjectInfo{
		Path:     path,
		Name:     inode.name,
		Type:     objType,
		Size:     inode.size,
		Mode:     inode.mode,
		ModTime:  inode.modTime,
		Metadata: copyMetadata(inode.metadata),
	}
}

// memoryWriter buffers writes and commits them on Close.
type memoryWriter struct {
	mount  *MemoryMount
	path   string
	buf    *bytes.Buffer
	closed bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, archivefs.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	if w.closed {
		return archivefs.ErrClosed
	}
	w.closed = true

	m := w.mount
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return archivefs.ErrClosed
	}

	inode, err := m.lookup(w.path)
	if err != nil {
		inode = &memoryInode{
			id:    newInodeID(),
			name:  archivefs.BaseName(w.path),
			isDir: false,
			mode:  0644,
		}
		m.paths.Set(archivefs.RelativeKey(w.path), inode.id)
		m.inodes[inode.id] = inode
	}

	content := make([]byte, w.buf.Len())
	copy(content, w.buf.Bytes())

	m.datas[inode.id] = content
	inode.size = int64(len(content))
	inode.modTime = time.Now()

	return nil
}

// copyMetadata creates a deep copy of a metadata map.
// Returns nil if the source is nil.
func copyMetadata(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
