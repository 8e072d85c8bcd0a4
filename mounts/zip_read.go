package mounts

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mwantia/archivefs"
)

// Creator host tag in a zip entry's version-made-by field indicating the
// entry was produced on a POSIX-style system. Permission bits in the
// external attributes are only meaningful for these entries.
const zipCreatorUnix = 3

// ReadZipMount maps an existing zip archive onto the VFS contract.
// The hierarchical directory tree is reconstructed lazily from the
// archive's flat entry list on first structural query and cached for the
// lifetime of the mount. File content is decompressed on the fly; every
// OpenRead call yields an independent stream.
//
// All mutating operations fail with ErrReadOnly.
type ReadZipMount struct {
	file   string // archive name; empty when opened from a handle
	zr     *zip.Reader
	closer io.Closer

	mu     sync.Mutex
	index  *zipIndex
	closed bool
}

// NewReadZip opens the named zip archive as a read-only mount.
// Construction failures are re-signaled as ErrCreateFailed.
func NewReadZip(file string, opts ...ZipOption) (*ReadZipMount, error) {
	if _, err := newZipOptions(opts); err != nil {
		return nil, err
	}

	rc, err := zip.OpenReader(file)
	if err != nil {
		return nil, archivefs.CreateFailed(err)
	}

	return &ReadZipMount{
		file:   file,
		zr:     &rc.Reader,
		closer: rc,
	}, nil
}

// NewReadZipFromReader opens a zip archive from an already-open handle.
// The mount does not take ownership of the reader and URL is unavailable,
// since the archive has no name.
func NewReadZipFromReader(r io.ReaderAt, size int64, opts ...ZipOption) (*ReadZipMount, error) {
	if _, err := newZipOptions(opts); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, archivefs.CreateFailed(err)
	}

	return &ReadZipMount{zr: zr}, nil
}

// Traits returns the declared characteristics of this mount.
func (m *ReadZipMount) Traits() archivefs.MountTraits {
	return archivefs.MountTraits{
		CaseSensitive: true,
		ReadOnly:      true,
		ThreadSafe:    true,
		Network:       false,
	}
}

// directory returns the directory index, building it on first demand.
// Concurrent first-queries race safely to a single build: one caller
// proceeds, the rest block until the cached tree is available.
func (m *ReadZipMount) directory() (*zipIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, archivefs.ErrClosed
	}

	if m.index == nil {
		m.index = newZipIndex(m.zr.File)
	}

	return m.index, nil
}

// GetInfo returns a namespaced metadata record for the given path.
// The directory index is authoritative for existence and type; the archive
// record backs the details, access and zip namespaces. Directories implied
// by deeper entries have no archive record, so those namespaces are
// silently omitted for them rather than failing the call.
func (m *ReadZipMount) GetInfo(ctx context.Context, path string, namespaces ...string) (*archivefs.Info, error) {
	index, err := m.directory()
	if err != nil {
		return nil, err
	}

	path = archivefs.CleanPath(path)

	if path == "/" {
		info := &archivefs.Info{
			Basic: archivefs.BasicInfo{Name: "", IsDir: true},
		}
		if archivefs.NamespaceRequested(namespaces, archivefs.NamespaceDetails) {
			info.Details = &archivefs.DetailsInfo{Type: archivefs.ObjectTypeDirectory}
		}
		return info, nil
	}

	node, exists := index.lookup(path)
	if !exists {
		return nil, archivefs.NotFound("getinfo", path)
	}

	info := &archivefs.Info{
		Basic: archivefs.BasicInfo{
			Name:  archivefs.BaseName(path),
			IsDir: node.isDir,
		},
	}

	wantDetails := archivefs.NamespaceRequested(namespaces, archivefs.NamespaceDetails)
	wantAccess := archivefs.NamespaceRequested(namespaces, archivefs.NamespaceAccess)
	wantZip := archivefs.NamespaceRequested(namespaces, archivefs.NamespaceZip)

	if (wantDetails || wantAccess || wantZip) && node.file != nil {
		f := node.file

		if wantDetails {
			objType := archivefs.ObjectTypeFile
			if node.isDir {
				objType = archivefs.ObjectTypeDirectory
			}
			info.Details = &archivefs.DetailsInfo{
				Size:     int64(f.UncompressedSize64),
				Type:     objType,
				Modified: f.Modified,
			}
		}

		if wantAccess {
			// Permission bits are only meaningful for entries created
			// on a POSIX-style system with non-zero attribute bits.
			if f.CreatorVersion>>8 == zipCreatorUnix && f.ExternalAttrs != 0 {
				info.Access = &archivefs.AccessInfo{
					Permissions: archivefs.VirtualFileMode(f.ExternalAttrs >> 16 & 0xFFF),
				}
			}
		}

		if wantZip {
			info.Zip = map[string]any{
				"name":              f.Name,
				"comment":           f.Comment,
				"method":            f.Method,
				"flags":             f.Flags,
				"crc32":             f.CRC32,
				"compressed_size":   f.CompressedSize64,
				"uncompressed_size": f.UncompressedSize64,
				"creator_version":   f.CreatorVersion,
				"reader_version":    f.ReaderVersion,
				"external_attrs":    f.ExternalAttrs,
				"modified":          f.Modified,
			}
		}
	}

	return info, nil
}

// List returns the direct children of the directory at path.
func (m *ReadZipMount) List(ctx context.Context, path string) ([]*archivefs.VirtualObjectInfo, error) {
	index, err := m.directory()
	if err != nil {
		return nil, err
	}

	path = archivefs.CleanPath(path)

	node, exists := index.lookup(path)
	if !exists {
		return nil, archivefs.NotFound("list", path)
	}
	if !node.isDir {
		return nil, archivefs.ErrNotDirectory
	}

	children := index.children(path)
	infos := make([]*archivefs.VirtualObjectInfo, 0, len(children))
	for _, child := range children {
		infos = append(infos, zipNodeToObjectInfo(child.key, child.node))
	}

	return infos, nil
}

// OpenRead opens the file at path for reading. The returned stream
// decompresses lazily and is independent of streams from other calls.
func (m *ReadZipMount) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	index, err := m.directory()
	if err != nil {
		return nil, err
	}

	path = archivefs.CleanPath(path)

	node, exists := index.lookup(path)
	if !exists {
		return nil, archivefs.NotFound("openread", path)
	}
	if node.isDir {
		return nil, archivefs.FileExpected("openread", path)
	}

	return node.file.Open()
}

// OpenWrite fails: the mount is read-only.
func (m *ReadZipMount) OpenWrite(ctx context.Context, path string, flags archivefs.VirtualAccessMode) (io.WriteCloser, error) {
	return nil, archivefs.ReadOnly("openwrite", path)
}

// SetInfo fails: the mount is read-only.
func (m *ReadZipMount) SetInfo(ctx context.Context, path string, update *archivefs.InfoUpdate) error {
	return archivefs.ReadOnly("setinfo", path)
}

// MakeDir fails: the mount is read-only.
func (m *ReadZipMount) MakeDir(ctx context.Context, path string) error {
	return archivefs.ReadOnly("makedir", path)
}

// Remove fails: the mount is read-only.
func (m *ReadZipMount) Remove(ctx context.Context, path string) error {
	return archivefs.ReadOnly("remove", path)
}

// RemoveDir fails: the mount is read-only.
func (m *ReadZipMount) RemoveDir(ctx context.Context, path string) error {
	return archivefs.ReadOnly("removedir", path)
}

// URL returns a zip locator for the "fs" purpose when the mount was opened
// against a named archive. Any other purpose, and archives opened from a
// handle, fail with ErrNoURL.
func (m *ReadZipMount) URL(path string, purpose string) (string, error) {
	if purpose != "fs" || m.file == "" {
		return "", archivefs.NoURL(path, purpose)
	}

	return fmt.Sprintf("zip://%s!%s", quotePath(m.file), quotePath(archivefs.CleanPath(path))), nil
}

// Close releases the archive handle. Close is idempotent; calls after the
// first are no-ops.
func (m *ReadZipMount) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.closer != nil {
		return m.closer.Close()
	}

	return nil
}

// zipNodeToObjectInfo projects an index node onto the mount-level object
// record. Implied directories have no archive record; their size and
// timestamp stay zero-valued.
func zipNodeToObjectInfo(key string, node *zipNode) *archivefs.VirtualObjectInfo {
	info := &archivefs.VirtualObjectInfo{
		Path: "/" + key,
		Name: archivefs.BaseName("/" + key),
		Type: archivefs.ObjectTypeFile,
	}

	if node.isDir {
		info.Type = archivefs.ObjectTypeDirectory
		info.Mode = archivefs.ModeDir | 0755
	} else {
		info.Mode = 0644
	}

	if f := node.file; f != nil {
		info.Size = int64(f.UncompressedSize64)
		info.ModTime = f.Modified
		if f.CreatorVersion>>8 == zipCreatorUnix && f.ExternalAttrs != 0 {
			perm := archivefs.VirtualFileMode(f.ExternalAttrs >> 16 & 0xFFF).Perm()
			info.Mode = info.Mode&archivefs.ModeDir | perm
		}
	}

	return info
}
