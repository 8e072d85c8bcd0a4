package mounts

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/mwantia/archivefs"
)

// WriteZipMount stages a filesystem tree in a scratch mount and serializes
// it into a zip archive when closed. Every VFS operation is forwarded
// verbatim to the scratch mount; the WriteZipMount itself only holds the
// archive target, the codec settings and the scratch handle.
//
// The archive is produced exactly once per lifetime, on the first Close.
// Flush may be called earlier to produce an intermediate snapshot; each
// flush re-walks the entire current tree. Every directory in the staged
// tree is written as its own marker entry, so empty directories survive
// the round trip.
type WriteZipMount struct {
	mu     sync.Mutex
	closed bool

	file        string    // target archive name
	target      io.Writer // explicit target handle; takes precedence over file
	compression uint16
	scratch     archivefs.VirtualMount
}

// NewWriteZip creates a write-staged zip mount targeting the named file.
// The archive is written when the mount is closed.
func NewWriteZip(file string, opts ...ZipOption) (*WriteZipMount, error) {
	options, err := newZipOptions(opts)
	if err != nil {
		return nil, err
	}

	return &WriteZipMount{
		file:        file,
		compression: options.Compression,
		scratch:     options.scratchOrDefault(),
	}, nil
}

// NewWriteZipToWriter creates a write-staged zip mount that serializes into
// an already-open handle on close. The mount does not close the handle.
func NewWriteZipToWriter(w io.Writer, opts ...ZipOption) (*WriteZipMount, error) {
	options, err := newZipOptions(opts)
	if err != nil {
		return nil, err
	}

	return &WriteZipMount{
		target:      w,
		compression: options.Compression,
		scratch:     options.scratchOrDefault(),
	}, nil
}

// Traits adopts the scratch mount's characteristics.
func (m *WriteZipMount) Traits() archivefs.MountTraits {
	return m.scratch.Traits()
}

func (m *WriteZipMount) GetInfo(ctx context.Context, path string, namespaces ...string) (*archivefs.Info, error) {
	return m.scratch.GetInfo(ctx, path, namespaces...)
}

func (m *WriteZipMount) List(ctx context.Context, path string) ([]*archivefs.VirtualObjectInfo, error) {
	return m.scratch.List(ctx, path)
}

func (m *WriteZipMount) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	return m.scratch.OpenRead(ctx, path)
}

func (m *WriteZipMount) OpenWrite(ctx context.Context, path string, flags archivefs.VirtualAccessMode) (io.WriteCloser, error) {
	return m.scratch.OpenWrite(ctx, path, flags)
}

func (m *WriteZipMount) SetInfo(ctx context.Context, path string, update *archivefs.InfoUpdate) error {
	return m.scratch.SetInfo(ctx, path, update)
}

func (m *WriteZipMount) MakeDir(ctx context.Context, path string) error {
	return m.scratch.MakeDir(ctx, path)
}

func (m *WriteZipMount) Remove(ctx context.Context, path string) error {
	return m.scratch.Remove(ctx, path)
}

func (m *WriteZipMount) RemoveDir(ctx context.Context, path string) error {
	return m.scratch.RemoveDir(ctx, path)
}

// URL is unavailable until the archive has been written.
func (m *WriteZipMount) URL(path string, purpose string) (string, error) {
	return "", archivefs.NoURL(path, purpose)
}

// Flush serializes the current scratch tree into the configured target.
// It may be called before Close to produce an intermediate snapshot; the
// entire tree is re-walked on every call. Returns ErrClosed after Close.
func (m *WriteZipMount) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return archivefs.ErrClosed
	}

	return m.flushLocked(ctx, m.compression)
}

// FlushTo serializes the current scratch tree into the given writer
// instead of the configured target. Option overrides apply to this call
// only.
func (m *WriteZipMount) FlushTo(ctx context.Context, w io.Writer, opts ...ZipOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return archivefs.ErrClosed
	}

	compression := m.compression
	if len(opts) > 0 {
		options := &ZipOptions{Compression: compression, Encoding: zipEncodingUTF8}
		for _, opt := range opts {
			opt(options)
		}
		if err := options.validate(); err != nil {
			return err
		}
		compression = options.Compression
	}

	return writeZipArchive(ctx, w, m.scratch, compression)
}

// Close writes the archive and releases the scratch mount. Close is
// idempotent; only the first call flushes. A serialization failure still
// releases the scratch mount and is returned together with any release
// failure.
func (m *WriteZipMount) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	errs := archivefs.Errors{}
	errs.Add(m.flushLocked(context.Background(), m.compression))
	errs.Add(m.scratch.Close())

	return errs.Errors()
}

// flushLocked serializes into the configured target.
// The caller must hold m.mu.
func (m *WriteZipMount) flushLocked(ctx context.Context, compression uint16) error {
	if m.target != nil {
		return writeZipArchive(ctx, m.target, m.scratch, compression)
	}

	f, err := os.Create(m.file)
	if err != nil {
		return err
	}

	errs := archivefs.Errors{}
	errs.Add(writeZipArchive(ctx, f, m.scratch, compression))
	errs.Add(f.Close())

	return errs.Errors()
}

// writeZipArchive serializes the full tree of source into w as a zip
// archive: one entry per file, streamed rather than buffered whole, and
// one marker entry per directory.
func writeZipArchive(ctx context.Context, w io.Writer, source archivefs.VirtualMount, compression uint16) error {
	zw := zip.NewWriter(w)

	if compression == zip.Deflate {
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.DefaultCompression)
		})
	}

	if err := writeZipTree(ctx, zw, source, "/", compression); err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

// writeZipTree writes all entries below dir, directories before their
// contents.
func writeZipTree(ctx context.Context, zw *zip.Writer, source archivefs.VirtualMount, dir string, compression uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	children, err := source.List(ctx, dir)
	if err != nil {
		return err
	}

	for _, child := range children {
		if child.IsDir() {
			if err := writeZipDirEntry(zw, child); err != nil {
				return err
			}
			if err := writeZipTree(ctx, zw, source, child.Path, compression); err != nil {
				return err
			}
			continue
		}

		if err := writeZipFileEntry(ctx, zw, source, child, compression); err != nil {
			return err
		}
	}

	return nil
}

// writeZipDirEntry emits a directory marker entry (trailing separator,
// no content).
func writeZipDirEntry(zw *zip.Writer, info *archivefs.VirtualObjectInfo) error {
	hdr := &zip.FileHeader{
		Name:     zipEntryName(info.Path, true),
		Method:   zip.Store,
		Modified: entryModTime(info),
	}
	hdr.SetMode(fs.ModeDir | fs.FileMode(info.Mode.Perm()))

	_, err := zw.CreateHeader(hdr)
	return err
}

// writeZipFileEntry streams one file from the source tree into the archive.
func writeZipFileEntry(ctx context.Context, zw *zip.Writer, source archivefs.VirtualMount, info *archivefs.VirtualObjectInfo, compression uint16) error {
	hdr := &zip.FileHeader{
		Name:     zipEntryName(info.Path, false),
		Method:   compression,
		Modified: entryModTime(info),
	}
	hdr.SetMode(fs.FileMode(info.Mode.Perm()))

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}

	rc, err := source.OpenRead(ctx, info.Path)
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(w, rc)
	return err
}

func entryModTime(info *archivefs.VirtualObjectInfo) time.Time {
	if info.ModTime.IsZero() {
		return time.Now()
	}
	return info.ModTime
}
