package mounts

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (CGO_ENABLED=0 compatible)

	"github.com/mwantia/archivefs"
)

// SQLiteMount provides a virtual filesystem backed by a SQLite database.
// All files and directories are stored in a single table with full CRUD
// support. This implementation uses modernc.org/sqlite which works
// without CGO.
type SQLiteMount struct {
	mu     sync.Mutex
	closed bool
	db     *sql.DB
}

// NewSQLite creates a new SQLite-backed virtual mount.
// The dbPath can be ":memory:" for an in-memory database or a file path.
func NewSQLite(dbPath string) (*SQLiteMount, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, archivefs.CreateFailed(fmt.Errorf("failed to open database: %w", err))
	}

	mount := &SQLiteMount{
		db: db,
	}

	if err := mount.initSchema(); err != nil {
		db.Close()
		return nil, archivefs.CreateFailed(fmt.Errorf("failed to initialize schema: %w", err))
	}

	return mount, nil
}

// initSchema creates the table for storing files and directories.
func (sm *SQLiteMount) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vfs_objects (
		path TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_dir INTEGER NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mode INTEGER NOT NULL DEFAULT 420,
		mod_time INTEGER NOT NULL,
		data BLOB,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_vfs_objects_is_dir ON vfs_objects(is_dir);
	`

	if _, err := sm.db.Exec(schema); err != nil {
		return err
	}

	// Create root directory if it doesn't exist
	_, err := sm.db.Exec(`
		INSERT OR IGNORE INTO vfs_objects (path, name, is_dir, size, mode, mod_time)
		VALUES ('', '', 1, 0, ?, ?)
	`, int64(archivefs.ModeDir|0755), time.Now().Unix())

	return err
}

// Traits returns the declared characteristics of this mount.
func (sm *SQLiteMount) Traits() archivefs.MountTraits {
	return archivefs.MountTraits{
		CaseSensitive: true,
		ReadOnly:      false,
		ThreadSafe:    true,
		Network:       false,
	}
}

// sqliteRow mirrors one record of the vfs_objects table.
type sqliteRow struct {
	path     string
	name     string
	isDir    bool
	size     int64
	mode     int64
	modTime  int64
	metadata sql.NullString
}

func (sm *SQLiteMount) queryRow(ctx context.Context, path string) (*sqliteRow, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT path, name, is_dir, size, mode, mod_time, metadata
		FROM vfs_objects WHERE path = ?
	`, archivefs.RelativeKey(path))

	r := &sqliteRow{}
	if err := row.Scan(&r.path, &r.name, &r.isDir, &r.size, &r.mode, &r.modTime, &r.metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, archivefs.ErrNotExist
		}
		return nil, err
	}

	return r, nil
}

// GetInfo returns a namespaced metadata record for the given path.
func (sm *SQLiteMount) GetInfo(ctx context.Context, path string, namespaces ...string) (*archivefs.Info, error) {
	if err := sm.check(); err != nil {
		return nil, err
	}

	r, err := sm.queryRow(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return nil, archivefs.NotFound("getinfo", path)
		}
		return nil, err
	}

	info := &archivefs.Info{
		Basic: archivefs.BasicInfo{
			Name:  r.name,
			IsDir: r.isDir,
		},
	}

	if archivefs.NamespaceRequested(namespaces, archivefs.NamespaceDetails) {
		objType := archivefs.ObjectTypeFile
		if r.isDir {
			objType = archivefs.ObjectTypeDirectory
		}
		info.Details = &archivefs.DetailsInfo{
			Size:     r.size,
			Type:     objType,
			Modified: time.Unix(r.modTime, 0),
		}
	}

	if archivefs.NamespaceRequested(namespaces, archivefs.NamespaceAccess) {
		info.Access = &archivefs.AccessInfo{
			Permissions: archivefs.VirtualFileMode(r.mode).Perm(),
		}
	}

	return info, nil
}

// List returns the direct children of the directory at path.
func (sm *SQLiteMount) List(ctx context.Context, path string) ([]*archivefs.VirtualObjectInfo, error) {
	if err := sm.check(); err != nil {
		return nil, err
	}

	dir, err := sm.queryRow(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return nil, archivefs.NotFound("list", path)
		}
		return nil, err
	}
	if !dir.isDir {
		return nil, archivefs.ErrNotDirectory
	}

	prefix := archivefs.RelativeKey(path)
	if prefix != "" {
		prefix += "/"
	}

	low, high := sqliteKeyRange(prefix)
	rows, err := sm.db.QueryContext(ctx, `
		SELECT path, name, is_dir, size, mode, mod_time, metadata
		FROM vfs_objects WHERE path >= ? AND path < ? AND path != ?
	`, low, high, archivefs.RelativeKey(path))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	infos := make([]*archivefs.VirtualObjectInfo, 0)
	for rows.Next() {
		r := &sqliteRow{}
		if err := rows.Scan(&r.path, &r.name, &r.isDir, &r.size, &r.mode, &r.modTime, &r.metadata); err != nil {
			return nil, err
		}

		// Direct children only; LIKE matched the whole subtree
		if strings.Contains(r.path[len(prefix):], "/") {
			continue
		}

		infos = append(infos, r.toObjectInfo())
	}

	return infos, rows.Err()
}

// OpenRead opens the file at path for reading.
func (sm *SQLiteMount) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := sm.check(); err != nil {
		return nil, err
	}

	row := sm.db.QueryRowContext(ctx, `
		SELECT is_dir, data FROM vfs_objects WHERE path = ?
	`, archivefs.RelativeKey(path))

	var isDir bool
	var data []byte
	if err := row.Scan(&isDir, &data); err != nil {
		if err == sql.ErrNoRows {
			return nil, archivefs.NotFound("openread", path)
		}
		return nil, err
	}

	if isDir {
		return nil, archivefs.FileExpected("openread", path)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// OpenWrite opens the file at path for writing.
// Content is buffered and committed in a single statement on Close.
func (sm *SQLiteMount) OpenWrite(ctx context.Context, path string, flags archivefs.VirtualAccessMode) (io.WriteCloser, error) {
	if err := sm.check(); err != nil {
		return nil, err
	}

	r, err := sm.queryRow(ctx, path)
	if err == nil && r.isDir {
		return nil, archivefs.FileExpected("openwrite", path)
	}
	if err != nil {
		if err != archivefs.ErrNotExist {
			return nil, err
		}
		if !flags.IsCreate() {
			return nil, archivefs.NotFound("openwrite", path)
		}

		parent, perr := sm.queryRow(ctx, archivefs.DirName(path))
		if perr != nil {
			return nil, archivefs.NotFound("openwrite", path)
		}
		if !parent.isDir {
			return nil, archivefs.ErrNotDirectory
		}
	}

	writer := &sqliteWriter{
		mount: sm,
		ctx:   ctx,
		path:  path,
		buf:   new(bytes.Buffer),
	}

	if flags.IsAppend() && r != nil {
		row := sm.db.QueryRowContext(ctx, `SELECT data FROM vfs_objects WHERE path = ?`, archivefs.RelativeKey(path))
		var data []byte
		if err := row.Scan(&data); err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		writer.buf.Write(data)
	}

	return writer, nil
}

// SetInfo applies a metadata update to the object at path.
func (sm *SQLiteMount) SetInfo(ctx context.Context, path string, update *archivefs.InfoUpdate) error {
	if err := sm.check(); err != nil {
		return err
	}

	r, err := sm.queryRow(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return archivefs.NotFound("setinfo", path)
		}
		return err
	}

	if update == nil {
		return nil
	}

	if update.ModTime != nil {
		if _, err := sm.db.ExecContext(ctx, `UPDATE vfs_objects SET mod_time = ? WHERE path = ?`,
			update.ModTime.Unix(), r.path); err != nil {
			return err
		}
	}
	if update.Mode != nil {
		if _, err := sm.db.ExecContext(ctx, `UPDATE vfs_objects SET mode = ? WHERE path = ?`,
			int64(*update.Mode), r.path); err != nil {
			return err
		}
	}
	if len(update.Metadata) > 0 {
		metadata := make(map[string]string)
		if r.metadata.Valid && r.metadata.String != "" {
			if err := json.Unmarshal([]byte(r.metadata.String), &metadata); err != nil {
				metadata = make(map[string]string)
			}
		}
		for k, v := range update.Metadata {
			metadata[k] = v
		}
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		if _, err := sm.db.ExecContext(ctx, `UPDATE vfs_objects SET metadata = ? WHERE path = ?`,
			string(encoded), r.path); err != nil {
			return err
		}
	}

	return nil
}

// MakeDir creates a new directory at path.
func (sm *SQLiteMount) MakeDir(ctx context.Context, path string) error {
	if err := sm.check(); err != nil {
		return err
	}

	if _, err := sm.queryRow(ctx, path); err == nil {
		return archivefs.ErrExist
	}

	parent, err := sm.queryRow(ctx, archivefs.DirName(path))
	if err != nil {
		return archivefs.NotFound("makedir", path)
	}
	if !parent.isDir {
		return archivefs.ErrNotDirectory
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO vfs_objects (path, name, is_dir, size, mode, mod_time)
		VALUES (?, ?, 1, 0, ?, ?)
	`, archivefs.RelativeKey(path), archivefs.BaseName(path), int64(archivefs.ModeDir|0755), time.Now().Unix())

	return err
}

// Remove deletes the file at path.
func (sm *SQLiteMount) Remove(ctx context.Context, path string) error {
	if err := sm.check(); err != nil {
		return err
	}

	r, err := sm.queryRow(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return archivefs.NotFound("remove", path)
		}
		return err
	}
	if r.isDir {
		return archivefs.ErrIsDirectory
	}

	_, err = sm.db.ExecContext(ctx, `DELETE FROM vfs_objects WHERE path = ?`, r.path)
	return err
}

// RemoveDir deletes the empty directory at path.
func (sm *SQLiteMount) RemoveDir(ctx context.Context, path string) error {
	if err := sm.check(); err != nil {
		return err
	}

	key := archivefs.RelativeKey(path)
	if key == "" {
		return archivefs.ErrInvalidPath
	}

	r, err := sm.queryRow(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return archivefs.NotFound("removedir", path)
		}
		return err
	}
	if !r.isDir {
		return archivefs.ErrNotDirectory
	}

	var count int
	low, high := sqliteKeyRange(key + "/")
	row := sm.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vfs_objects WHERE path >= ? AND path < ?`, low, high)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return archivefs.ErrDirectoryNotEmpty
	}

	_, err = sm.db.ExecContext(ctx, `DELETE FROM vfs_objects WHERE path = ?`, key)
	return err
}

// URL is not supported for database-backed objects.
func (sm *SQLiteMount) URL(path string, purpose string) (string, error) {
	return "", archivefs.NoURL(path, purpose)
}

// Close flushes pending writes and closes the database connection.
// Close is idempotent.
func (sm *SQLiteMount) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil
	}
	sm.closed = true

	return sm.db.Close()
}

func (sm *SQLiteMount) check() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return archivefs.ErrClosed
	}
	return nil
}

// sqliteKeyRange returns the binary half-open range covering every key below
// prefix. A plain LIKE would treat '%' and '_' in stored paths as wildcards
// and match siblings; a range scan compares bytes. 0xFF never occurs in valid
// UTF-8 text, so prefix+0xFF bounds the subtree from above.
func sqliteKeyRange(prefix string) (string, string) {
	return prefix, prefix + "\xff"
}

func (r *sqliteRow) toObjectInfo() *archivefs.VirtualObjectInfo {
	objType := archivefs.ObjectTypeFile
	if r.isDir {
		objType = archivefs.ObjectTypeDirectory
	}

	var metadata map[string]string
	if r.metadata.Valid && r.metadata.String != "" {
		_ = json.Unmarshal([]byte(r.metadata.String), &metadata)
	}

	return &archivefs.VirtualObjectInfo{
		Path:     "/" + r.path,
		Name:     r.name,
		Type:     objType,
		Size:     r.size,
		Mode:     archivefs.VirtualFileMode(r.mode),
		ModTime:  time.Unix(r.modTime, 0),
		Metadata: metadata,
	}
}

// sqliteWriter buffers writes and commits them on Close.
type sqliteWriter struct {
	mount  *SQLiteMount
	ctx    context.Context
	path   string
	buf    *bytes.Buffer
	closed bool
}

func (w *sqliteWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, archivefs.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *sqliteWriter) Close() error {
	if w.closed {
		return archivefs.ErrClosed
	}
	w.closed = true

	if err := w.mount.check(); err != nil {
		return err
	}

	content := w.buf.Bytes()
	_, err := w.mount.db.ExecContext(w.ctx, `
		INSERT INTO vfs_objects (path, name, is_dir, size, mode, mod_time, data)
		VALUES (?, ?, 0, ?, 420, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size = excluded.size, mod_time = excluded.mod_time, data = excluded.data
	`, archivefs.RelativeKey(w.path), archivefs.BaseName(w.path), int64(len(content)), time.Now().Unix(), content)

	return err
}
