package mounts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mwantia/archivefs"
)

// s3DirectoryContentType marks zero-byte objects that stand in for
// directories, alongside the trailing-slash key convention.
const s3DirectoryContentType = "application/x-directory"

// S3Mount provides a virtual filesystem backed by an S3-compatible object
// store. Directories are represented as zero-byte objects with a trailing
// slash; directories implied by deeper keys exist without a marker object,
// the same way implied directories work in flat archives.
type S3Mount struct {
	mu     sync.Mutex
	closed bool

	client *minio.Client
	bucket string
}

// NewS3 creates a new mount over the given bucket of an S3-compatible
// endpoint. The bucket must already exist.
func NewS3(endpoint, bucket, accessKey, secretKey string, useSsl bool) (*S3Mount, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSsl,
	})
	if err != nil {
		return nil, archivefs.CreateFailed(err)
	}

	return &S3Mount{
		client: client,
		bucket: bucket,
	}, nil
}

// Traits returns the declared characteristics of this mount.
func (sm *S3Mount) Traits() archivefs.MountTraits {
	return archivefs.MountTraits{
		CaseSensitive: true,
		ReadOnly:      false,
		ThreadSafe:    true,
		Network:       true,
	}
}

// stat resolves a path against the bucket: file object, directory marker
// object, or directory implied by deeper keys.
func (sm *S3Mount) stat(ctx context.Context, path string) (*archivefs.VirtualObjectInfo, error) {
	key := archivefs.RelativeKey(path)
	if key == "" {
		return &archivefs.VirtualObjectInfo{
			Path: "/",
			Type: archivefs.ObjectTypeDirectory,
			Mode: archivefs.ModeDir | 0755,
		}, nil
	}

	obj, err := sm.client.StatObject(ctx, sm.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return s3ObjectToInfo(path, obj), nil
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return nil, err
	}

	// Directory marker object
	obj, err = sm.client.StatObject(ctx, sm.bucket, key+"/", minio.StatObjectOptions{})
	if err == nil {
		return s3ObjectToInfo(path, obj), nil
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return nil, err
	}

	// Directory implied by deeper keys
	listing := sm.client.ListObjects(ctx, sm.bucket, minio.ListObjectsOptions{
		Prefix:  key + "/",
		MaxKeys: 1,
	})
	for entry := range listing {
		if entry.Err != nil {
			return nil, entry.Err
		}
		return &archivefs.VirtualObjectInfo{
			Path: archivefs.CleanPath(path),
			Name: archivefs.BaseName(path),
			Type: archivefs.ObjectTypeDirectory,
			Mode: archivefs.ModeDir | 0755,
		}, nil
	}

	return nil, archivefs.ErrNotExist
}

// GetInfo returns a namespaced metadata record for the given path.
func (sm *S3Mount) GetInfo(ctx context.Context, path string, namespaces ...string) (*archivefs.Info, error) {
	if err := sm.check(); err != nil {
		return nil, err
	}

	stat, err := sm.stat(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return nil, archivefs.NotFound("getinfo", path)
		}
		return nil, err
	}

	info := &archivefs.Info{
		Basic: archivefs.BasicInfo{
			Name:  stat.Name,
			IsDir: stat.IsDir(),
		},
	}

	if archivefs.NamespaceRequested(namespaces, archivefs.NamespaceDetails) {
		info.Details = &archivefs.DetailsInfo{
			Size:     stat.Size,
			Type:     stat.Type,
			Modified: stat.ModTime,
		}
	}

	if archivefs.NamespaceRequested(namespaces, archivefs.NamespaceAccess) {
		info.Access = &archivefs.AccessInfo{
			Permissions: stat.Mode.Perm(),
		}
	}

	return info, nil
}

// List returns the direct children of the directory at path.
func (sm *S3Mount) List(ctx context.Context, path string) ([]*archivefs.VirtualObjectInfo, error) {
	if err := sm.check(); err != nil {
		return nil, err
	}

	stat, err := sm.stat(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return nil, archivefs.NotFound("list", path)
		}
		return nil, err
	}
	if !stat.IsDir() {
		return nil, archivefs.ErrNotDirectory
	}

	prefix := archivefs.RelativeKey(path)
	if prefix != "" {
		prefix += "/"
	}

	infos := make([]*archivefs.VirtualObjectInfo, 0)
	listing := sm.client.ListObjects(ctx, sm.bucket, minio.ListObjectsOptions{
		Prefix: prefix,
	})
	for entry := range listing {
		if entry.Err != nil {
			return nil, entry.Err
		}
		if entry.Key == prefix {
			continue
		}

		childPath := "/" + strings.TrimSuffix(entry.Key, "/")
		infos = append(infos, s3ObjectToInfo(childPath, entry))
	}

	return infos, nil
}

// OpenRead opens the file at path for reading. The object is streamed,
// not buffered whole.
func (sm *S3Mount) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := sm.check(); err != nil {
		return nil, err
	}

	stat, err := sm.stat(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return nil, archivefs.NotFound("openread", path)
		}
		return nil, err
	}
	if stat.IsDir() {
		return nil, archivefs.FileExpected("openread", path)
	}

	obj, err := sm.client.GetObject(ctx, sm.bucket, archivefs.RelativeKey(path), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}

	return obj, nil
}

// OpenWrite opens the file at path for writing.
// Content is buffered and uploaded in a single PutObject on Close;
// object stores have no partial-write primitive to stream against.
func (sm *S3Mount) OpenWrite(ctx context.Context, path string, flags archivefs.VirtualAccessMode) (io.WriteCloser, error) {
	if err := sm.check(); err != nil {
		return nil, err
	}

	stat, err := sm.stat(ctx, path)
	if err != nil && err != archivefs.ErrNotExist {
		return nil, err
	}
	if err == nil && stat.IsDir() {
		return nil, archivefs.FileExpected("openwrite", path)
	}
	if err == archivefs.ErrNotExist && !flags.IsCreate() {
		return nil, archivefs.NotFound("openwrite", path)
	}

	writer := &s3Writer{
		mount: sm,
		ctx:   ctx,
		path:  path,
		buf:   new(bytes.Buffer),
	}

	if flags.IsAppend() && err == nil {
		obj, gerr := sm.client.GetObject(ctx, sm.bucket, archivefs.RelativeKey(path), minio.GetObjectOptions{})
		if gerr != nil {
			return nil, gerr
		}
		defer obj.Close()
		if _, cerr := io.Copy(writer.buf, obj); cerr != nil {
			return nil, cerr
		}
	}

	return writer, nil
}

// SetInfo is accepted but not persisted: object stores have no mutable
// metadata on stored objects without a copy, and timestamps are
// server-assigned.
func (sm *S3Mount) SetInfo(ctx context.Context, path string, update *archivefs.InfoUpdate) error {
	if err := sm.check(); err != nil {
		return err
	}

	if _, err := sm.stat(ctx, path); err != nil {
		if err == archivefs.ErrNotExist {
			return archivefs.NotFound("setinfo", path)
		}
		return err
	}

	return nil
}

// MakeDir creates a directory marker object at path.
func (sm *S3Mount) MakeDir(ctx context.Context, path string) error {
	if err := sm.check(); err != nil {
		return err
	}

	if _, err := sm.stat(ctx, path); err == nil {
		return archivefs.ErrExist
	} else if err != archivefs.ErrNotExist {
		return err
	}

	key := archivefs.RelativeKey(path) + "/"
	_, err := sm.client.PutObject(ctx, sm.bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{
		ContentType: s3DirectoryContentType,
	})

	return err
}

// Remove deletes the file at path.
func (sm *S3Mount) Remove(ctx context.Context, path string) error {
	if err := sm.check(); err != nil {
		return err
	}

	stat, err := sm.stat(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return archivefs.NotFound("remove", path)
		}
		return err
	}
	if stat.IsDir() {
		return archivefs.ErrIsDirectory
	}

	return sm.client.RemoveObject(ctx, sm.bucket, archivefs.RelativeKey(path), minio.RemoveObjectOptions{})
}

// RemoveDir deletes the empty directory at path.
func (sm *S3Mount) RemoveDir(ctx context.Context, path string) error {
	if err := sm.check(); err != nil {
		return err
	}

	key := archivefs.RelativeKey(path)
	if key == "" {
		return archivefs.ErrInvalidPath
	}

	stat, err := sm.stat(ctx, path)
	if err != nil {
		if err == archivefs.ErrNotExist {
			return archivefs.NotFound("removedir", path)
		}
		return err
	}
	if !stat.IsDir() {
		return archivefs.ErrNotDirectory
	}

	listing := sm.client.ListObjects(ctx, sm.bucket, minio.ListObjectsOptions{
		Prefix:  key + "/",
		MaxKeys: 2,
	})
	for entry := range listing {
		if entry.Err != nil {
			return entry.Err
		}
		if entry.Key != key+"/" {
			return archivefs.ErrDirectoryNotEmpty
		}
	}

	return sm.client.RemoveObject(ctx, sm.bucket, key+"/", minio.RemoveObjectOptions{})
}

// URL returns an s3 locator for the "fs" purpose and a presigned HTTP link
// for the "download" purpose.
func (sm *S3Mount) URL(path string, purpose string) (string, error) {
	switch purpose {
	case "fs":
		return fmt.Sprintf("s3://%s/%s", sm.bucket, quotePath(archivefs.RelativeKey(path))), nil
	case "download":
		presigned, err := sm.client.PresignedGetObject(context.Background(), sm.bucket,
			archivefs.RelativeKey(path), 15*time.Minute, url.Values{})
		if err != nil {
			return "", err
		}
		return presigned.String(), nil
	default:
		return "", archivefs.NoURL(path, purpose)
	}
}

// Close marks the mount as closed. The underlying HTTP client holds no
// resources that need explicit release. Close is idempotent.
func (sm *S3Mount) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.closed = true
	return nil
}

func (sm *S3Mount) check() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return archivefs.ErrClosed
	}
	return nil
}

func s3ObjectToInfo(path string, obj minio.ObjectInfo) *archivefs.VirtualObjectInfo {
	isDir := strings.HasSuffix(obj.Key, "/") || obj.ContentType == s3DirectoryContentType

	objType := archivefs.ObjectTypeFile
	mode := archivefs.VirtualFileMode(0644)
	size := obj.Size
	if isDir {
		objType = archivefs.ObjectTypeDirectory
		mode = archivefs.ModeDir | 0755
		size = 0
	}

	return &archivefs.VirtualObjectInfo{
		Path:    archivefs.CleanPath(path),
		Name:    archivefs.BaseName(path),
		Type:    objType,
		Size:    size,
		Mode:    mode,
		ModTime: obj.LastModified,
	}
}

// s3Writer buffers writes and uploads them on Close.
type s3Writer struct {
	mount  *S3Mount
	ctx    context.Context
	path   string
	buf    *bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, archivefs.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return archivefs.ErrClosed
	}
	w.closed = true

	if err := w.mount.check(); err != nil {
		return err
	}

	_, err := w.mount.client.PutObject(w.ctx, w.mount.bucket, archivefs.RelativeKey(w.path),
		bytes.NewReader(w.buf.Bytes()), int64(w.buf.Len()), minio.PutObjectOptions{})

	return err
}
