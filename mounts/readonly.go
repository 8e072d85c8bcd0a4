package mounts

import (
	"context"
	"io"

	"github.com/mwantia/archivefs"
)

// ReadOnlyMount wraps any VirtualMount implementation to make it read-only.
// All read operations are passed through to the underlying mount.
// All write operations return ErrReadOnly.
type ReadOnlyMount struct {
	mount archivefs.VirtualMount
}

// NewReadOnly creates a new read-only wrapper around the given mount.
func NewReadOnly(mount archivefs.VirtualMount) *ReadOnlyMount {
	return &ReadOnlyMount{
		mount: mount,
	}
}

func (rom *ReadOnlyMount) Traits() archivefs.MountTraits {
	traits := rom.mount.Traits()
	traits.ReadOnly = true
	return traits
}

func (rom *ReadOnlyMount) GetInfo(ctx context.Context, path string, namespaces ...string) (*archivefs.Info, error) {
	return rom.mount.GetInfo(ctx, path, namespaces...)
}

func (rom *ReadOnlyMount) List(ctx context.Context, path string) ([]*archivefs.VirtualObjectInfo, error) {
	return rom.mount.List(ctx, path)
}

func (rom *ReadOnlyMount) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	return rom.mount.OpenRead(ctx, path)
}

func (rom *ReadOnlyMount) OpenWrite(ctx context.Context, path string, flags archivefs.VirtualAccessMode) (io.WriteCloser, error) {
	return nil, archivefs.ReadOnly("openwrite", path)
}

func (rom *ReadOnlyMount) SetInfo(ctx context.Context, path string, update *archivefs.InfoUpdate) error {
	return archivefs.ReadOnly("setinfo", path)
}

func (rom *ReadOnlyMount) MakeDir(ctx context.Context, path string) error {
	return archivefs.ReadOnly("makedir", path)
}

func (rom *ReadOnlyMount) Remove(ctx context.Context, path string) error {
	return archivefs.ReadOnly("remove", path)
}

func (rom *ReadOnlyMount) RemoveDir(ctx context.Context, path string) error {
	return archivefs.ReadOnly("removedir", path)
}

func (rom *ReadOnlyMount) URL(path string, purpose string) (string, error) {
	return rom.mount.URL(path, purpose)
}

func (rom *ReadOnlyMount) Close() error {
	return rom.mount.Close()
}
