package archivefs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

// fakeMount records operations so mount-table tests can verify delegation
// without depending on a real backend.
type fakeMount struct {
	traits   MountTraits
	lastOp   string
	lastPath string
	closed   int
	closeErr error
}

func (f *fakeMount) Traits() MountTraits { return f.traits }

func (f *fakeMount) GetInfo(ctx context.Context, path string, namespaces ...string) (*Info, error) {
	f.lastOp, f.lastPath = "getinfo", path
	return &Info{Basic: BasicInfo{Name: BaseName(path)}}, nil
}

func (f *fakeMount) List(ctx context.Context, path string) ([]*VirtualObjectInfo, error) {
	f.lastOp, f.lastPath = "list", path
	return nil, nil
}

func (f *fakeMount) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	f.lastOp, f.lastPath = "openread", path
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeMount) OpenWrite(ctx context.Context, path string, flags VirtualAccessMode) (io.WriteCloser, error) {
	f.lastOp, f.lastPath = "openwrite", path
	return nil, ReadOnly("openwrite", path)
}

func (f *fakeMount) SetInfo(ctx context.Context, path string, update *InfoUpdate) error {
	f.lastOp, f.lastPath = "setinfo", path
	return nil
}

func (f *fakeMount) MakeDir(ctx context.Context, path string) error {
	f.lastOp, f.lastPath = "makedir", path
	return nil
}

func (f *fakeMount) Remove(ctx context.Context, path string) error {
	f.lastOp, f.lastPath = "remove", path
	return nil
}

func (f *fakeMount) RemoveDir(ctx context.Context, path string) error {
	f.lastOp, f.lastPath = "removedir", path
	return nil
}

func (f *fakeMount) URL(path string, purpose string) (string, error) {
	f.lastOp, f.lastPath = "url", path
	return "fake://" + path, nil
}

func (f *fakeMount) Close() error {
	f.closed++
	return f.closeErr
}

func newTestVfs() *VirtualFileSystem {
	return NewVfs(WithoutTerminalLog())
}

func TestVfs_MountUnmount(t *testing.T) {
	ctx := context.Background()
	vfs := newTestVfs()

	mount := &fakeMount{}
	if err := vfs.Mount(ctx, "/data", mount); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if err := vfs.Mount(ctx, "/data", &fakeMount{}); !errors.Is(err, ErrAlreadyMounted) {
		t.Errorf("Expected ErrAlreadyMounted, got %v", err)
	}

	infos := vfs.Mounts()
	if len(infos) != 1 || infos[0].Path != "/data" {
		t.Errorf("Unexpected mount table: %+v", infos)
	}

	if err := vfs.Unmount(ctx, "/data"); err != nil {
		t.Fatalf("Unmount failed: %v", err)
	}
	if err := vfs.Unmount(ctx, "/data"); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Expected ErrNotMounted, got %v", err)
	}
	if mount.closed != 0 {
		t.Error("Unmount must not close the mount")
	}
}

func TestVfs_UnmountBusyWithChild(t *testing.T) {
	ctx := context.Background()
	vfs := newTestVfs()

	if err := vfs.Mount(ctx, "/data", &fakeMount{}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if err := vfs.Mount(ctx, "/data/nested", &fakeMount{}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	if err := vfs.Unmount(ctx, "/data"); !errors.Is(err, ErrMountBusy) {
		t.Errorf("Expected ErrMountBusy, got %v", err)
	}

	if err := vfs.Unmount(ctx, "/data/nested"); err != nil {
		t.Fatalf("Unmount child failed: %v", err)
	}
	if err := vfs.Unmount(ctx, "/data"); err != nil {
		t.Fatalf("Unmount parent failed: %v", err)
	}
}

func TestVfs_ResolveLongestPrefix(t *testing.T) {
	ctx := context.Background()
	vfs := newTestVfs()

	rootMount := &fakeMount{}
	nestedMount := &fakeMount{}
	if err := vfs.Mount(ctx, "/", rootMount); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if err := vfs.Mount(ctx, "/archive", nestedMount); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	if _, err := vfs.GetInfo(ctx, "/archive/deep/file.txt"); err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}
	if nestedMount.lastPath != "/deep/file.txt" {
		t.Errorf("Expected mount-relative path, got %q", nestedMount.lastPath)
	}
	if rootMount.lastOp != "" {
		t.Errorf("Expected root mount untouched, saw op %q", rootMount.lastOp)
	}

	if _, err := vfs.GetInfo(ctx, "/other/file.txt"); err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}
	if rootMount.lastPath != "/other/file.txt" {
		t.Errorf("Expected root mount to serve the path, got %q", rootMount.lastPath)
	}
}

func TestVfs_ResolveUnmountedPath(t *testing.T) {
	ctx := context.Background()
	vfs := newTestVfs()

	if err := vfs.Mount(ctx, "/data", &fakeMount{}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	if _, err := vfs.GetInfo(ctx, "/elsewhere"); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Expected ErrNotMounted, got %v", err)
	}
}

func TestVfs_DelegatesOperations(t *testing.T) {
	ctx := context.Background()
	vfs := newTestVfs()

	mount := &fakeMount{}
	if err := vfs.Mount(ctx, "/data", mount); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	calls := []struct {
		op  string
		run func() error
	}{
		{"list", func() error { _, err := vfs.List(ctx, "/data/dir"); return err }},
		{"openread", func() error {
			r, err := vfs.OpenRead(ctx, "/data/file.txt")
			if r != nil {
				r.Close()
			}
			return err
		}},
		{"setinfo", func() error { return vfs.SetInfo(ctx, "/data/file.txt", nil) }},
		{"makedir", func() error { return vfs.MakeDir(ctx, "/data/dir") }},
		{"remove", func() error { return vfs.Remove(ctx, "/data/file.txt") }},
		{"removedir", func() error { return vfs.RemoveDir(ctx, "/data/dir") }},
		{"url", func() error { _, err := vfs.URL("/data/file.txt", "fs"); return err }},
	}

	for _, call := range calls {
		if err := call.run(); err != nil {
			t.Fatalf("%s failed: %v", call.op, err)
		}
		if mount.lastOp != call.op {
			t.Errorf("Expected op %q to be delegated, mount saw %q", call.op, mount.lastOp)
		}
	}
}

func TestVfs_ShutdownClosesAll(t *testing.T) {
	ctx := context.Background()
	vfs := newTestVfs()

	first := &fakeMount{}
	second := &fakeMount{closeErr: errors.New("close failed")}
	if err := vfs.Mount(ctx, "/a", first); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if err := vfs.Mount(ctx, "/a/b", second); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	err := vfs.Shutdown(ctx)
	if err == nil {
		t.Fatal("Expected shutdown to report the close failure")
	}
	if first.closed != 1 {
		t.Error("Expected first mount closed despite sibling failure")
	}
	if second.closed != 1 {
		t.Error("Expected second mount closed")
	}
	if len(vfs.Mounts()) != 0 {
		t.Error("Expected empty mount table after shutdown")
	}
}
