package mounts

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/mwantia/archivefs"
)

// mountFactories builds one writable mount per backend, so the contract
// tests below run against every implementation.
func mountFactories(t *testing.T) map[string]archivefs.VirtualMount {
	t.Helper()

	sqliteMount, err := NewSQLite(filepath.Join(t.TempDir(), "vfs.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}

	return map[string]archivefs.VirtualMount{
		"memory": NewMemory(),
		"local":  NewLocal(t.TempDir()),
		"sqlite": sqliteMount,
	}
}

func TestMounts_WriteReadRoundTrip(t *testing.T) {
	for name, mount := range mountFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer mount.Close()

			w, err := mount.OpenWrite(ctx, "/greeting.txt", archivefs.AccessModeWrite|archivefs.AccessModeCreate)
			if err != nil {
				t.Fatalf("OpenWrite failed: %v", err)
			}
			if _, err := w.Write([]byte("hello world")); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Writer close failed: %v", err)
			}

			r, err := mount.OpenRead(ctx, "/greeting.txt")
			if err != nil {
				t.Fatalf("OpenRead failed: %v", err)
			}
			defer r.Close()

			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if string(got) != "hello world" {
				t.Errorf("Expected 'hello world', got %q", got)
			}

			info, err := mount.GetInfo(ctx, "/greeting.txt", archivefs.NamespaceDetails)
			if err != nil {
				t.Fatalf("GetInfo failed: %v", err)
			}
			if info.Basic.IsDir {
				t.Error("Expected a file, got a directory")
			}
			if info.Details == nil || info.Details.Size != int64(len("hello world")) {
				t.Errorf("Unexpected details: %+v", info.Details)
			}
		})
	}
}

func TestMounts_Append(t *testing.T) {
	for name, mount := range mountFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer mount.Close()

			w, err := mount.OpenWrite(ctx, "/log.txt", archivefs.AccessModeWrite|archivefs.AccessModeCreate)
			if err != nil {
				t.Fatalf("OpenWrite failed: %v", err)
			}
			w.Write([]byte("first"))
			if err := w.Close(); err != nil {
				t.Fatalf("Writer close failed: %v", err)
			}

			a, err := mount.OpenWrite(ctx, "/log.txt", archivefs.AccessModeAppend)
			if err != nil {
				t.Fatalf("OpenWrite append failed: %v", err)
			}
			a.Write([]byte(" second"))
			if err := a.Close(); err != nil {
				t.Fatalf("Append close failed: %v", err)
			}

			r, err := mount.OpenRead(ctx, "/log.txt")
			if err != nil {
				t.Fatalf("OpenRead failed: %v", err)
			}
			defer r.Close()

			got, _ := io.ReadAll(r)
			if string(got) != "first second" {
				t.Errorf("Expected 'first second', got %q", got)
			}
		})
	}
}

func TestMounts_Directories(t *testing.T) {
	for name, mount := range mountFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer mount.Close()

			if err := mount.MakeDir(ctx, "/data"); err != nil {
				t.Fatalf("MakeDir failed: %v", err)
			}
			if err := mount.MakeDir(ctx, "/data"); !errors.Is(err, archivefs.ErrExist) {
				t.Errorf("Expected ErrExist for duplicate MakeDir, got %v", err)
			}
			if err := mount.MakeDir(ctx, "/missing/sub"); !errors.Is(err, archivefs.ErrNotExist) {
				t.Errorf("Expected ErrNotExist for missing parent, got %v", err)
			}

			w, err := mount.OpenWrite(ctx, "/data/file.txt", archivefs.AccessModeWrite|archivefs.AccessModeCreate)
			if err != nil {
				t.Fatalf("OpenWrite failed: %v", err)
			}
			w.Write([]byte("x"))
			if err := w.Close(); err != nil {
				t.Fatalf("Writer close failed: %v", err)
			}

			infos, err := mount.List(ctx, "/data")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if names := childNames(infos); len(names) != 1 || names[0] != "file.txt" {
				t.Errorf("Expected [file.txt], got %v", names)
			}

			if err := mount.RemoveDir(ctx, "/data"); !errors.Is(err, archivefs.ErrDirectoryNotEmpty) {
				t.Errorf("Expected ErrDirectoryNotEmpty, got %v", err)
			}
			if err := mount.Remove(ctx, "/data"); !errors.Is(err, archivefs.ErrIsDirectory) {
				t.Errorf("Expected ErrIsDirectory, got %v", err)
			}
			if err := mount.RemoveDir(ctx, "/data/file.txt"); !errors.Is(err, archivefs.ErrNotDirectory) {
				t.Errorf("Expected ErrNotDirectory, got %v", err)
			}

			if err := mount.Remove(ctx, "/data/file.txt"); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}
			if err := mount.RemoveDir(ctx, "/data"); err != nil {
				t.Fatalf("RemoveDir failed: %v", err)
			}
			if _, err := mount.GetInfo(ctx, "/data"); !errors.Is(err, archivefs.ErrNotExist) {
				t.Errorf("Expected ErrNotExist after removal, got %v", err)
			}
		})
	}
}

func TestMounts_WildcardNamesStayLiteral(t *testing.T) {
	for name, mount := range mountFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer mount.Close()

			// '_' and '%' are ordinary path characters; a sibling that only
			// matches under wildcard interpretation must never leak into
			// the listing.
			for _, dir := range []string{"/a_b", "/axb", "/p%q"} {
				if err := mount.MakeDir(ctx, dir); err != nil {
					t.Fatalf("MakeDir %s failed: %v", dir, err)
				}
			}

			w, err := mount.OpenWrite(ctx, "/axb/stray.txt", archivefs.AccessModeWrite|archivefs.AccessModeCreate)
			if err != nil {
				t.Fatalf("OpenWrite failed: %v", err)
			}
			w.Write([]byte("x"))
			if err := w.Close(); err != nil {
				t.Fatalf("Writer close failed: %v", err)
			}

			infos, err := mount.List(ctx, "/a_b")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(infos) != 0 {
				t.Errorf("Expected /a_b to be empty, got %v", childNames(infos))
			}

			infos, err = mount.List(ctx, "/p%q")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(infos) != 0 {
				t.Errorf("Expected /p%%q to be empty, got %v", childNames(infos))
			}

			// The emptiness check behind RemoveDir must not see the sibling
			// file either.
			if err := mount.RemoveDir(ctx, "/a_b"); err != nil {
				t.Errorf("Expected empty /a_b to be removable, got %v", err)
			}
			if err := mount.RemoveDir(ctx, "/axb"); !errors.Is(err, archivefs.ErrDirectoryNotEmpty) {
				t.Errorf("Expected ErrDirectoryNotEmpty for /axb, got %v", err)
			}
		})
	}
}

func TestMounts_ErrorTaxonomy(t *testing.T) {
	for name, mount := range mountFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer mount.Close()

			if err := mount.MakeDir(ctx, "/dir"); err != nil {
				t.Fatalf("MakeDir failed: %v", err)
			}

			if _, err := mount.OpenRead(ctx, "/missing.txt"); !errors.Is(err, archivefs.ErrNotExist) {
				t.Errorf("OpenRead missing: expected ErrNotExist, got %v", err)
			}
			if _, err := mount.OpenRead(ctx, "/dir"); !errors.Is(err, archivefs.ErrFileExpected) {
				t.Errorf("OpenRead dir: expected ErrFileExpected, got %v", err)
			}
			if _, err := mount.OpenWrite(ctx, "/missing.txt", archivefs.AccessModeWrite); !errors.Is(err, archivefs.ErrNotExist) {
				t.Errorf("OpenWrite without create: expected ErrNotExist, got %v", err)
			}
			if _, err := mount.OpenWrite(ctx, "/dir", archivefs.AccessModeWrite); !errors.Is(err, archivefs.ErrFileExpected) {
				t.Errorf("OpenWrite dir: expected ErrFileExpected, got %v", err)
			}
			if err := mount.SetInfo(ctx, "/missing.txt", nil); !errors.Is(err, archivefs.ErrNotExist) {
				t.Errorf("SetInfo missing: expected ErrNotExist, got %v", err)
			}

			var pathErr *archivefs.PathError
			_, err := mount.OpenRead(ctx, "/missing.txt")
			if !errors.As(err, &pathErr) {
				t.Errorf("Expected *PathError, got %T", err)
			} else if pathErr.Path != "/missing.txt" {
				t.Errorf("Expected path in error, got %q", pathErr.Path)
			}
		})
	}
}

func TestMounts_SetInfoMode(t *testing.T) {
	for name, mount := range mountFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer mount.Close()

			w, err := mount.OpenWrite(ctx, "/file.txt", archivefs.AccessModeWrite|archivefs.AccessModeCreate)
			if err != nil {
				t.Fatalf("OpenWrite failed: %v", err)
			}
			w.Write([]byte("x"))
			if err := w.Close(); err != nil {
				t.Fatalf("Writer close failed: %v", err)
			}

			mode := archivefs.VirtualFileMode(0600)
			if err := mount.SetInfo(ctx, "/file.txt", &archivefs.InfoUpdate{Mode: &mode}); err != nil {
				t.Fatalf("SetInfo failed: %v", err)
			}

			info, err := mount.GetInfo(ctx, "/file.txt", archivefs.NamespaceAccess)
			if err != nil {
				t.Fatalf("GetInfo failed: %v", err)
			}
			if info.Access == nil {
				t.Fatal("Expected access namespace")
			}
			if info.Access.Permissions.Perm() != 0600 {
				t.Errorf("Expected permissions 0600, got %o", info.Access.Permissions.Perm())
			}
		})
	}
}

func TestMounts_ClosedOperationsFail(t *testing.T) {
	for name, mount := range mountFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := mount.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
			if err := mount.Close(); err != nil {
				t.Errorf("Second close failed: %v", err)
			}

			if _, err := mount.GetInfo(ctx, "/"); !errors.Is(err, archivefs.ErrClosed) {
				t.Errorf("Expected ErrClosed, got %v", err)
			}
			if err := mount.MakeDir(ctx, "/dir"); !errors.Is(err, archivefs.ErrClosed) {
				t.Errorf("Expected ErrClosed, got %v", err)
			}
		})
	}
}
