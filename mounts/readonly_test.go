package mounts

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/mwantia/archivefs"
)

func TestReadOnly_BlocksMutations(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	writeFile(t, inner, "/file.txt", "content")

	mount := NewReadOnly(inner)
	defer mount.Close()

	if !mount.Traits().ReadOnly {
		t.Error("Expected wrapper to declare ReadOnly")
	}

	if _, err := mount.OpenWrite(ctx, "/file.txt", archivefs.AccessModeWrite); !errors.Is(err, archivefs.ErrReadOnly) {
		t.Errorf("OpenWrite: expected ErrReadOnly, got %v", err)
	}
	if err := mount.SetInfo(ctx, "/file.txt", nil); !errors.Is(err, archivefs.ErrReadOnly) {
		t.Errorf("SetInfo: expected ErrReadOnly, got %v", err)
	}
	if err := mount.MakeDir(ctx, "/dir"); !errors.Is(err, archivefs.ErrReadOnly) {
		t.Errorf("MakeDir: expected ErrReadOnly, got %v", err)
	}
	if err := mount.Remove(ctx, "/file.txt"); !errors.Is(err, archivefs.ErrReadOnly) {
		t.Errorf("Remove: expected ErrReadOnly, got %v", err)
	}
	if err := mount.RemoveDir(ctx, "/dir"); !errors.Is(err, archivefs.ErrReadOnly) {
		t.Errorf("RemoveDir: expected ErrReadOnly, got %v", err)
	}
}

func TestReadOnly_DelegatesReads(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	writeFile(t, inner, "/file.txt", "content")

	mount := NewReadOnly(inner)
	defer mount.Close()

	info, err := mount.GetInfo(ctx, "/file.txt")
	if err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}
	if info.Basic.Name != "file.txt" {
		t.Errorf("Unexpected basic info: %+v", info.Basic)
	}

	r, err := mount.OpenRead(ctx, "/file.txt")
	if err != nil {
		t.Fatalf("OpenRead failed: %v", err)
	}
	defer r.Close()

	got, _ := io.ReadAll(r)
	if string(got) != "content" {
		t.Errorf("Expected 'content', got %q", got)
	}

	infos, err := mount.List(ctx, "/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if names := childNames(infos); len(names) != 1 || names[0] != "file.txt" {
		t.Errorf("Expected [file.txt], got %v", names)
	}
}

func TestReadOnly_CloseClosesInner(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	mount := NewReadOnly(inner)

	if err := mount.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := inner.GetInfo(ctx, "/"); !errors.Is(err, archivefs.ErrClosed) {
		t.Errorf("Expected inner mount to be closed, got %v", err)
	}
}
