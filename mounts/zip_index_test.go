package mounts

import (
	"archive/zip"
	"bytes"
	"context"
	"reflect"
	"testing"
)

// treeSnapshot walks the mounted archive and records every path with its
// directory flag, so trees built from differently ordered entry lists can be
// compared structurally.
func treeSnapshot(t *testing.T, ctx context.Context, mount *ReadZipMount, dir string) map[string]bool {
	t.Helper()

	snapshot := make(map[string]bool)
	infos, err := mount.List(ctx, dir)
	if err != nil {
		t.Fatalf("List %s failed: %v", dir, err)
	}

	for _, info := range infos {
		snapshot[info.Path] = info.IsDir()
		if info.IsDir() {
			for path, isDir := range treeSnapshot(t, ctx, mount, info.Path) {
				snapshot[path] = isDir
			}
		}
	}

	return snapshot
}

func TestZipIndex_OrderIndependent(t *testing.T) {
	ctx := context.Background()

	orderings := [][]zipTestEntry{
		{
			{name: "a/"},
			{name: "a/b/"},
			{name: "a/b/c.txt", content: "c"},
			{name: "a/d.txt", content: "d"},
		},
		{
			{name: "a/d.txt", content: "d"},
			{name: "a/b/c.txt", content: "c"},
			{name: "a/b/"},
			{name: "a/"},
		},
		{
			{name: "a/b/c.txt", content: "c"},
			{name: "a/"},
			{name: "a/d.txt", content: "d"},
			{name: "a/b/"},
		},
	}

	var reference map[string]bool
	for i, entries := range orderings {
		mount := openZipBytes(t, entries)
		snapshot := treeSnapshot(t, ctx, mount, "/")

		if reference == nil {
			reference = snapshot
			continue
		}
		if !reflect.DeepEqual(reference, snapshot) {
			t.Errorf("Ordering %d produced a different tree: %v vs %v", i, snapshot, reference)
		}
	}

	want := map[string]bool{
		"/a":         true,
		"/a/b":       true,
		"/a/b/c.txt": false,
		"/a/d.txt":   false,
	}
	if !reflect.DeepEqual(reference, want) {
		t.Errorf("Expected tree %v, got %v", want, reference)
	}
}

func TestZipIndex_ImpliedEqualsExplicit(t *testing.T) {
	ctx := context.Background()

	explicit := openZipBytes(t, []zipTestEntry{
		{name: "x/"},
		{name: "x/y/"},
		{name: "x/y/z.txt", content: "z"},
	})
	implied := openZipBytes(t, []zipTestEntry{
		{name: "x/y/z.txt", content: "z"},
	})

	explicitTree := treeSnapshot(t, ctx, explicit, "/")
	impliedTree := treeSnapshot(t, ctx, implied, "/")

	if !reflect.DeepEqual(explicitTree, impliedTree) {
		t.Errorf("Expected identical trees, got %v vs %v", explicitTree, impliedTree)
	}
}

func TestZipIndex_DirEntryAfterImplied(t *testing.T) {
	// A directory first implied by a deeper file and later declared by its
	// own marker entry must end up with the marker's archive record attached.
	raw := buildZipBytes(t, []zipTestEntry{
		{name: "logs/app.log", content: "line"},
		{name: "logs/"},
	})

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	index := newZipIndex(zr.File)
	node, exists := index.lookup("/logs")
	if !exists {
		t.Fatal("Expected /logs in index")
	}
	if !node.isDir {
		t.Error("Expected /logs to be a directory")
	}
	if node.file == nil {
		t.Error("Expected marker entry record to be attached")
	}
}

func TestZipIndex_FileDirConflictDirWins(t *testing.T) {
	ctx := context.Background()

	// Hand-crafted archives can carry the same name as both a file and a
	// directory. The directory must win regardless of entry order.
	orderings := [][]zipTestEntry{
		{
			{name: "a", content: "shadowed"},
			{name: "a/b.txt", content: "b"},
		},
		{
			{name: "a/b.txt", content: "b"},
			{name: "a", content: "shadowed"},
		},
		{
			{name: "a", content: "shadowed"},
			{name: "a/"},
		},
		{
			{name: "a/"},
			{name: "a", content: "shadowed"},
		},
	}

	for i, entries := range orderings {
		mount := openZipBytes(t, entries)

		info, err := mount.GetInfo(ctx, "/a")
		if err != nil {
			t.Fatalf("Ordering %d: GetInfo failed: %v", i, err)
		}
		if !info.Basic.IsDir {
			t.Errorf("Ordering %d: expected /a to resolve as directory", i)
		}
	}
}

func TestZipEntryName(t *testing.T) {
	cases := []struct {
		path  string
		isDir bool
		want  string
	}{
		{"/a/b.txt", false, "a/b.txt"},
		{"/a", true, "a/"},
		{"/a/b/c", true, "a/b/c/"},
	}

	for _, tc := range cases {
		if got := zipEntryName(tc.path, tc.isDir); got != tc.want {
			t.Errorf("zipEntryName(%q, %v) = %q, want %q", tc.path, tc.isDir, got, tc.want)
		}
	}
}
