package mounts

import (
	"archive/zip"
	"strings"

	"github.com/tidwall/btree"

	"github.com/mwantia/archivefs"
)

// zipNode is a single entry in the reconstructed directory tree.
type zipNode struct {
	isDir bool
	// file is the archive record backing this node. Nil for the root and
	// for directories that are implied by a deeper entry but were never
	// stored in the archive themselves.
	file *zip.File
}

// zipIndex is the hierarchical directory tree reconstructed from an
// archive's flat entry list. Keys are root-relative ("" for the root,
// "a/b.txt" for nested entries) and kept sorted in a B-tree, so listing a
// directory is a range scan over its prefix.
//
// The index is immutable after construction and therefore safe for
// concurrent read access without locking.
type zipIndex struct {
	nodes *btree.Map[string, *zipNode]
}

// newZipIndex builds the tree from the archive's entry list. Every ancestor
// directory of every entry is created before the entry itself, so directories
// an archive never stored explicitly still exist as nodes. Node creation is
// idempotent, which makes the result independent of entry order.
func newZipIndex(files []*zip.File) *zipIndex {
	idx := &zipIndex{
		nodes: btree.NewMap[string, *zipNode](0),
	}
	idx.nodes.Set("", &zipNode{isDir: true})

	for _, f := range files {
		name := strings.TrimPrefix(f.Name, "/")
		if name == "" {
			continue
		}

		if strings.HasSuffix(name, "/") {
			idx.makeDirAll(strings.TrimSuffix(name, "/"), f)
		} else {
			idx.makeDirAll(parentKey(name), nil)
			if node, exists := idx.nodes.Get(name); exists {
				// Hand-crafted archives can store the same name as
				// both a file and a directory. The directory wins,
				// whatever the entry order.
				if !node.isDir && node.file == nil {
					node.file = f
				}
			} else {
				idx.nodes.Set(name, &zipNode{file: f})
			}
		}
	}

	return idx
}

// makeDirAll creates the directory at key and all its ancestors.
// Existing directory nodes are left untouched and conflicting file nodes
// are promoted; when f is non-nil it is attached to the final directory so
// explicitly stored directories keep their archive record even if an
// implied node was created first.
func (idx *zipIndex) makeDirAll(key string, f *zip.File) {
	if key != "" {
		current := ""
		for _, part := range strings.Split(key, "/") {
			if current == "" {
				current = part
			} else {
				current = current + "/" + part
			}

			if node, exists := idx.nodes.Get(current); exists {
				// A file entry of the same name may have been seen
				// first; promote it, the directory wins.
				if !node.isDir {
					node.isDir = true
					node.file = nil
				}
			} else {
				idx.nodes.Set(current, &zipNode{isDir: true})
			}
		}
	}

	if f != nil {
		if node, exists := idx.nodes.Get(key); exists && node.file == nil {
			node.file = f
		}
	}
}

// lookup resolves a canonical path to its node.
func (idx *zipIndex) lookup(path string) (*zipNode, bool) {
	return idx.nodes.Get(archivefs.RelativeKey(path))
}

// children returns the direct children of the directory at path, as pairs
// of child key and node. The caller is responsible for checking that the
// path exists and is a directory.
func (idx *zipIndex) children(path string) []zipChild {
	prefix := archivefs.RelativeKey(path)
	if prefix != "" {
		prefix += "/"
	}

	var entries []zipChild
	idx.nodes.Ascend(prefix, func(key string, node *zipNode) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		if key == "" {
			return true
		}
		// Direct children only
		if strings.Contains(key[len(prefix):], "/") {
			return true
		}

		entries = append(entries, zipChild{key: key, node: node})
		return true
	})

	return entries
}

type zipChild struct {
	key  string
	node *zipNode
}

// parentKey returns the parent of a root-relative key, "" for top-level keys.
func parentKey(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i]
	}
	return ""
}

// zipEntryName maps a canonical path to its archive entry name. Archive
// names are root-relative, never absolute, and directory entries carry a
// trailing separator. Whether the path is a directory must be resolved
// against the directory index (or the staged tree) before calling; the
// path string alone does not carry that information.
func zipEntryName(path string, isDir bool) string {
	name := archivefs.RelativeKey(path)
	if isDir && name != "" {
		name += "/"
	}
	return name
}
