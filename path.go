package archivefs

import (
	gopath "path"
	"strings"
)

// CleanPath normalizes a path into the canonical form used throughout the
// VFS: absolute, forward-slash separated, no trailing slash except the root.
func CleanPath(path string) string {
	if path == "" {
		return "/"
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return gopath.Clean(path)
}

// BaseName returns the last element of a canonical path.
// The root reports an empty name.
func BaseName(path string) string {
	if path == "/" {
		return ""
	}

	return gopath.Base(path)
}

// DirName returns the parent of a canonical path.
func DirName(path string) string {
	return gopath.Dir(path)
}

// JoinPath joins path elements into a single canonical path.
func JoinPath(elem ...string) string {
	return CleanPath(gopath.Join(elem...))
}

// RelativeKey converts a canonical path into the root-relative key form
// used by flat-keyed backends: no leading slash, "" for the root.
func RelativeKey(path string) string {
	return strings.TrimPrefix(CleanPath(path), "/")
}

// hasPathPrefix checks if path lives at or below prefix.
// Both paths should be cleaned before calling.
func hasPathPrefix(path, prefix string) bool {
	// Root matches everything
	if prefix == "/" || prefix == "" {
		return true
	}

	// Exact match
	if path == prefix {
		return true
	}

	// Check if path starts with prefix followed by /
	return strings.HasPrefix(path, prefix+"/")
}
