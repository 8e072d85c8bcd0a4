package archivefs

import "time"

// VirtualObjectInfo contains metadata about a virtual object.
// This is the mount-level representation of file/directory information.
type VirtualObjectInfo struct {
	Path     string            // Canonical path of the object
	Name     string            // Base name of the object
	Type     VirtualObjectType // Type of object (file or directory)
	Size     int64             // Size in bytes (0 for directories)
	Mode     VirtualFileMode   // Unix-style mode and permissions
	ModTime  time.Time         // Last modification time
	Metadata map[string]string // Extended metadata (mount-specific)
}

// IsDir reports whether the object is a directory.
func (oi *VirtualObjectInfo) IsDir() bool {
	return oi.Type == ObjectTypeDirectory
}

// VirtualObjectType identifies the type of object in the filesystem.
type VirtualObjectType int

const (
	ObjectTypeFile      VirtualObjectType = iota // Regular file
	ObjectTypeDirectory                          // Directory
)

func (t VirtualObjectType) String() string {
	switch t {
	case ObjectTypeFile:
		return "file"
	case ObjectTypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}
