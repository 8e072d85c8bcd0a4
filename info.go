package archivefs

import "time"

// Metadata namespaces recognized by GetInfo. The basic namespace is always
// cheap and always populated; every other namespace is populated only when
// requested and when the mount can provide it.
const (
	NamespaceBasic   = "basic"
	NamespaceDetails = "details"
	NamespaceAccess  = "access"
	NamespaceZip     = "zip"
)

// Info is a namespaced metadata record for a single object. Sections other
// than Basic are nil when not requested or not available; callers must treat
// a nil section as "unknown", not as an error.
type Info struct {
	Basic   BasicInfo
	Details *DetailsInfo
	Access  *AccessInfo

	// Zip holds the raw archive-entry fields for objects stored in an
	// archive-backed mount. Nil everywhere else.
	Zip map[string]any
}

// BasicInfo is the always-available section: identity and type.
type BasicInfo struct {
	Name  string
	IsDir bool
}

// DetailsInfo describes size, type and timestamps.
type DetailsInfo struct {
	Size     int64
	Type     VirtualObjectType
	Modified time.Time
}

// AccessInfo describes ownership and permission bits.
type AccessInfo struct {
	Permissions VirtualFileMode
}

// InfoUpdate carries a partial metadata update for SetInfo. Nil fields are
// left untouched; mounts that cannot persist a given field ignore it.
type InfoUpdate struct {
	ModTime  *time.Time
	Mode     *VirtualFileMode
	Metadata map[string]string
}

// NamespaceRequested reports whether ns was requested in the namespaces
// argument of a GetInfo call.
func NamespaceRequested(namespaces []string, ns string) bool {
	for _, n := range namespaces {
		if n == ns {
			return true
		}
	}
	return false
}
