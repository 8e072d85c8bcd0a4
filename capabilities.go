package archivefs

// MountTraits describes the declared characteristics of a mount.
// Traits are static for the lifetime of a mount instance and allow callers
// to branch on backend behavior without probing operations.
type MountTraits struct {
	// CaseSensitive reports whether paths are matched case-sensitively.
	CaseSensitive bool
	// ReadOnly reports whether every mutating operation fails with ErrReadOnly.
	ReadOnly bool
	// ThreadSafe reports whether the mount may be used concurrently.
	ThreadSafe bool
	// Network reports whether operations cross a network boundary.
	Network bool
}
