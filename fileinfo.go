package archivefs

// VirtualFileMode represents file mode and permission bits.
// It follows Unix file mode conventions with type and permission bits.
type VirtualFileMode uint32

// File mode constants for type and permission bits.
// These match Unix file mode semantics.
const (
	// Type bits
	ModeDir VirtualFileMode = 1 << 31 // d: directory

	// Permission bits
	ModePerm VirtualFileMode = 0777 // Unix permission bits
)

// IsDir reports whether m describes a directory.
func (m VirtualFileMode) IsDir() bool {
	return m&ModeDir != 0
}

// Perm returns the Unix permission bits in m (the lower 9 bits).
func (m VirtualFileMode) Perm() VirtualFileMode {
	return m & ModePerm
}

// String returns a textual representation of the mode in Unix ls -l format.
// Example: "drwxr-xr-x" for a directory with 755 permissions.
func (m VirtualFileMode) String() string {
	var buf [10]byte
	if m.IsDir() {
		buf[0] = 'd'
	} else {
		buf[0] = '-'
	}

	const rwx = "rwxrwxrwx"
	for i, c := range rwx {
		if m&(1<<uint(9-1-i)) != 0 {
			buf[i+1] = byte(c)
		} else {
			buf[i+1] = '-'
		}
	}

	return string(buf[:])
}

// VirtualAccessMode represents file access modes for opening files.
// These modes control how files are opened for writing.
type VirtualAccessMode int

// File access mode constants.
// These can be combined using bitwise OR.
const (
	AccessModeWrite  VirtualAccessMode = 1 << iota // O_WRONLY: open for writing
	AccessModeAppend                               // O_APPEND: append to file
	AccessModeCreate                               // O_CREATE: create if not exists
	AccessModeTrunc                                // O_TRUNC: truncate on open
)

// IsAppend checks if the mode continues after existing content.
func (m VirtualAccessMode) IsAppend() bool {
	return m&AccessModeAppend != 0
}

// IsCreate checks if the mode creates missing files.
func (m VirtualAccessMode) IsCreate() bool {
	return m&AccessModeCreate != 0
}
