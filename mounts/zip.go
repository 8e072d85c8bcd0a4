package mounts

import (
	"archive/zip"
	"fmt"
	"net/url"
	"strings"

	"github.com/mwantia/archivefs"
)

// zipEncodingUTF8 is the only entry-name encoding the zip mounts accept.
// The archive container is read and written with UTF-8 names (with the
// language-encoding flag); requesting anything else fails at construction
// instead of silently mis-encoding names.
const zipEncodingUTF8 = "utf-8"

// ZipOptions holds the recognized construction parameters for zip mounts.
type ZipOptions struct {
	// Write selects a write-staged mount instead of a read-only one.
	Write bool
	// Compression is the codec for serialized entries: zip.Store or
	// zip.Deflate (the default).
	Compression uint16
	// Encoding is the archive entry-name encoding. Only "utf-8" is
	// supported.
	Encoding string
	// Scratch is the staging mount used in write mode. Defaults to a new
	// in-memory mount. The zip mount takes ownership and closes it.
	Scratch archivefs.VirtualMount
}

type ZipOption func(*ZipOptions)

// WithWrite selects a write-staged mount.
func WithWrite() ZipOption {
	return func(opts *ZipOptions) {
		opts.Write = true
	}
}

// WithCompression sets the serialization codec (zip.Store or zip.Deflate).
func WithCompression(method uint16) ZipOption {
	return func(opts *ZipOptions) {
		opts.Compression = method
	}
}

// WithEncoding sets the archive entry-name encoding.
func WithEncoding(encoding string) ZipOption {
	return func(opts *ZipOptions) {
		opts.Encoding = encoding
	}
}

// WithScratch sets the staging mount used in write mode.
func WithScratch(scratch archivefs.VirtualMount) ZipOption {
	return func(opts *ZipOptions) {
		opts.Scratch = scratch
	}
}

func newZipOptions(opts []ZipOption) (*ZipOptions, error) {
	options := &ZipOptions{
		Compression: zip.Deflate,
		Encoding:    zipEncodingUTF8,
	}
	for _, opt := range opts {
		opt(options)
	}

	if err := options.validate(); err != nil {
		return nil, err
	}

	return options, nil
}

func (opts *ZipOptions) validate() error {
	switch strings.ToLower(opts.Encoding) {
	case zipEncodingUTF8, "utf8":
	default:
		return archivefs.CreateFailed(fmt.Errorf("unsupported entry-name encoding %q", opts.Encoding))
	}

	switch opts.Compression {
	case zip.Store, zip.Deflate:
	default:
		return archivefs.CreateFailed(fmt.Errorf("unsupported compression method %d", opts.Compression))
	}

	return nil
}

func (opts *ZipOptions) scratchOrDefault() archivefs.VirtualMount {
	if opts.Scratch != nil {
		return opts.Scratch
	}
	return NewMemory()
}

// NewZip opens the named zip archive as a mount. With WithWrite it returns
// a write-staged mount that serializes into the file on close; otherwise a
// read-only mount mapping the existing archive.
//
// This is pure dispatch: the returned value is one of the two concrete
// mount types, sharing nothing beyond the VirtualMount contract.
func NewZip(file string, opts ...ZipOption) (archivefs.VirtualMount, error) {
	options, err := newZipOptions(opts)
	if err != nil {
		return nil, err
	}

	if options.Write {
		return NewWriteZip(file, opts...)
	}

	return NewReadZip(file, opts...)
}

// quotePath percent-encodes each segment of a slash-separated path,
// keeping the separators themselves intact.
func quotePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
