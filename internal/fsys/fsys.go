// Package fsys is the file system boundary of the scanner: it enumerates
// directory children and opens files for reading.
package fsys

import (
	"context"
	"io"
	"strings"
	"time"
)

// Handle describes one entry returned by ListChildren.
type Handle struct {
	LastModified time.Time
	Name         string
	// URI locates the entry for OpenRead and for probers. For the OS
	// provider it is an absolute path.
	URI string
	// FileKey identifies the underlying file independent of its name,
	// such as device:inode. Empty when the provider cannot tell.
	FileKey string
	Size    int64
	IsDir   bool
}

// Hidden reports whether the entry's name marks it as hidden.
func (h Handle) Hidden() bool {
	return strings.HasPrefix(h.Name, ".")
}

// File is an open file. Matroska and MP4 parsing needs to seek.
type File interface {
	io.ReadSeekCloser
}

// Provider enumerates locations and opens files.
type Provider interface {
	// ListChildren returns the entries directly below location.
	ListChildren(ctx context.Context, location string) ([]Handle, error)

	// Stat describes a single location.
	Stat(ctx context.Context, location string) (Handle, error)

	// OpenRead opens a file handle for reading.
	OpenRead(ctx context.Context, h Handle) (File, error)
}
