package domain

import "fmt"

// RootKind decides how the files below a root are grouped into books.
type RootKind string

const (
	// RootSingleFile yields one book per audio file found below the root.
	RootSingleFile RootKind = "single_file"

	// RootSingleFolder yields one book for the whole root.
	RootSingleFolder RootKind = "single_folder"

	// RootCollection yields one book per immediate child folder. Audio files
	// directly inside the root each form their own book.
	RootCollection RootKind = "collection"
)

// ParseRootKind converts a configured kind name into a RootKind.
func ParseRootKind(s string) (RootKind, error) {
	switch k := RootKind(s); k {
	case RootSingleFile, RootSingleFolder, RootCollection:
		return k, nil
	default:
		return "", fmt.Errorf("unknown root kind %q", s)
	}
}

// Root is a configured location the scanner enumerates.
type Root struct {
	// ID names the root persistently. Chapter and book identities are derived
	// from it, so it must survive remounts of the underlying path.
	ID   string   `json:"id" toml:"id" validate:"required,max=64"`
	Path string   `json:"path" toml:"path" validate:"required"`
	Kind RootKind `json:"kind" toml:"kind" validate:"required,oneof=single_file single_folder collection"`
}
