// Package id creates the identifiers of scan passes and catalog records.
package id

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes of generated ids.
const (
	PrefixScan = "scan"
)

// namespace seeds every derived identity. Changing it changes every chapter
// and book id in existing catalogs.
var namespace = uuid.MustParse("9c1d5c1e-2b8f-4d4e-9a55-7f6f3b1e2a10")

// Generate creates a prefixed random id such as "scan-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if id generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Chapter derives the id of the chapter stored at relPath below the root
// named rootID. The id does not depend on where the root is mounted.
func Chapter(rootID, relPath string) string {
	return derive("chapter", rootID, relPath)
}

// Book derives the id of the book whose files live at relPath below the
// root named rootID. relPath is "." for a book spanning the whole root.
func Book(rootID, relPath string) string {
	return derive("book", rootID, relPath)
}

func derive(kind, rootID, relPath string) string {
	name := kind + "\x00" + rootID + "\x00" + cleanRel(relPath)
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// cleanRel normalizes separators so ids match across platforms.
func cleanRel(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}
