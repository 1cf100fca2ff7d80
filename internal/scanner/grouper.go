package scanner

import (
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/natural"
)

// Grouper turns the files of a root into book candidates according to the
// root's kind.
type Grouper struct {
	logger *slog.Logger
}

// NewGrouper creates a grouper.
func NewGrouper(logger *slog.Logger) *Grouper {
	return &Grouper{
		logger: logger,
	}
}

// Group returns the candidates of root ordered by key.
//
//   - single_file: every file is a book.
//   - single_folder: the whole root is one book.
//   - collection: every immediate child folder is a book. Files directly in
//     the root each form their own book.
func (g *Grouper) Group(root domain.Root, files []WalkResult) []Candidate {
	if len(files) == 0 {
		return nil
	}

	byKey := make(map[string]*Candidate)
	add := func(key, uri, name string, f WalkResult) {
		c, ok := byKey[key]
		if !ok {
			c = &Candidate{RootID: root.ID, Key: key, URI: uri, Name: name}
			byKey[key] = c
		}
		c.Files = append(c.Files, f)
	}

	for _, f := range files {
		switch root.Kind {
		case domain.RootSingleFolder:
			add(".", root.Path, rootName(root), f)

		case domain.RootCollection:
			if first, _, nested := strings.Cut(f.RelPath, "/"); nested {
				add(first, joinURI(root.Path, first), first, f)
				continue
			}
			add(f.RelPath, f.File.URI, trimExt(f.File.Name), f)

		default:
			add(f.RelPath, f.File.URI, trimExt(f.File.Name), f)
		}
	}

	candidates := make([]Candidate, 0, len(byKey))
	for _, c := range byKey {
		slices.SortFunc(c.Files, func(a, b WalkResult) int {
			return natural.Compare(a.RelPath, b.RelPath)
		})
		candidates = append(candidates, *c)
	}
	slices.SortFunc(candidates, func(a, b Candidate) int {
		return natural.Compare(a.Key, b.Key)
	})

	g.logger.Debug("grouped root", "root", root.ID, "kind", root.Kind, "files", len(files), "books", len(candidates))
	return candidates
}

func rootName(root domain.Root) string {
	name := filepath.Base(filepath.Clean(root.Path))
	if name == "." || name == string(filepath.Separator) {
		return root.ID
	}
	if IsAudioExt(filepath.Ext(name)) {
		return trimExt(name)
	}
	return name
}

func trimExt(name string) string {
	if ext := path.Ext(name); ext != "" && ext != name {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

func joinURI(base, rel string) string {
	return filepath.Join(base, filepath.FromSlash(rel))
}
