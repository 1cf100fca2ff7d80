package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/fsys"
)

// audioExtensions lists the files the walker reports.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".m4b":  true,
	".mp4":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".mka":  true,
	".mkv":  true,
	".webm": true,
	".aac":  true,
	".wma":  true,
	".wav":  true,
}

// IsAudioExt checks if a file extension is for an audio file.
func IsAudioExt(ext string) bool {
	return audioExtensions[strings.ToLower(ext)]
}

// Walker enumerates the audio files below a root.
type Walker struct {
	fs     fsys.Provider
	logger *slog.Logger
}

// NewWalker creates a new walker.
func NewWalker(provider fsys.Provider, logger *slog.Logger) *Walker {
	return &Walker{
		fs:     provider,
		logger: logger,
	}
}

// Walk streams the audio files below root, skipping hidden entries. The
// channel closes when the walk is complete or ctx is canceled.
//
// A root whose path does not exist yields no files. Any other listing
// failure is sent as a final result carrying an Error with
// CodeEnumeration, and the files sent before it must be discarded: a
// partial listing would deactivate books that still exist.
func (w *Walker) Walk(ctx context.Context, root domain.Root) <-chan WalkResult {
	results := make(chan WalkResult, 100)

	go func() {
		defer close(results)

		send := func(r WalkResult) bool {
			select {
			case results <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		top, err := w.fs.Stat(ctx, root.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			w.logger.Warn("root is missing", "root", root.ID, "path", root.Path)
			return
		case err != nil:
			send(WalkResult{RootID: root.ID, Error: enumerationError(root, root.Path, err)})
			return
		}

		if !top.IsDir {
			if IsAudioExt(filepath.Ext(top.Name)) {
				send(WalkResult{RootID: root.ID, File: top, RelPath: top.Name})
			}
			return
		}

		if err := w.walkDir(ctx, root, top.URI, ".", send); err != nil {
			if ctx.Err() != nil {
				return
			}
			send(WalkResult{RootID: root.ID, Error: err})
		}
	}()

	return results
}

func (w *Walker) walkDir(ctx context.Context, root domain.Root, location, rel string, send func(WalkResult) bool) error {
	children, err := w.fs.ListChildren(ctx, location)
	if err != nil {
		return enumerationError(root, location, err)
	}

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if child.Hidden() {
			continue
		}

		childRel := path.Join(rel, child.Name)
		if child.IsDir {
			if err := w.walkDir(ctx, root, child.URI, childRel, send); err != nil {
				return err
			}
			continue
		}
		if !IsAudioExt(filepath.Ext(child.Name)) {
			continue
		}
		if !send(WalkResult{RootID: root.ID, File: child, RelPath: childRel}) {
			return ctx.Err()
		}
	}
	return nil
}

func enumerationError(root domain.Root, location string, err error) error {
	return errors.Wrapf(err, errors.CodeEnumeration, "list %s of root %s", location, root.ID)
}

// collect drains a walk. It returns the files, or the error that ended the
// walk with the files discarded.
func collect(results <-chan WalkResult) ([]WalkResult, error) {
	var files []WalkResult
	var walkErr error
	for r := range results {
		if r.Error != nil {
			walkErr = r.Error
			continue
		}
		files = append(files, r)
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}
