package fsys

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// OS is a Provider over the local file system.
type OS struct {
	logger *slog.Logger
}

// NewOS creates a local file system provider.
func NewOS(logger *slog.Logger) *OS {
	return &OS{logger: logger}
}

// ListChildren reads the directory at location. Entries that vanish or
// cannot be stat'ed while listing are logged and skipped.
func (p *OS) ListChildren(ctx context.Context, location string) ([]Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	handles := make([]Handle, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			p.logger.Warn("failed to get file info", "path", path, "error", err)
			continue
		}
		handles = append(handles, newHandle(path, info))
	}
	return handles, nil
}

// Stat describes the file or directory at location.
func (p *OS) Stat(ctx context.Context, location string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	path, err := filepath.Abs(location)
	if err != nil {
		return Handle{}, fmt.Errorf("resolve %s: %w", location, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Handle{}, err
	}
	return newHandle(path, info), nil
}

// OpenRead opens the file behind h.
func (p *OS) OpenRead(ctx context.Context, h Handle) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(h.URI)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func newHandle(path string, info os.FileInfo) Handle {
	return Handle{
		Name: info.Name(),
		URI:  path,
		// Catalog timestamps are kept at millisecond precision.
		LastModified: info.ModTime().Truncate(time.Millisecond).UTC(),
		FileKey:      fileKey(path, info),
		Size:         info.Size(),
		IsDir:        info.IsDir(),
	}
}
