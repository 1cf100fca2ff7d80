package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Options configures the file watcher behavior.
type Options struct {
	// Filter reports whether a file is relevant. Directories always pass.
	// A nil Filter accepts every file.
	Filter func(path string) bool

	IgnorePatterns []string
	SettleDelay    time.Duration
	IgnoreHidden   bool
}

func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 100 * time.Millisecond
	}

	// Explicit patterns, even an empty slice, keep the caller's IgnoreHidden.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"*.tmp",
			"*.part",
			"Thumbs.db",
		}
		o.IgnoreHidden = true
	}
}

// shouldIgnore checks if a path matches the hidden rule or an ignore pattern.
func (o *Options) shouldIgnore(path string) bool {
	if o.IgnoreHidden {
		for part := range strings.SplitSeq(filepath.Clean(path), string(filepath.Separator)) {
			if strings.HasPrefix(part, ".") && part != "." && part != ".." {
				return true
			}
		}
	}

	base := filepath.Base(path)
	for _, pattern := range o.IgnorePatterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

// accepts reports whether a file passes the filter.
func (o *Options) accepts(path string) bool {
	return o.Filter == nil || o.Filter(path)
}
