package watcher

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	assert.True(t, opts.IgnoreHidden)
	assert.Equal(t, 100*time.Millisecond, opts.SettleDelay)
	assert.Contains(t, opts.IgnorePatterns, ".DS_Store")
	assert.Contains(t, opts.IgnorePatterns, "*.part")
}

func TestOptions_CustomValues(t *testing.T) {
	opts := Options{
		IgnoreHidden:   false,
		SettleDelay:    200 * time.Millisecond,
		IgnorePatterns: []string{"*.bak"},
	}
	opts.setDefaults()

	assert.False(t, opts.IgnoreHidden)
	assert.Equal(t, 200*time.Millisecond, opts.SettleDelay)
	assert.Equal(t, []string{"*.bak"}, opts.IgnorePatterns)
}

func TestOptions_ShouldIgnore(t *testing.T) {
	opts := Options{
		IgnoreHidden:   true,
		IgnorePatterns: []string{"*.tmp", ".DS_Store", "*.bak"},
	}
	opts.setDefaults()

	tests := []struct {
		name   string
		path   string
		expect bool
	}{
		{"hidden file", "/path/.hidden", true},
		{"hidden directory", "/path/.git/config", true},
		{"DS_Store", "/path/.DS_Store", true},
		{"tmp file", "/path/file.tmp", true},
		{"bak file", "/path/file.bak", true},
		{"normal file", "/path/file.m4b", false},
		{"normal path", "/path/to/file.mp3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, opts.shouldIgnore(tt.path))
		})
	}
}

func TestOptions_ShouldIgnore_NoIgnoreHidden(t *testing.T) {
	opts := Options{IgnorePatterns: []string{}}
	opts.setDefaults()

	assert.False(t, opts.shouldIgnore("/path/.hidden"))
	assert.False(t, opts.shouldIgnore("/path/file.m4b"))
}

func TestOptions_Accepts(t *testing.T) {
	opts := Options{}
	assert.True(t, opts.accepts("/any/file.txt"))

	opts.Filter = func(path string) bool { return filepath.Ext(path) == ".mp3" }
	assert.True(t, opts.accepts("/book/1.mp3"))
	assert.False(t, opts.accepts("/book/cover.jpg"))
}

func TestEventType_String(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventAdded, "added"},
		{EventModified, "modified"},
		{EventRemoved, "removed"},
		{EventType(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.String())
		})
	}
}
