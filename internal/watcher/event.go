package watcher

import "time"

// EventType represents the type of file system event.
type EventType int

const (
	// EventAdded is emitted when a file has appeared and stopped changing,
	// or when a directory appears below a watched root.
	EventAdded EventType = iota
	// EventModified is emitted when an existing file has changed and settled.
	EventModified
	// EventRemoved is emitted when a file or directory is deleted or moved away.
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a settled change below a watched root.
type Event struct {
	ModTime time.Time
	Path    string
	Size    int64
	Type    EventType
	IsDir   bool
}
