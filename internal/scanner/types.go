package scanner

import (
	"time"

	"github.com/voiceapp/voice-scanner/internal/container"
	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/fsys"
)

// State is the reconciler's position in a pass.
type State int

// A pass moves Idle -> Scanning -> Committing -> Idle.
const (
	StateIdle State = iota
	StateScanning
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// ScanResult represents the outcome of one pass.
type ScanResult struct {
	StartedAt   time.Time
	CompletedAt time.Time
	ScanID      string
	Errors      []ScanError
	// Changed lists the ids of books that were added, updated or deactivated.
	Changed     []string
	Books       int
	Added       int
	Updated     int
	Deactivated int
	Files       int
	Reused      int
	Parsed      int
	Renamed     int
	Degraded    int
	Pruned      int
	Committed   bool
}

// ScanError represents a file or root that could not be scanned.
type ScanError struct {
	Time   time.Time
	Err    error
	RootID string
	Path   string
	Phase  ScanPhase
}

// Progress tracks scan progress.
type Progress struct {
	Phase       ScanPhase
	CurrentItem string
	ScanID      string
	Current     int
	Total       int
	Errors      int
}

// ScanPhase represents the current scan phase.
type ScanPhase string

// ScanPhase constants define the phases of a pass.
const (
	PhaseWalking    ScanPhase = "walking"
	PhaseGrouping   ScanPhase = "grouping"
	PhaseAnalyzing  ScanPhase = "analyzing"
	PhaseMerging    ScanPhase = "merging"
	PhaseCommitting ScanPhase = "committing"
	PhaseComplete   ScanPhase = "complete"
)

// WalkResult is one audio file found below a root, or the error that ended
// the walk.
type WalkResult struct {
	Error  error
	File   fsys.Handle
	RootID string
	// RelPath is slash separated and relative to the root.
	RelPath string
}

// Candidate is a book as grouped from the files of one root.
type Candidate struct {
	RootID string
	// Key is the path of the book relative to its root: a file, a folder
	// or "." for the root itself.
	Key  string
	URI  string
	Name string
	// Files are in natural order of their relative paths.
	Files []WalkResult
}

// fileState is the chapter resolution of one candidate file.
type fileState struct {
	file    WalkResult
	chapter *domain.Chapter
	meta    *container.Metadata
	// renamedFrom is the id the chapter was stored under before its file
	// was renamed.
	renamedFrom string
	parse       bool
}
