package notify

import "time"

// CatalogChanged is published after a scan pass committed changes.
type CatalogChanged struct {
	At          time.Time `json:"at"`
	ScanID      string    `json:"scan_id"`
	Books       []string  `json:"books"` // ids of added, updated or deactivated books
	Added       int       `json:"added"`
	Updated     int       `json:"updated"`
	Deactivated int       `json:"deactivated"`
}

// ScanState is published when a pass starts and when it ends.
type ScanState struct {
	At     time.Time `json:"at"`
	ScanID string    `json:"scan_id"`
	Err    string    `json:"error,omitempty"`
	Active bool      `json:"active"`
}
