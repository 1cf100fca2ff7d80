package api

import (
	"context"
	"net/http"
	"time"

	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/http/response"
	"github.com/voiceapp/voice-scanner/internal/scanner"
)

// ScanResultResponse is the JSON form of a finished pass.
type ScanResultResponse struct {
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
	ScanID      string              `json:"scan_id"`
	Errors      []ScanErrorResponse `json:"errors,omitempty"`
	Books       int                 `json:"books"`
	Files       int                 `json:"files"`
	Added       int                 `json:"added"`
	Updated     int                 `json:"updated"`
	Deactivated int                 `json:"deactivated"`
	Parsed      int                 `json:"parsed"`
	Reused      int                 `json:"reused"`
	Renamed     int                 `json:"renamed"`
	Degraded    int                 `json:"degraded"`
	Pruned      int                 `json:"pruned"`
	Committed   bool                `json:"committed"`
}

// ScanErrorResponse is a file or root the pass could not read.
type ScanErrorResponse struct {
	RootID string `json:"root_id,omitempty"`
	Path   string `json:"path,omitempty"`
	Phase  string `json:"phase"`
	Error  string `json:"error"`
}

// ScanStatus reports the scanner state and the last finished pass.
type ScanStatus struct {
	Last  *ScanResultResponse `json:"last,omitempty"`
	State string              `json:"state"`
}

// NewScanResultResponse converts a pass result for JSON output. It returns
// nil for a nil result.
func NewScanResultResponse(r *scanner.ScanResult) *ScanResultResponse {
	if r == nil {
		return nil
	}
	out := &ScanResultResponse{
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		ScanID:      r.ScanID,
		Books:       r.Books,
		Files:       r.Files,
		Added:       r.Added,
		Updated:     r.Updated,
		Deactivated: r.Deactivated,
		Parsed:      r.Parsed,
		Reused:      r.Reused,
		Renamed:     r.Renamed,
		Degraded:    r.Degraded,
		Pruned:      r.Pruned,
		Committed:   r.Committed,
	}
	for _, e := range r.Errors {
		se := ScanErrorResponse{RootID: e.RootID, Path: e.Path, Phase: string(e.Phase)}
		if e.Err != nil {
			se.Error = e.Err.Error()
		}
		out.Errors = append(out.Errors, se)
	}
	return out
}

// handleScanStatus returns the scanner state.
func (s *Server) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, ScanStatus{
		State: s.scanner.State().String(),
		Last:  NewScanResultResponse(s.scanner.LastResult()),
	}, s.logger)
}

// handleTriggerScan starts a pass.
//
// Query: restart=true cancels a running pass and starts over; wait=true
// runs the pass within the request and returns its result. Without wait
// the pass runs in the background and the response is 202, or 409 when
// another pass is running and restart is not set.
func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	restart, err := parseBool(query.Get("restart"))
	if err != nil {
		response.HandleError(w, errors.ValidationWithDetails("invalid query",
			map[string]string{"restart": "must be true or false"}), s.logger)
		return
	}
	wait, err := parseBool(query.Get("wait"))
	if err != nil {
		response.HandleError(w, errors.ValidationWithDetails("invalid query",
			map[string]string{"wait": "must be true or false"}), s.logger)
		return
	}

	opts := scanner.ScanOptions{RestartIfScanning: restart}

	if wait {
		result, err := s.scanner.Scan(r.Context(), opts)
		if err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		response.Success(w, NewScanResultResponse(result), s.logger)
		return
	}

	if !restart && s.scanner.State() != scanner.StateIdle {
		response.HandleError(w, errors.ErrScanInProgress, s.logger)
		return
	}

	go s.backgroundScan(opts)
	response.Accepted(w, "scan started", s.logger)
}

func (s *Server) backgroundScan(opts scanner.ScanOptions) {
	ctx := s.background
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.scanner.Scan(ctx, opts); err != nil {
		switch {
		case errors.Is(err, errors.ErrScanInProgress), errors.Is(err, scanner.ErrRestarted):
			s.logger.Info("background scan not completed", "error", err)
		case ctx.Err() != nil:
		default:
			s.logger.Error("background scan failed", "error", err)
		}
	}
}
