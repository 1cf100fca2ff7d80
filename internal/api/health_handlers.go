package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/voiceapp/voice-scanner/internal/http/response"
)

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// handleHealthCheck reports the health of the catalog, the search index and
// the scanner. It answers 503 when a component is unhealthy.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	components := map[string]ComponentHealth{
		"catalog": s.checkCatalog(r.Context()),
		"search":  s.checkSearchIndex(),
		"scanner": {Status: "healthy", Message: s.scanner.State().String()},
	}

	overall := "healthy"
	for _, c := range components {
		switch {
		case c.Status == "unhealthy":
			overall = "unhealthy"
		case c.Status == "degraded" && overall == "healthy":
			overall = "degraded"
		}
	}

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, HealthResponse{Status: overall, Components: components}, s.logger)
}

func (s *Server) checkCatalog(ctx context.Context) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	contents, err := s.catalog.AllBookContents(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{Status: "unhealthy", Latency: latency.String(), Message: err.Error()}
	}
	return ComponentHealth{Status: "healthy", Latency: latency.String(), Message: strconv.Itoa(len(contents)) + " books"}
}

func (s *Server) checkSearchIndex() ComponentHealth {
	if s.index == nil {
		return ComponentHealth{Status: "degraded", Message: "search index not configured"}
	}
	start := time.Now()
	count, err := s.index.DocumentCount()
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{Status: "degraded", Latency: latency.String(), Message: err.Error()}
	}
	return ComponentHealth{Status: "healthy", Latency: latency.String(), Message: strconv.FormatUint(count, 10) + " documents"}
}
