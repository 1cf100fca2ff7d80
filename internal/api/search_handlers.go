package api

import (
	"net/http"
	"strconv"

	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/http/response"
	"github.com/voiceapp/voice-scanner/internal/search"
)

// handleSearch runs a full-text query over the catalog.
// Query: q, root_id, include_inactive, sort, desc, limit, offset.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		response.Error(w, http.StatusServiceUnavailable, "search index not configured", s.logger)
		return
	}
	params, err := parseSearchParams(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if err := s.validator.Validate(params); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	result, err := s.index.Search(r.Context(), params)
	if err != nil {
		s.logger.Error("Search failed", "error", err, "query", params.Query)
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, result, s.logger)
}

func parseSearchParams(r *http.Request) (search.Params, error) {
	q := r.URL.Query()
	params := search.DefaultParams()
	params.Query = q.Get("q")
	params.RootID = q.Get("root_id")
	if v := q.Get("sort"); v != "" {
		params.SortBy = v
	}

	invalid := make(map[string]string)
	var err error
	if params.IncludeInactive, err = parseBool(q.Get("include_inactive")); err != nil {
		invalid["include_inactive"] = "must be true or false"
	}
	if params.Desc, err = parseBool(q.Get("desc")); err != nil {
		invalid["desc"] = "must be true or false"
	}
	for name, dest := range map[string]*int{"limit": &params.Limit, "offset": &params.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			invalid[name] = "must be a number"
			continue
		}
		*dest = n
	}

	if len(invalid) > 0 {
		return params, errors.ValidationWithDetails("invalid query", invalid)
	}
	return params, nil
}
