package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceapp/voice-scanner/internal/errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var result Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"id": "123"}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	result := decode(t, w)
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"id": "123"}, result.Data)
	assert.Empty(t, result.Error)
}

func TestJSON_StatusBoundary(t *testing.T) {
	tests := []struct {
		status  int
		success bool
	}{
		{200, true},
		{202, true},
		{399, true},
		{400, false},
		{404, false},
		{500, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, tt.status, nil, nil)
			assert.Equal(t, tt.success, decode(t, w).Success)
		})
	}
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	Accepted(w, "scan started", nil)

	assert.Equal(t, http.StatusAccepted, w.Code)
	result := decode(t, w)
	assert.True(t, result.Success)
	assert.Equal(t, "scan started", result.Message)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "invalid input", nil) }, http.StatusBadRequest, "invalid input"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no such book", nil) }, http.StatusNotFound, "no such book"},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "boom", nil) }, http.StatusInternalServerError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			result := decode(t, w)
			assert.False(t, result.Success)
			assert.Nil(t, result.Data)
			assert.Equal(t, tt.msg, result.Error)
		})
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
		details any
	}{
		{
			name:    "not found",
			err:     errors.NotFoundf("book %s not found", "b1"),
			status:  http.StatusNotFound,
			code:    "NOT_FOUND",
			message: "book b1 not found",
		},
		{
			name:    "wrapped validation with details",
			err:     fmt.Errorf("parse query: %w", errors.ValidationWithDetails("invalid query", map[string]string{"limit": "must be at most 100"})),
			status:  http.StatusBadRequest,
			code:    "VALIDATION",
			message: "invalid query",
			details: map[string]any{"limit": "must be at most 100"},
		},
		{
			name:    "scan in progress",
			err:     errors.ErrScanInProgress,
			status:  http.StatusConflict,
			code:    "SCAN_IN_PROGRESS",
			message: "scan already in progress",
		},
		{
			name:    "internal hides message",
			err:     errors.Internalf("badger exploded"),
			status:  http.StatusInternalServerError,
			code:    "INTERNAL",
			message: "internal server error",
		},
		{
			name:    "plain error",
			err:     fmt.Errorf("disk on fire"),
			status:  http.StatusInternalServerError,
			code:    "INTERNAL",
			message: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, nil)

			assert.Equal(t, tt.status, w.Code)
			result := decode(t, w)
			assert.False(t, result.Success)
			assert.Equal(t, tt.code, result.Code)
			assert.Equal(t, tt.message, result.Error)
			assert.Equal(t, tt.details, result.Details)
		})
	}
}

func TestEnvelope_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(Envelope{Success: true, Data: "test"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":"test"}`, string(data))

	data, err = json.Marshal(Envelope{Error: "failed", Code: "PARSE"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"failed","code":"PARSE"}`, string(data))
}
