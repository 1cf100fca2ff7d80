package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/ratelimit"
	"github.com/voiceapp/voice-scanner/internal/scanner"
	"github.com/voiceapp/voice-scanner/internal/search"
	"github.com/voiceapp/voice-scanner/internal/store"
)

type fakeScanner struct {
	mu      sync.Mutex
	state   scanner.State
	last    *scanner.ScanResult
	err     error
	scanned chan scanner.ScanOptions
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{scanned: make(chan scanner.ScanOptions, 4)}
}

func (f *fakeScanner) Scan(_ context.Context, opts scanner.ScanOptions) (*scanner.ScanResult, error) {
	f.scanned <- opts
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.last, nil
}

func (f *fakeScanner) State() scanner.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeScanner) LastResult() *scanner.ScanResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type envelope struct {
	Data    json.RawMessage   `json:"data"`
	Details map[string]string `json:"details"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Success bool              `json:"success"`
}

type testEnv struct {
	server  *Server
	scanner *fakeScanner
}

func seed(t *testing.T, cat *store.Store) {
	t.Helper()
	added := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	b := &store.Batch{}
	for _, ch := range []domain.Chapter{
		{ID: "c1", Name: "Opening", URI: "file:///lib/b10/1.mp3", DurationMs: 1000},
		{ID: "c2", Name: "Closing", URI: "file:///lib/b10/2.mp3", DurationMs: 2000},
		{ID: "c3", Name: "Arrakis", URI: "file:///lib/b2/1.mp3", DurationMs: 500},
		{ID: "c4", Name: "Gone", URI: "file:///lib/old/1.mp3", DurationMs: 100},
		{ID: "c5", Name: "Mouse", URI: "file:///kids/g/1.mp3", DurationMs: 300},
	} {
		b.UpsertChapter(&ch)
	}
	for _, bc := range []domain.BookContent{
		{ID: "b10", RootID: "main", Name: "Book 10", Author: "Ann", Chapters: []string{"c1", "c2"}, CurrentChapter: "c2", PositionInChapter: 700, IsActive: true, AddedAt: added},
		{ID: "b2", RootID: "main", Name: "Book 2", Author: "Frank Herbert", Chapters: []string{"c3"}, CurrentChapter: "c3", IsActive: true, AddedAt: added},
		{ID: "old", RootID: "main", Name: "Old", Chapters: []string{"c4"}, CurrentChapter: "c4", AddedAt: added},
		{ID: "g", RootID: "kids", Name: "Gruffalo", Chapters: []string{"c5"}, CurrentChapter: "c5", IsActive: true, AddedAt: added},
	} {
		b.UpsertContent(&bc)
	}
	require.NoError(t, cat.Commit(t.Context(), b))
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	cat, err := store.New("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	seed(t, cat)

	index, err := search.New(search.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	require.NoError(t, search.NewIndexer(index, cat, nil).Reindex(t.Context()))

	sc := newFakeScanner()
	return &testEnv{
		server:  NewServer(t.Context(), cat, sc, index, opts, nil),
		scanner: sc,
	}
}

func (e *testEnv) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	w, res := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	health := decodeData[HealthResponse](t, res)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "4 books", health.Components["catalog"].Message)
	assert.Equal(t, "4 documents", health.Components["search"].Message)
	assert.Equal(t, "idle", health.Components["scanner"].Message)
}

func TestListBooks(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"active in natural order", "", []string{"b2", "b10", "g"}},
		{"with inactive", "?include_inactive=true", []string{"b2", "b10", "g", "old"}},
		{"by root", "?root_id=kids", []string{"g"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, res := env.do(t, http.MethodGet, "/api/v1/books"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)

			list := decodeData[BookList](t, res)
			ids := make([]string, len(list.Books))
			for i, b := range list.Books {
				ids[i] = b.ID
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, len(tt.want), list.Total)
		})
	}
}

func TestListBooks_Summary(t *testing.T) {
	env := newTestEnv(t, Options{})

	_, res := env.do(t, http.MethodGet, "/api/v1/books")
	list := decodeData[BookList](t, res)
	require.Len(t, list.Books, 3)

	b := list.Books[1]
	assert.Equal(t, "Book 10", b.Name)
	assert.Equal(t, "Ann", b.Author)
	assert.Equal(t, uint64(3000), b.DurationMs)
	assert.Equal(t, 2, b.ChapterCount)
	assert.Equal(t, "c2", b.CurrentChapter)
	assert.Equal(t, uint64(700), b.PositionInChapter)
	assert.True(t, b.Active)
}

func TestListBooks_InvalidQuery(t *testing.T) {
	env := newTestEnv(t, Options{})

	w, res := env.do(t, http.MethodGet, "/api/v1/books?include_inactive=maybe")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", res.Code)
	assert.Contains(t, res.Details, "include_inactive")
}

func TestGetBook(t *testing.T) {
	env := newTestEnv(t, Options{})

	w, res := env.do(t, http.MethodGet, "/api/v1/books/b10")
	require.Equal(t, http.StatusOK, w.Code)

	book := decodeData[BookDetail](t, res)
	assert.Equal(t, "b10", book.ID)
	require.Len(t, book.Chapters, 2)
	assert.Equal(t, "Opening", book.Chapters[0].Name)
	assert.Equal(t, "Closing", book.Chapters[1].Name)
}

func TestGetBook_NotFound(t *testing.T) {
	env := newTestEnv(t, Options{})

	w, res := env.do(t, http.MethodGet, "/api/v1/books/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, res.Success)
	assert.Equal(t, "NOT_FOUND", res.Code)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, Options{})

	w, res := env.do(t, http.MethodGet, "/api/v1/search?q=herbert")
	require.Equal(t, http.StatusOK, w.Code)

	result := decodeData[search.Result](t, res)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "b2", result.Hits[0].ID)

	_, res = env.do(t, http.MethodGet, "/api/v1/search?q=gone&include_inactive=true")
	result = decodeData[search.Result](t, res)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "old", result.Hits[0].ID)
}

func TestSearch_InvalidParams(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"limit not a number", "?limit=abc", "limit"},
		{"limit too large", "?limit=500", "limit"},
		{"unknown sort", "?sort=random", "sort"},
		{"bad bool", "?desc=sideways", "desc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, res := env.do(t, http.MethodGet, "/api/v1/search"+tt.query)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION", res.Code)
			assert.Contains(t, res.Details, tt.field)
		})
	}
}

func TestTriggerScan_Wait(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.scanner.last = &scanner.ScanResult{
		ScanID: "scan_1",
		Added:  2,
		Errors: []scanner.ScanError{{Path: "/lib/bad.mp3", Phase: scanner.PhaseAnalyzing, Err: errors.Parsef("bad header")}},
	}

	w, res := env.do(t, http.MethodPost, "/api/v1/scan?wait=true")
	require.Equal(t, http.StatusOK, w.Code)

	result := decodeData[ScanResultResponse](t, res)
	assert.Equal(t, "scan_1", result.ScanID)
	assert.Equal(t, 2, result.Added)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad header", result.Errors[0].Error)
	assert.Equal(t, string(scanner.PhaseAnalyzing), result.Errors[0].Phase)

	assert.False(t, (<-env.scanner.scanned).RestartIfScanning)
}

func TestTriggerScan_WaitConflict(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.scanner.err = errors.ErrScanInProgress

	w, res := env.do(t, http.MethodPost, "/api/v1/scan?wait=true")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SCAN_IN_PROGRESS", res.Code)
}

func TestTriggerScan_Background(t *testing.T) {
	env := newTestEnv(t, Options{})

	w, res := env.do(t, http.MethodPost, "/api/v1/scan")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "scan started", res.Message)

	select {
	case opts := <-env.scanner.scanned:
		assert.False(t, opts.RestartIfScanning)
	case <-time.After(time.Second):
		t.Fatal("scan not started")
	}
}

func TestTriggerScan_Busy(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.scanner.state = scanner.StateScanning

	w, res := env.do(t, http.MethodPost, "/api/v1/scan")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SCAN_IN_PROGRESS", res.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/scan?restart=true")
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case opts := <-env.scanner.scanned:
		assert.True(t, opts.RestartIfScanning)
	case <-time.After(time.Second):
		t.Fatal("scan not restarted")
	}
}

func TestScanStatus(t *testing.T) {
	env := newTestEnv(t, Options{})

	_, res := env.do(t, http.MethodGet, "/api/v1/scan")
	status := decodeData[ScanStatus](t, res)
	assert.Equal(t, "idle", status.State)
	assert.Nil(t, status.Last)

	env.scanner.last = &scanner.ScanResult{ScanID: "scan_2", Committed: true}
	_, res = env.do(t, http.MethodGet, "/api/v1/scan")
	status = decodeData[ScanStatus](t, res)
	require.NotNil(t, status.Last)
	assert.Equal(t, "scan_2", status.Last.ScanID)
	assert.True(t, status.Last.Committed)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Options{AllowedOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/books", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/books", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTriggerScan_RateLimited(t *testing.T) {
	limiter := ratelimit.New(0.001, 2, time.Minute)
	t.Cleanup(limiter.Stop)
	env := newTestEnv(t, Options{ScanLimiter: limiter})
	env.scanner.last = &scanner.ScanResult{ScanID: "scan-1"}

	for range 2 {
		w, _ := env.do(t, http.MethodPost, "/api/v1/scan?wait=true")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, body := env.do(t, http.MethodPost, "/api/v1/scan?wait=true")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too many scan requests", body.Error)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w, _ = env.do(t, http.MethodGet, "/api/v1/scan")
	assert.Equal(t, http.StatusOK, w.Code, "status reads are not limited")
}
