package api

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/http/response"
	"github.com/voiceapp/voice-scanner/internal/natural"
	"github.com/voiceapp/voice-scanner/internal/store"
)

// BookSummary is a book in list responses.
type BookSummary struct {
	AddedAt           time.Time `json:"added_at"`
	ID                string    `json:"id"`
	RootID            string    `json:"root_id"`
	URI               string    `json:"uri"`
	Name              string    `json:"name"`
	Author            string    `json:"author,omitempty"`
	CurrentChapter    string    `json:"current_chapter"`
	PositionInChapter uint64    `json:"position_in_chapter"`
	DurationMs        uint64    `json:"duration_ms"`
	ChapterCount      int       `json:"chapter_count"`
	Active            bool      `json:"active"`
}

// BookDetail is a book with its chapters.
type BookDetail struct {
	BookSummary
	Chapters []domain.Chapter `json:"chapters"`
}

// BookList is the response of the book listing.
type BookList struct {
	Books []BookSummary `json:"books"`
	Total int           `json:"total"`
}

// NewBookSummary condenses a book for listings.
func NewBookSummary(b *domain.Book) BookSummary {
	return BookSummary{
		ID:                b.Content.ID,
		RootID:            b.Content.RootID,
		URI:               b.Content.URI,
		Name:              b.Content.Name,
		Author:            b.Content.Author,
		AddedAt:           b.Content.AddedAt,
		CurrentChapter:    b.Content.CurrentChapter,
		PositionInChapter: b.Content.PositionInChapter,
		DurationMs:        b.DurationMs(),
		ChapterCount:      len(b.Chapters),
		Active:            b.Content.IsActive,
	}
}

// handleListBooks returns the catalog's books in natural name order.
// Query: root_id filters by root, include_inactive=true adds books whose
// files are gone.
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	includeInactive, err := parseBool(query.Get("include_inactive"))
	if err != nil {
		response.HandleError(w, errors.ValidationWithDetails("invalid query",
			map[string]string{"include_inactive": "must be true or false"}), s.logger)
		return
	}
	rootID := query.Get("root_id")

	books, err := store.LoadBooks(ctx, s.catalog, includeInactive)
	if err != nil {
		s.logger.Error("Failed to list books", "error", err)
		response.HandleError(w, err, s.logger)
		return
	}

	list := BookList{Books: make([]BookSummary, 0, len(books))}
	for _, b := range books {
		if rootID != "" && b.Content.RootID != rootID {
			continue
		}
		list.Books = append(list.Books, NewBookSummary(b))
	}
	slices.SortFunc(list.Books, func(a, b BookSummary) int {
		if c := natural.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return natural.Compare(a.ID, b.ID)
	})
	list.Total = len(list.Books)

	response.Success(w, list, s.logger)
}

// handleGetBook returns a single book with its chapters.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	book, err := store.LoadBook(r.Context(), s.catalog, id)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			s.logger.Error("Failed to get book", "error", err, "id", id)
		}
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, BookDetail{BookSummary: NewBookSummary(book), Chapters: book.Chapters}, s.logger)
}

// parseBool parses an optional boolean query value.
func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
