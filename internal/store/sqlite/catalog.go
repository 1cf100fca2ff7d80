package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/store"
)

var _ store.Catalog = (*Store)(nil)

const chapterColumns = `id, name, uri, file_key, duration_ms, file_size, file_last_modified, marks, degraded`

const contentColumns = `id, root_id, uri, name, author, current_chapter, position_in_chapter, is_active, added_at`

// scanChapter scans a chapter row into a domain.Chapter.
func scanChapter(scanner interface{ Scan(dest ...any) error }) (*domain.Chapter, error) {
	var (
		ch           domain.Chapter
		fileKey      sql.NullString
		durationMs   int64
		lastModified string
		marks        string
		degraded     int
	)
	err := scanner.Scan(&ch.ID, &ch.Name, &ch.URI, &fileKey, &durationMs, &ch.FileSize, &lastModified, &marks, &degraded)
	if err != nil {
		return nil, err
	}

	ch.FileKey = fileKey.String
	ch.DurationMs = uint64(durationMs)
	ch.Degraded = degraded != 0
	if ch.FileLastModified, err = parseTime(lastModified); err != nil {
		return nil, fmt.Errorf("parse file_last_modified: %w", err)
	}
	if err := json.Unmarshal([]byte(marks), &ch.Marks); err != nil {
		return nil, fmt.Errorf("decode marks of chapter %s: %w", ch.ID, err)
	}
	return &ch, nil
}

// scanContent scans a book_contents row. Chapters are loaded separately.
func scanContent(scanner interface{ Scan(dest ...any) error }) (*domain.BookContent, error) {
	var (
		bc       domain.BookContent
		author   sql.NullString
		position int64
		isActive int
		addedAt  string
	)
	err := scanner.Scan(&bc.ID, &bc.RootID, &bc.URI, &bc.Name, &author,
		&bc.CurrentChapter, &position, &isActive, &addedAt)
	if err != nil {
		return nil, err
	}

	bc.Author = author.String
	bc.PositionInChapter = uint64(position)
	bc.IsActive = isActive != 0
	if bc.AddedAt, err = parseTime(addedAt); err != nil {
		return nil, fmt.Errorf("parse added_at: %w", err)
	}
	return &bc, nil
}

// AllChapters returns every stored chapter ordered by id.
func (s *Store) AllChapters(ctx context.Context) ([]*domain.Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chapterColumns+` FROM chapters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*domain.Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

// AllBookContents returns every stored book content ordered by id.
func (s *Store) AllBookContents(ctx context.Context) ([]*domain.BookContent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contentColumns+` FROM book_contents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query book contents: %w", err)
	}
	defer rows.Close()

	var contents []*domain.BookContent
	byID := make(map[string]*domain.BookContent)
	for rows.Next() {
		bc, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		contents = append(contents, bc)
		byID[bc.ID] = bc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	links, err := s.db.QueryContext(ctx,
		`SELECT book_id, chapter_id FROM book_chapters ORDER BY book_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query book chapters: %w", err)
	}
	defer links.Close()

	for links.Next() {
		var bookID, chapterID string
		if err := links.Scan(&bookID, &chapterID); err != nil {
			return nil, err
		}
		if bc, ok := byID[bookID]; ok {
			bc.Chapters = append(bc.Chapters, chapterID)
		}
	}
	return contents, links.Err()
}

// GetBookContent returns the content with the given id.
func (s *Store) GetBookContent(ctx context.Context, id string) (*domain.BookContent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM book_contents WHERE id = ?`, id)
	bc, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundf("book %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get book content: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chapter_id FROM book_chapters WHERE book_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query book chapters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chapterID string
		if err := rows.Scan(&chapterID); err != nil {
			return nil, err
		}
		bc.Chapters = append(bc.Chapters, chapterID)
	}
	return bc, rows.Err()
}

// Commit applies b in a single transaction.
func (s *Store) Commit(ctx context.Context, b *store.Batch) error {
	if b.Empty() {
		return nil
	}
	if err := s.commit(ctx, b); err != nil {
		return errors.Wrap(err, errors.CodeCommit, "commit catalog")
	}

	s.logger.LogAttrs(ctx, slog.LevelDebug, "catalog committed",
		slog.Int("chapters", len(b.Chapters)),
		slog.Int("books", len(b.Contents)),
		slog.Int("deleted_chapters", len(b.DeleteChapters)),
	)
	return nil
}

func (s *Store) commit(ctx context.Context, b *store.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, ch := range b.Chapters {
		if err := upsertChapter(ctx, tx, ch); err != nil {
			return fmt.Errorf("chapter %s: %w", ch.ID, err)
		}
	}
	for _, bc := range b.Contents {
		if err := upsertContent(ctx, tx, bc); err != nil {
			return fmt.Errorf("book %s: %w", bc.ID, err)
		}
	}
	for _, id := range b.DeleteChapters {
		if err := deleteChapter(ctx, tx, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func upsertChapter(ctx context.Context, tx *sql.Tx, ch *domain.Chapter) error {
	marks, err := json.Marshal(ch.Marks)
	if err != nil {
		return fmt.Errorf("encode marks: %w", err)
	}
	if ch.Marks == nil {
		marks = []byte("[]")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chapters (`+chapterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			uri = excluded.uri,
			file_key = excluded.file_key,
			duration_ms = excluded.duration_ms,
			file_size = excluded.file_size,
			file_last_modified = excluded.file_last_modified,
			marks = excluded.marks,
			degraded = excluded.degraded`,
		ch.ID, ch.Name, ch.URI, nullString(ch.FileKey), int64(ch.DurationMs), ch.FileSize,
		formatTime(ch.FileLastModified), string(marks), ch.Degraded,
	)
	return err
}

func upsertContent(ctx context.Context, tx *sql.Tx, bc *domain.BookContent) error {
	isActive := 0
	if bc.IsActive {
		isActive = 1
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO book_contents (`+contentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root_id = excluded.root_id,
			uri = excluded.uri,
			name = excluded.name,
			author = excluded.author,
			current_chapter = excluded.current_chapter,
			position_in_chapter = excluded.position_in_chapter,
			is_active = excluded.is_active,
			added_at = excluded.added_at`,
		bc.ID, bc.RootID, bc.URI, bc.Name, nullString(bc.Author), bc.CurrentChapter,
		int64(bc.PositionInChapter), isActive, formatTime(bc.AddedAt),
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM book_chapters WHERE book_id = ?`, bc.ID); err != nil {
		return fmt.Errorf("clear chapters: %w", err)
	}
	for i, chapterID := range bc.Chapters {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO book_chapters (book_id, position, chapter_id) VALUES (?, ?, ?)`,
			bc.ID, i, chapterID,
		); err != nil {
			return fmt.Errorf("link chapter %s: %w", chapterID, err)
		}
	}
	return nil
}

func deleteChapter(ctx context.Context, tx *sql.Tx, id string) error {
	var bookID string
	err := tx.QueryRowContext(ctx,
		`SELECT book_id FROM book_chapters WHERE chapter_id = ? LIMIT 1`, id).Scan(&bookID)
	switch {
	case err == nil:
		return fmt.Errorf("chapter %s is still referenced by book %s", id, bookID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check chapter %s references: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete chapter %s: %w", id, err)
	}
	return nil
}
