package store

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
)

// Store is a Catalog backed by a Badger database.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New opens the Badger catalog at path. An empty path keeps the whole
// catalog in memory.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logging
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true
		opts.CompactL0OnClose = true
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Info("Badger catalog opened", "path", path, "in_memory", path == "")

	return &Store{db: db, logger: logger}, nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	s.logger.Info("Closing badger catalog")
	return s.db.Close()
}

// AllChapters returns every stored chapter ordered by id.
func (s *Store) AllChapters(ctx context.Context) ([]*domain.Chapter, error) {
	return list[domain.Chapter](ctx, s.db, chapterPrefix)
}

// AllBookContents returns every stored book content ordered by id.
func (s *Store) AllBookContents(ctx context.Context) ([]*domain.BookContent, error) {
	return list[domain.BookContent](ctx, s.db, contentPrefix)
}

// GetBookContent returns the content with the given id.
func (s *Store) GetBookContent(_ context.Context, id string) (*domain.BookContent, error) {
	var bc domain.BookContent
	err := s.db.View(func(txn *badger.Txn) error {
		key := buildKey(contentPrefix, id)
		defer releaseKey(key)
		return get(txn, key, &bc)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.NotFoundf("book %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get book content: %w", err)
	}
	return &bc, nil
}

// Commit applies b in a single transaction. A batch too big for one Badger
// transaction is applied in stages instead: chapter upserts in write
// batches, then every content upsert in one transaction, then the chapter
// deletions. Contents only switch to the new chapters in that middle
// transaction, so a failure leaves at worst unreferenced or refreshed
// chapters behind, which the next pass reuses or prunes.
func (s *Store) Commit(ctx context.Context, b *Batch) error {
	if b.Empty() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := writeChapters(txn.Set, b.Chapters); err != nil {
			return err
		}
		if err := writeContents(txn, b.Contents); err != nil {
			return err
		}
		if err := checkDeletions(b.DeleteChapters, contents(txn)); err != nil {
			return err
		}
		if err := deleteChapters(txn.Delete, b.DeleteChapters); err != nil {
			return err
		}
		return ctx.Err()
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		s.logger.Info("catalog batch exceeds one transaction, committing in stages",
			"operations", b.Len())
		err = s.commitStaged(ctx, b)
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeCommit, "commit catalog")
	}

	s.logger.LogAttrs(ctx, slog.LevelDebug, "catalog committed",
		slog.Int("chapters", len(b.Chapters)),
		slog.Int("books", len(b.Contents)),
		slog.Int("deleted_chapters", len(b.DeleteChapters)),
	)
	return nil
}

// commitStaged applies b in three steps. Deletions are checked against the
// final contents before anything is written.
func (s *Store) commitStaged(ctx context.Context, b *Batch) error {
	if err := s.db.View(func(txn *badger.Txn) error {
		return checkDeletions(b.DeleteChapters, withPending(contents(txn), b.Contents))
	}); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	if err := writeChapters(wb.Set, b.Chapters); err != nil {
		return err
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush chapters: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		if err := writeContents(txn, b.Contents); err != nil {
			return err
		}
		return ctx.Err()
	}); err != nil {
		return err
	}

	if len(b.DeleteChapters) == 0 {
		return nil
	}
	deletes := s.db.NewWriteBatch()
	defer deletes.Cancel()
	if err := deleteChapters(deletes.Delete, b.DeleteChapters); err != nil {
		return err
	}
	if err := deletes.Flush(); err != nil {
		return fmt.Errorf("flush chapter deletions: %w", err)
	}
	return nil
}

func writeChapters(set func(key, value []byte) error, chapters []*domain.Chapter) error {
	for _, ch := range chapters {
		data, err := json.Marshal(ch)
		if err != nil {
			return fmt.Errorf("failed to marshal chapter %s: %w", ch.ID, err)
		}
		if err := set([]byte(chapterPrefix+ch.ID), data); err != nil {
			return fmt.Errorf("chapter %s: %w", ch.ID, err)
		}
	}
	return nil
}

func writeContents(txn *badger.Txn, contents []*domain.BookContent) error {
	for _, bc := range contents {
		if err := set(txn, contentPrefix+bc.ID, bc); err != nil {
			return fmt.Errorf("book %s: %w", bc.ID, err)
		}
	}
	return nil
}

func deleteChapters(del func(key []byte) error, ids []string) error {
	for _, id := range ids {
		if err := del([]byte(chapterPrefix + id)); err != nil {
			return fmt.Errorf("delete chapter %s: %w", id, err)
		}
	}
	return nil
}

func get(txn *badger.Txn, key []byte, dest any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
}

func set(txn *badger.Txn, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return txn.Set([]byte(key), data)
}

// contents iterates the book contents visible inside txn, including its
// own pending writes.
func contents(txn *badger.Txn) iter.Seq[*domain.BookContent] {
	return func(yield func(*domain.BookContent) bool) {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(contentPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var bc domain.BookContent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &bc)
			}); err != nil {
				continue
			}
			if !yield(&bc) {
				return
			}
		}
	}
}

// withPending yields pending followed by the stored contents they do not
// replace.
func withPending(stored iter.Seq[*domain.BookContent], pending []*domain.BookContent) iter.Seq[*domain.BookContent] {
	return func(yield func(*domain.BookContent) bool) {
		replaced := make(map[string]bool, len(pending))
		for _, bc := range pending {
			replaced[bc.ID] = true
			if !yield(bc) {
				return
			}
		}
		for bc := range stored {
			if replaced[bc.ID] {
				continue
			}
			if !yield(bc) {
				return
			}
		}
	}
}

func list[T any](ctx context.Context, db *badger.DB, prefix string) ([]*T, error) {
	var out []*T
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var v T
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
