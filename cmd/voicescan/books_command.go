package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/voiceapp/voice-scanner/internal/api"
	"github.com/voiceapp/voice-scanner/internal/di/providers"
	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/natural"
	"github.com/voiceapp/voice-scanner/internal/store"
)

func newBooksCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var includeInactive bool
	var rootID string

	cmd := &cobra.Command{
		Use:   "books [ID]",
		Short: "List the catalog, or show one book with its chapters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withContainer(func(i do.Injector) error {
				catalog := do.MustInvoke[*providers.CatalogHandle](i)

				if len(args) == 1 {
					book, err := store.LoadBook(cmd.Context(), catalog, args[0])
					if err != nil {
						return err
					}
					if jsonOut {
						return writeJSON(cmd, api.BookDetail{BookSummary: api.NewBookSummary(book), Chapters: book.Chapters})
					}
					printBook(cmd.OutOrStdout(), book)
					return nil
				}

				books, err := store.LoadBooks(cmd.Context(), catalog, includeInactive)
				if err != nil {
					return err
				}
				list := api.BookList{Books: make([]api.BookSummary, 0, len(books))}
				for _, b := range books {
					if rootID != "" && b.Content.RootID != rootID {
						continue
					}
					list.Books = append(list.Books, api.NewBookSummary(b))
				}
				slices.SortFunc(list.Books, func(a, b api.BookSummary) int {
					if c := natural.Compare(a.Name, b.Name); c != 0 {
						return c
					}
					return natural.Compare(a.ID, b.ID)
				})
				list.Total = len(list.Books)

				if jsonOut {
					return writeJSON(cmd, list)
				}
				printBookList(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&includeInactive, "inactive", false, "Include books whose files are gone")
	cmd.Flags().StringVar(&rootID, "root", "", "Only list books of this root")

	return cmd
}

func printBookList(w io.Writer, list api.BookList) {
	if list.Total == 0 {
		fmt.Fprintln(w, "No books in the catalog")
		return
	}
	rows := make([][]string, 0, len(list.Books))
	for _, b := range list.Books {
		rows = append(rows, []string{
			b.ID,
			truncate(b.Name, 48),
			truncate(b.Author, 24),
			b.RootID,
			strconv.Itoa(b.ChapterCount),
			formatDuration(b.DurationMs),
			yesNo(b.Active),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Name", "Author", "Root", "Chapters", "Duration", "Active"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(w, "%d books\n", list.Total)
}

func printBook(w io.Writer, book *domain.Book) {
	c := book.Content
	fmt.Fprintf(w, "%s\n", c.Name)
	if c.Author != "" {
		fmt.Fprintf(w, "  Author:   %s\n", c.Author)
	}
	fmt.Fprintf(w, "  ID:       %s\n", c.ID)
	fmt.Fprintf(w, "  Root:     %s\n", c.RootID)
	fmt.Fprintf(w, "  URI:      %s\n", c.URI)
	fmt.Fprintf(w, "  Active:   %s\n", yesNo(c.IsActive))
	fmt.Fprintf(w, "  Duration: %s\n", formatDuration(book.DurationMs()))

	rows := make([][]string, 0, len(book.Chapters))
	for n, ch := range book.Chapters {
		marker := ""
		if ch.ID == c.CurrentChapter {
			marker = "> " + formatDuration(c.PositionInChapter)
		}
		names := make([]string, 0, len(ch.Marks))
		for _, m := range ch.Marks {
			names = append(names, m.Name)
		}
		rows = append(rows, []string{
			strconv.Itoa(n + 1),
			truncate(ch.Name, 40),
			formatDuration(ch.DurationMs),
			strconv.Itoa(len(ch.Marks)),
			truncate(strings.Join(names, ", "), 40),
			yesNo(ch.Degraded),
			marker,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"#", "Chapter", "Duration", "Marks", "Mark names", "Degraded", "Position"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	))
}
