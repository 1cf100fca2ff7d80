package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/voiceapp/voice-scanner/internal/api"
	"github.com/voiceapp/voice-scanner/internal/di/providers"
	"github.com/voiceapp/voice-scanner/internal/notify"
	"github.com/voiceapp/voice-scanner/internal/scanner"
	"github.com/voiceapp/voice-scanner/internal/search"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var skipIndex bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the library roots once and update the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withContainer(func(i do.Injector) error {
				sc := do.MustInvoke[*providers.ScannerHandle](i)
				if len(sc.Roots()) == 0 {
					return errors.New("no library roots configured; set --roots-file or --audiobook-path")
				}

				opts := scanner.ScanOptions{Wait: true}
				showProgress := !jsonOut && isTerminal(cmd.ErrOrStderr())
				if showProgress {
					opts.OnProgress = progressPrinter(cmd.ErrOrStderr())
				}

				result, err := sc.Scan(cmd.Context(), opts)
				if showProgress {
					fmt.Fprintln(cmd.ErrOrStderr())
				}
				if err != nil {
					return err
				}

				if !skipIndex {
					if err := updateSearchIndex(cmd.Context(), i, result); err != nil {
						do.MustInvoke[*slog.Logger](i).Warn("Search index not updated", "error", err)
					}
				}

				if jsonOut {
					return writeJSON(cmd, api.NewScanResultResponse(result))
				}
				printScanResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the result as JSON")
	cmd.Flags().BoolVar(&skipIndex, "skip-index", false, "Leave the search index untouched")

	return cmd
}

// progressPrinter rewrites a single status line on w.
func progressPrinter(w io.Writer) func(scanner.Progress) {
	return func(p scanner.Progress) {
		if p.Total > 0 {
			fmt.Fprintf(w, "\r\033[K%-10s %d/%d", p.Phase, p.Current, p.Total)
			return
		}
		fmt.Fprintf(w, "\r\033[K%-10s %s", p.Phase, truncate(p.CurrentItem, 60))
	}
}

// updateSearchIndex applies the books a pass changed to the search index.
func updateSearchIndex(ctx context.Context, i do.Injector, result *scanner.ScanResult) error {
	if len(result.Changed) == 0 {
		return nil
	}
	index, err := do.Invoke[*providers.SearchIndexHandle](i)
	if err != nil {
		return err
	}
	catalog := do.MustInvoke[*providers.CatalogHandle](i)
	indexer := search.NewIndexer(index.Index, catalog, do.MustInvoke[*slog.Logger](i))

	ev := notify.CatalogChanged{
		At:          result.CompletedAt,
		ScanID:      result.ScanID,
		Books:       result.Changed,
		Added:       result.Added,
		Updated:     result.Updated,
		Deactivated: result.Deactivated,
	}
	if err := indexer.Apply(ctx, ev); err != nil {
		return indexer.Reindex(ctx)
	}
	return nil
}

func printScanResult(w io.Writer, result *scanner.ScanResult) {
	elapsed := result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(w, "Scan %s finished in %s\n", result.ScanID, elapsed)
	if !result.Committed {
		fmt.Fprintln(w, "Catalog unchanged")
	}

	counts := []struct {
		label string
		value int
	}{
		{"Books", result.Books},
		{"Files", result.Files},
		{"Added", result.Added},
		{"Updated", result.Updated},
		{"Deactivated", result.Deactivated},
		{"Parsed", result.Parsed},
		{"Reused", result.Reused},
		{"Renamed", result.Renamed},
		{"Degraded", result.Degraded},
		{"Pruned", result.Pruned},
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.label, strconv.Itoa(c.value)})
	}
	fmt.Fprintln(w, renderTable([]string{"Count", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(result.Errors) == 0 {
		return
	}
	rows = rows[:0]
	for _, e := range result.Errors {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		rows = append(rows, []string{string(e.Phase), e.RootID, truncate(e.Path, 60), truncate(msg, 80)})
	}
	fmt.Fprintf(w, "\n%d errors\n", len(result.Errors))
	fmt.Fprintln(w, renderTable([]string{"Phase", "Root", "Path", "Error"}, rows, nil))
}
