package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/voiceapp/voice-scanner/internal/container"
	"github.com/voiceapp/voice-scanner/internal/domain"
)

// fileReport is the JSON form of one inspected file.
type fileReport struct {
	Path       string               `json:"path"`
	Format     string               `json:"format"`
	Title      string               `json:"title,omitempty"`
	Album      string               `json:"album,omitempty"`
	Artist     string               `json:"artist,omitempty"`
	Marks      []domain.ChapterMark `json:"marks"`
	DurationMs uint64               `json:"duration_ms"`
	Degraded   bool                 `json:"degraded"`
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Read the chapter marks and duration of audio files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withContainer(func(i do.Injector) error {
				dispatcher := do.MustInvoke[*container.Dispatcher](i)

				reports := make([]fileReport, 0, len(args))
				for _, path := range args {
					report, err := inspectFile(cmd, dispatcher, path)
					if err != nil {
						return err
					}
					reports = append(reports, report)
				}

				if jsonOut {
					return writeJSON(cmd, reports)
				}
				for n, r := range reports {
					if n > 0 {
						fmt.Fprintln(cmd.OutOrStdout())
					}
					printReport(cmd.OutOrStdout(), r)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func inspectFile(cmd *cobra.Command, dispatcher *container.Dispatcher, path string) (fileReport, error) {
	f, err := os.Open(path) //#nosec G304 -- inspecting user supplied files is the point
	if err != nil {
		return fileReport{}, err
	}
	defer f.Close()

	meta, err := dispatcher.Extract(cmd.Context(), f, path)
	if err != nil {
		return fileReport{}, fmt.Errorf("inspect %s: %w", path, err)
	}

	marks := meta.Marks
	if marks == nil {
		marks = []domain.ChapterMark{}
	}
	return fileReport{
		Path:       path,
		Format:     string(meta.Format),
		Title:      meta.Title,
		Album:      meta.Album,
		Artist:     meta.Artist,
		Marks:      marks,
		DurationMs: meta.DurationMs,
		Degraded:   meta.Degraded,
	}, nil
}

func printReport(w io.Writer, r fileReport) {
	fmt.Fprintln(w, r.Path)
	fmt.Fprintf(w, "  Format:   %s\n", r.Format)
	for _, field := range []struct{ label, value string }{
		{"Title", r.Title},
		{"Album", r.Album},
		{"Artist", r.Artist},
	} {
		if field.value != "" {
			fmt.Fprintf(w, "  %-9s %s\n", field.label+":", field.value)
		}
	}
	fmt.Fprintf(w, "  Duration: %s\n", formatDuration(r.DurationMs))
	if r.Degraded {
		fmt.Fprintln(w, "  Degraded: container could not be parsed")
	}

	if len(r.Marks) == 0 {
		fmt.Fprintln(w, "  No chapter marks")
		return
	}
	rows := make([][]string, 0, len(r.Marks))
	for n, m := range r.Marks {
		rows = append(rows, []string{strconv.Itoa(n + 1), formatDuration(m.StartMs), strconv.FormatUint(m.StartMs, 10), m.Name})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"#", "Start", "Start (ms)", "Name"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
	))
}
