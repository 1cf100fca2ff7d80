package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "roots",
		Short: "Show the configured library roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			roots := cfg.Library.Roots
			if jsonOut {
				return writeJSON(cmd, roots)
			}
			if len(roots) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No library roots configured")
				return nil
			}

			rows := make([][]string, 0, len(roots))
			for _, r := range roots {
				status := "ok"
				if _, err := os.Stat(r.Path); err != nil {
					status = "missing"
					if !os.IsNotExist(err) {
						status = "unreadable"
					}
				}
				rows = append(rows, []string{r.ID, string(r.Kind), r.Path, status})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Kind", "Path", "Status"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}
