package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

func newDirectoryCommand(ctx *commandContext) *cobra.Command {
	kinds := make([]string, 0, 3)
	for _, kind := range store.DirectoryKinds() {
		kinds = append(kinds, string(kind))
	}
	return &cobra.Command{
		Use:       "directory <kind>",
		Short:     "List a reference table (" + strings.Join(kinds, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCommands(func(c api.Commands) error {
				entries, err := c.Directory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No entries")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.ID, 10),
						displayName(entry.Name),
						dash(displayName(entry.Group)),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Name", "Group"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
