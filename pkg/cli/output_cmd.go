package cli

import (
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"markbind/internal/domain"
)

func newOutputCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "output FILE DATASET",
		Short: "Print a dataset's rows after its transforms",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			ds, err := resolveDataset(doc, args[1])
			if err != nil {
				return err
			}
			rows, err := doc.Output(ds.ID)
			if err != nil {
				return err
			}
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}

			if getOutputFormat(cmd) == "json" {
				if rows == nil {
					rows = []domain.Row{}
				}
				return printJSON(cmd.OutOrStdout(), rows)
			}
			columns := rowColumns(rows)
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				line := make([]string, len(columns))
				for i, c := range columns {
					line[i] = formatValue(r[c])
				}
				table = append(table, line)
			}
			return printTable(cmd.OutOrStdout(), columns, table)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Print at most this many rows (0 prints all)")
	return cmd
}

// rowColumns returns the sorted union of the rows' keys.
func rowColumns(rows []domain.Row) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
