package cli

import (
	"github.com/spf13/cobra"

	"markbind/internal/domain"
)

func newFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields FILE DATASET",
		Short: "List a dataset's bindable fields",
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
			fields := domain.InferSchema(rows)

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), fields)
			}
			table := make([][]string, 0, len(fields))
			for _, f := range fields {
				table = append(table, []string{f.Name, string(f.MType)})
			}
			return printTable(cmd.OutOrStdout(), []string{"name", "type"}, table)
		},
	}
}
