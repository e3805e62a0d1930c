package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var showChanges bool

	cmd := &cobra.Command{
		Use:   "history FILE",
		Short: "List the document's committed transactions, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), doc.History)
			}
			if showChanges {
				for i := range doc.History {
					FormatText(cmd.OutOrStdout(), &doc.History[i], !useColor(cmd))
				}
				return nil
			}
			table := make([][]string, 0, len(doc.History))
			for _, tx := range doc.History {
				table = append(table, []string{
					tx.ID,
					tx.Label,
					strconv.Itoa(len(tx.Changes)),
					tx.CommittedAt.Format(time.RFC3339),
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"id", "label", "changes", "committed"}, table)
		},
	}

	cmd.Flags().BoolVar(&showChanges, "changes", false, "Print every transaction's changes")
	return cmd
}
