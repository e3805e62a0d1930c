package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"markbind/internal/binding"
	"markbind/internal/compiler"
	"markbind/internal/domain"
	"markbind/internal/reconcile"
)

func newBindCmd() *cobra.Command {
	var (
		dataset   string
		field     string
		mtype     string
		aggregate string
		bin       bool
		mark      string
		property  string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "bind FILE",
		Short: "Bind a dataset field to a mark property",
		Long: `Binds a dataset field to a visual property of a mark, reconciles the
document's datasets, scales, guides and marks, and writes the document back.

Datasets and marks may be named by id or by unique name. When --type is
omitted it is inferred from the dataset's values.`,
		Example: `  bindctl bind chart.yaml --dataset observations --field city --mark bars --property x
  bindctl bind chart.yaml --dataset observations --field sum_temp --type quantitative --mark bars --property y`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			doc, err := loadDocument(path)
			if err != nil {
				return err
			}
			ds, err := resolveDataset(doc, dataset)
			if err != nil {
				return err
			}
			m, err := resolveMark(doc, mark)
			if err != nil {
				return err
			}

			fs := domain.FieldSchema{Name: field, MType: domain.MType(mtype), Aggregate: aggregate, Bin: bin}
			if fs.MType == "" {
				rows, err := doc.Output(ds.ID)
				if err != nil {
					return err
				}
				inferred, ok := inferFieldType(rows, field)
				if !ok {
					return domain.ErrValidation("cannot infer the type of field %q; pass --type", field)
				}
				fs.MType = inferred
			}

			logger := newLogger(cmd)
			binder, err := binding.NewBinder(reconcile.New(logger), compiler.Compile, compiler.AggregateOps, logger)
			if err != nil {
				return err
			}
			if err := binder.Bind(cmd.Context(), doc, domain.BindRequest{
				DatasetID: ds.ID,
				Field:     fs,
				MarkID:    m.ID,
				Property:  property,
			}); err != nil {
				return err
			}
			tx, ok := doc.LastTransaction()
			if !ok {
				return fmt.Errorf("binding committed no transaction")
			}

			if !dryRun {
				if err := saveDocument(path, doc); err != nil {
					return err
				}
			}

			if getOutputFormat(cmd) == "json" {
				return FormatJSON(cmd.OutOrStdout(), tx)
			}
			FormatText(cmd.OutOrStdout(), tx, !useColor(cmd))
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "Dry run: document not written.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset id or name")
	cmd.Flags().StringVar(&field, "field", "", "Field name")
	cmd.Flags().StringVar(&mtype, "type", "", "Measurement type (nominal, ordinal, quantitative, temporal)")
	cmd.Flags().StringVar(&aggregate, "aggregate", "", "Aggregate operator applied to the field")
	cmd.Flags().BoolVar(&bin, "bin", false, "Bin the field")
	cmd.Flags().StringVar(&mark, "mark", "", "Mark id or name")
	cmd.Flags().StringVar(&property, "property", "", "Mark property to bind (x, y, fill, ...)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the changes without writing the document")
	for _, name := range []string{"dataset", "field", "mark", "property"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// inferFieldType looks a field up in the schema inferred from rows.
func inferFieldType(rows []domain.Row, field string) (domain.MType, bool) {
	for _, f := range domain.InferSchema(rows) {
		if f.Name == field {
			return f.MType, true
		}
	}
	return "", false
}
