package app

import (
	"context"
	"fmt"
	"log/slog"

	"markbind/internal/domain"
	"markbind/internal/service/document"
	"markbind/internal/store"
)

// seedDemo stores a small weather document with two unbound marks.
// It does nothing once any document exists.
func seedDemo(ctx context.Context, docs *document.DocumentService, logger *slog.Logger) error {
	_, total, err := docs.List(ctx, domain.PageRequest{MaxResults: 1})
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if total > 0 {
		return nil
	}

	doc, err := demoDocument()
	if err != nil {
		return err
	}
	snap, err := docs.Create(ctx, doc)
	if err != nil {
		return fmt.Errorf("create demo document: %w", err)
	}
	logger.Info("seeded demo document", "document", snap.Document.ID, "name", snap.Document.Name)
	return nil
}

func demoDocument() (*store.Document, error) {
	doc := store.New("weather demo")
	pl, err := doc.AddPipeline(domain.Pipeline{Name: "weather"})
	if err != nil {
		return nil, err
	}
	ds, err := doc.AddDataset(domain.Dataset{
		Name:   "observations",
		Parent: pl.ID,
		Values: []domain.Row{
			{"city": "Oslo", "month": "2024-01-01", "temp": -4.3, "rain": 49.0},
			{"city": "Oslo", "month": "2024-04-01", "temp": 4.5, "rain": 41.0},
			{"city": "Oslo", "month": "2024-07-01", "temp": 16.4, "rain": 81.0},
			{"city": "Rome", "month": "2024-01-01", "temp": 7.5, "rain": 67.0},
			{"city": "Rome", "month": "2024-04-01", "temp": 13.4, "rain": 65.0},
			{"city": "Rome", "month": "2024-07-01", "temp": 24.6, "rain": 14.0},
			{"city": "Seattle", "month": "2024-01-01", "temp": 5.2, "rain": 142.0},
			{"city": "Seattle", "month": "2024-04-01", "temp": 10.1, "rain": 71.0},
			{"city": "Seattle", "month": "2024-07-01", "temp": 19.2, "rain": 15.0},
		},
	})
	if err != nil {
		return nil, err
	}
	pl.SourceID = ds.ID
	if err := doc.UpdatePipeline(*pl); err != nil {
		return nil, err
	}
	for _, m := range []domain.Mark{
		{Name: "bars", Type: domain.MarkRect},
		{Name: "points", Type: domain.MarkSymbol},
	} {
		if _, err := doc.AddMark(m); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
