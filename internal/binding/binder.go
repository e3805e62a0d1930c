// Package binding binds dataset fields to mark properties: it synthesizes the
// mark's unit spec, compiles it and drives the reconcilers that bring the
// document in line with the compiled result, all inside one history
// transaction.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"markbind/internal/domain"
	"markbind/internal/store"
	"markbind/internal/vgspec"
	"markbind/internal/vlspec"
)

// Parsed threads one binding's compiled spec, identifier map and context
// through the reconcilers. It never outlives the binding.
type Parsed struct {
	Input      *vlspec.UnitSpec
	Output     *vgspec.Spec
	Map        *vlspec.IdentifierMap
	Mark       *domain.Mark
	MarkType   domain.MarkType
	MarkID     string
	Property   string
	Channel    string
	DatasetID  string
	PipelineID string
}

// SubParser reconciles one family of primitives against a compiled spec,
// recording the IDs it creates into the matching identifier sub-map.
type SubParser interface {
	Parse(ctx context.Context, doc *store.Document, parsed *Parsed) error
}

// SubParserFunc adapts a function to SubParser.
type SubParserFunc func(ctx context.Context, doc *store.Document, parsed *Parsed) error

// Parse implements SubParser.
func (f SubParserFunc) Parse(ctx context.Context, doc *store.Document, parsed *Parsed) error {
	return f(ctx, doc, parsed)
}

// Sweeper removes primitives nothing references any more.
type Sweeper interface {
	Sweep(ctx context.Context, doc *store.Document) error
}

// Parsers are the collaborators a Binder drives, in the order it drives them.
type Parsers struct {
	Data       SubParser
	Scales     SubParser
	Marks      SubParser
	Aggregates SubParser
	Cleanup    Sweeper
	Guides     SubParser
}

func (p Parsers) validate() error {
	if p.Data == nil || p.Scales == nil || p.Marks == nil || p.Aggregates == nil || p.Cleanup == nil || p.Guides == nil {
		return errors.New("binding: every parser must be set")
	}
	return nil
}

// Binder runs bindings. It holds no document state; a Binder may serve any
// number of documents, one binding at a time per document.
type Binder struct {
	parsers    Parsers
	compile    CompileFunc
	classifier *Classifier
	logger     *slog.Logger
}

// NewBinder creates a Binder. aggregateOps is the operator set the field-name
// classifier recognizes; it should match what compile accepts.
func NewBinder(parsers Parsers, compile CompileFunc, aggregateOps []string, logger *slog.Logger) (*Binder, error) {
	if err := parsers.validate(); err != nil {
		return nil, err
	}
	if compile == nil {
		return nil, errors.New("binding: compile func is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Binder{
		parsers:    parsers,
		compile:    compile,
		classifier: NewClassifier(aggregateOps),
		logger:     logger,
	}, nil
}

// Bind binds req.Field of dataset req.DatasetID to property req.Property of
// mark req.MarkID.
//
// Preconditions are checked before anything is mutated. Everything after
// that happens inside one history transaction; if any step fails the
// transaction is rolled back and the mark's identifier map restored, so the
// document is left exactly as it was.
func (b *Binder) Bind(ctx context.Context, doc *store.Document, req domain.BindRequest) (err error) {
	if err := req.Validate(); err != nil {
		return err
	}
	mark, err := doc.Mark(req.MarkID)
	if err != nil {
		return err
	}
	ds, err := doc.Dataset(req.DatasetID)
	if err != nil {
		return err
	}
	if err := checkPipeline(doc, mark, ds); err != nil {
		return err
	}

	channel := ResolveChannel(req.Property)
	def := b.classifier.ChannelDef(req.Field)
	spec, err := Synthesize(mark)
	if err != nil {
		return err
	}

	saved := spec.EnsureMap().Snapshot()

	if err := doc.Begin(fmt.Sprintf("bind %s.%s to %s", mark.Name, req.Property, req.Field.Name)); err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		spec.Map.Restore(saved)
		if rbErr := doc.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		b.logger.Warn("binding rolled back", "mark", mark.ID, "property", req.Property, "error", err)
	}()

	spec.SetEncoding(channel, def)
	compiled, err := compileSpec(b.compile, doc, spec, ds.ID, req.Property)
	if err != nil {
		return err
	}

	parsed := &Parsed{
		Input:      compiled.Input,
		Output:     compiled.Output,
		Map:        spec.Map,
		Mark:       mark,
		MarkType:   mark.Type,
		MarkID:     mark.ID,
		Property:   req.Property,
		Channel:    channel,
		DatasetID:  ds.ID,
		PipelineID: ds.Parent,
	}

	if err = b.finalizeScales(ctx, doc, parsed); err != nil {
		return err
	}
	if err = b.deriveGuides(ctx, doc, parsed); err != nil {
		return err
	}

	updated, err := doc.Mark(mark.ID)
	if err != nil {
		return err
	}
	updated.UnitSpec = spec
	if err = doc.UpdateMark(*updated); err != nil {
		return err
	}

	tx, err := doc.End()
	if err != nil {
		return err
	}
	b.logger.Info("field bound",
		"mark", mark.ID,
		"property", req.Property,
		"channel", channel,
		"field", def.Field,
		"transaction", tx.ID,
		"changes", len(tx.Changes),
	)
	return nil
}

// finalizeScales is the first reconciliation phase: data, scales and mark
// properties are brought up to date, aggregate dependencies registered and
// orphans swept. When it returns, the document's scale set is final.
func (b *Binder) finalizeScales(ctx context.Context, doc *store.Document, parsed *Parsed) error {
	steps := []struct {
		name string
		p    SubParser
	}{
		{"data", b.parsers.Data},
		{"scales", b.parsers.Scales},
		{"marks", b.parsers.Marks},
	}
	for _, s := range steps {
		b.logger.Debug("reconcile", "step", s.name, "mark", parsed.MarkID)
		if err := s.p.Parse(ctx, doc, parsed); err != nil {
			return fmt.Errorf("reconcile %s: %w", s.name, err)
		}
	}

	if hasSummary(parsed) {
		b.logger.Debug("reconcile", "step", "aggregates", "mark", parsed.MarkID)
		if err := b.parsers.Aggregates.Parse(ctx, doc, parsed); err != nil {
			return fmt.Errorf("reconcile aggregates: %w", err)
		}
	}

	b.logger.Debug("reconcile", "step", "cleanup", "mark", parsed.MarkID)
	if err := b.parsers.Cleanup.Sweep(ctx, doc); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

// deriveGuides is the second phase; it depends on the scale set finalizeScales settled.
func (b *Binder) deriveGuides(ctx context.Context, doc *store.Document, parsed *Parsed) error {
	b.logger.Debug("reconcile", "step", "guides", "mark", parsed.MarkID)
	if err := b.parsers.Guides.Parse(ctx, doc, parsed); err != nil {
		return fmt.Errorf("reconcile guides: %w", err)
	}
	return nil
}

func hasSummary(parsed *Parsed) bool {
	if _, ok := parsed.Output.FindData(vgspec.DataSummary); !ok {
		return false
	}
	_, ok := parsed.Map.Data[vgspec.DataSummary]
	return ok
}

// checkPipeline rejects binding a mark that already draws from one pipeline to
// a dataset of another.
func checkPipeline(doc *store.Document, mark *domain.Mark, ds *domain.Dataset) error {
	if mark.From == nil || mark.From.Data == "" {
		return nil
	}
	current, err := doc.Dataset(mark.From.Data)
	if err != nil {
		return fmt.Errorf("mark %s source: %w", mark.ID, err)
	}
	if current.Parent != ds.Parent {
		return &domain.PipelineMismatchError{
			MarkID:            mark.ID,
			MarkPipelineID:    current.Parent,
			DatasetID:         ds.ID,
			DatasetPipelineID: ds.Parent,
		}
	}
	return nil
}
