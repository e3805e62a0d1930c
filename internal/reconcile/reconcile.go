// Package reconcile holds the sub-parsers a binding drives to bring the
// document in line with a compiled spec, plus the orphan sweep.
//
// Every parser looks primitives up through the binding's identifier map
// first and verifies the mapped primitive still exists before reusing it;
// entries left dangling by a rollback or a sweep are simply re-created.
package reconcile

import (
	"log/slog"

	"markbind/internal/binding"
)

// New returns the standard parser set.
func New(logger *slog.Logger) binding.Parsers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return binding.Parsers{
		Data:       &DataParser{logger: logger},
		Scales:     &ScaleParser{logger: logger},
		Marks:      &MarkParser{logger: logger},
		Aggregates: &AggregateTracker{logger: logger},
		Cleanup:    &Sweeper{logger: logger},
		Guides:     &GuideParser{logger: logger},
	}
}
