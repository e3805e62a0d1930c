package cli

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"markbind/internal/store"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
)

// PlanSummary counts a transaction's changes by operation.
type PlanSummary struct {
	Creates int `json:"creates"`
	Updates int `json:"updates"`
	Deletes int `json:"deletes"`
}

func summarize(tx *store.Transaction) PlanSummary {
	var s PlanSummary
	for _, c := range tx.Changes {
		switch c.Operation {
		case store.OpCreate:
			s.Creates++
		case store.OpUpdate:
			s.Updates++
		case store.OpDelete:
			s.Deletes++
		}
	}
	return s
}

// orderedChanges lists changes from the lowest dependency layer up, so a
// dataset is printed before the scales and marks that read it.
func orderedChanges(tx *store.Transaction) []store.Change {
	out := append([]store.Change{}, tx.Changes...)
	slices.SortStableFunc(out, func(a, b store.Change) int {
		return cmp.Compare(a.Kind.Layer(), b.Kind.Layer())
	})
	return out
}

// FormatText writes a human-readable rendering of a transaction to w.
// If noColor is true, ANSI codes are suppressed.
func FormatText(w io.Writer, tx *store.Transaction, noColor bool) {
	c := func(code string) string {
		if noColor {
			return ""
		}
		return code
	}

	if len(tx.Changes) == 0 {
		fmt.Fprintln(w, "No changes. Document is up-to-date.")
		return
	}

	fmt.Fprintf(w, "%s# %s%s\n", c(colorCyan), tx.Label, c(colorReset))
	for _, ch := range orderedChanges(tx) {
		name := ch.Name
		if name == "" {
			name = ch.ID
		}
		switch ch.Operation {
		case store.OpCreate:
			fmt.Fprintf(w, "  %s+%s %s %q created\n", c(colorGreen), c(colorReset), ch.Kind, name)
		case store.OpUpdate:
			fmt.Fprintf(w, "  %s~%s %s %q updated\n", c(colorYellow), c(colorReset), ch.Kind, name)
		case store.OpDelete:
			fmt.Fprintf(w, "  %s-%s %s %q deleted\n", c(colorRed), c(colorReset), ch.Kind, name)
		}
	}

	s := summarize(tx)
	fmt.Fprintf(w, "\n%sTransaction %s:%s %d created, %d updated, %d deleted.\n",
		c(colorDim), tx.ID, c(colorReset), s.Creates, s.Updates, s.Deletes)
}

// FormatJSON writes the transaction and its summary as JSON to w.
func FormatJSON(w io.Writer, tx *store.Transaction) error {
	type jsonPlan struct {
		ID      string         `json:"id"`
		Label   string         `json:"label"`
		Changes []store.Change `json:"changes"`
		Summary PlanSummary    `json:"summary"`
	}
	if err := printJSON(w, jsonPlan{
		ID:      tx.ID,
		Label:   tx.Label,
		Changes: orderedChanges(tx),
		Summary: summarize(tx),
	}); err != nil {
		return fmt.Errorf("format plan: %w", err)
	}
	return nil
}
