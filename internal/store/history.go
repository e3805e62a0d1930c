package store

import (
	"time"

	"markbind/internal/domain"
)

// Operation is the kind of change applied to a primitive.
type Operation string

// Change operations.
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Kind identifies a primitive type.
type Kind string

// Primitive kinds, in dependency order.
const (
	KindPipeline Kind = "pipeline"
	KindDataset  Kind = "dataset"
	KindScale    Kind = "scale"
	KindGuide    Kind = "guide"
	KindMark     Kind = "mark"
)

// Layer returns the dependency layer of a kind; lower layers are referenced
// by higher ones.
func (k Kind) Layer() int {
	switch k {
	case KindPipeline:
		return 0
	case KindDataset:
		return 1
	case KindScale:
		return 2
	case KindGuide, KindMark:
		return 3
	}
	return 4
}

// Change records one primitive touched by a transaction.
type Change struct {
	Operation Operation `json:"operation" yaml:"operation"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
}

// Transaction is one committed, undoable edit.
type Transaction struct {
	ID          string    `json:"id" yaml:"id"`
	Label       string    `json:"label" yaml:"label"`
	Changes     []Change  `json:"changes" yaml:"changes"`
	CommittedAt time.Time `json:"committedAt" yaml:"committedAt"`
}

type txState struct {
	id      string
	label   string
	before  *snapshot
	changes []Change
}

// Begin opens a history transaction. Every mutation until End or Rollback is
// grouped into it. Transactions do not nest.
func (d *Document) Begin(label string) error {
	d.init()
	if d.tx != nil {
		return domain.ErrConflict("transaction %q is already open", d.tx.label)
	}
	d.tx = &txState{id: domain.NewID(), label: label, before: d.snapshot()}
	return nil
}

// End commits the open transaction and returns it.
func (d *Document) End() (*Transaction, error) {
	if d.tx == nil {
		return nil, domain.ErrConflict("no open transaction")
	}
	t := Transaction{
		ID:          d.tx.id,
		Label:       d.tx.label,
		Changes:     d.tx.changes,
		CommittedAt: time.Now().UTC(),
	}
	if t.Changes == nil {
		t.Changes = []Change{}
	}
	d.History = append(d.History, t)
	d.tx = nil
	return &t, nil
}

// Rollback discards every mutation made since Begin and closes the transaction.
func (d *Document) Rollback() error {
	if d.tx == nil {
		return domain.ErrConflict("no open transaction")
	}
	d.restore(d.tx.before)
	d.tx = nil
	return nil
}

// InTransaction reports whether a transaction is open.
func (d *Document) InTransaction() bool {
	return d.tx != nil
}

// LastTransaction returns the most recently committed transaction.
func (d *Document) LastTransaction() (*Transaction, bool) {
	if len(d.History) == 0 {
		return nil, false
	}
	t := d.History[len(d.History)-1]
	return &t, true
}

// record folds a change into the open transaction. A create followed by an
// update stays a create; a create followed by a delete cancels out.
func (d *Document) record(op Operation, kind Kind, id, name string) {
	if d.tx == nil {
		return
	}
	for i, c := range d.tx.changes {
		if c.Kind != kind || c.ID != id {
			continue
		}
		switch {
		case c.Operation == OpCreate && op == OpUpdate:
			d.tx.changes[i].Name = name
		case c.Operation == OpCreate && op == OpDelete:
			d.tx.changes = append(d.tx.changes[:i], d.tx.changes[i+1:]...)
		default:
			d.tx.changes[i].Operation = op
			d.tx.changes[i].Name = name
		}
		return
	}
	d.tx.changes = append(d.tx.changes, Change{Operation: op, Kind: kind, ID: id, Name: name})
}
