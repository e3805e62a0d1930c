package binding

import (
	"fmt"

	"markbind/internal/domain"
	"markbind/internal/vgspec"
	"markbind/internal/vlspec"
)

// Layout handed to the compiler. The odd sizes let the scale reconciler tell
// compiler-assigned default ranges apart from explicit ones.
const (
	CellWidth  = 517
	CellHeight = 392
)

// CompileFunc compiles a unit spec into a rendering spec.
type CompileFunc func(*vlspec.UnitSpec) (*vgspec.Spec, error)

// OutputSource materializes dataset rows.
type OutputSource interface {
	Output(datasetID string) ([]domain.Row, error)
}

// Compiled pairs the spec handed to the compiler with its output.
type Compiled struct {
	Input  *vlspec.UnitSpec
	Output *vgspec.Spec
}

// compileSpec compiles a copy of spec with the dataset's rows embedded and the
// fixed layout applied. spec itself is left untouched. Compiler errors are
// returned as is.
func compileSpec(compile CompileFunc, src OutputSource, spec *vlspec.UnitSpec, datasetID, property string) (*Compiled, error) {
	input := spec.Clone()

	rows, err := src.Output(datasetID)
	if err != nil {
		return nil, fmt.Errorf("load values for dataset %s: %w", datasetID, err)
	}
	input.Data.Values = rows
	input.Config.Cell = vlspec.CellConfig{Width: CellWidth, Height: CellHeight}
	input.Config.Mark.Filled = property == "fill"

	out, err := compile(input)
	if err != nil {
		return nil, err
	}
	return &Compiled{Input: input, Output: out}, nil
}
