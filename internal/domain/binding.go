package domain

// BindRequest asks for a dataset field to drive a visual property of a mark.
type BindRequest struct {
	DatasetID string      `json:"datasetId" yaml:"datasetId"`
	Field     FieldSchema `json:"field" yaml:"field"`
	MarkID    string      `json:"markId" yaml:"markId"`
	Property  string      `json:"property" yaml:"property"`
}

// Validate checks that the request names everything a binding needs.
func (r BindRequest) Validate() error {
	if r.DatasetID == "" {
		return ErrValidation("dataset id is required")
	}
	if r.MarkID == "" {
		return ErrValidation("mark id is required")
	}
	if r.Property == "" {
		return ErrValidation("property is required")
	}
	if r.Field.Name == "" {
		return ErrValidation("field name is required")
	}
	if !r.Field.MType.Valid() {
		return ErrValidation("field %q has unknown measurement type %q", r.Field.Name, r.Field.MType)
	}
	return nil
}
