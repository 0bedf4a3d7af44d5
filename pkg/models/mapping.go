package models

// MappingDirection says when a variable mapping runs relative to its step.
type MappingDirection string

const (
	MappingInput  MappingDirection = "input"  // Applied when the step is entered
	MappingOutput MappingDirection = "output" // Applied when the step is advanced out of
)

// VariableMapping copies a value between two dotted paths of the instance data,
// optionally through a transform expression evaluated with the source bound to `value`.
type VariableMapping struct {
	Type      MappingDirection `json:"type"                validate:"required,oneof=input output"`
	Source    string           `json:"source"              validate:"required"`
	Target    string           `json:"target"              validate:"required"`
	Transform string           `json:"transform,omitempty"`
}
